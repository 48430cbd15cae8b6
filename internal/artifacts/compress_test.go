// File: internal/artifacts/compress_test.go
package artifacts

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompressLogFileGzipRoundTrip(t *testing.T) {
	content := strings.Repeat("session step executed successfully\n", 200)
	path := writeLog(t, "act.log", content)

	res, err := CompressLogFile(path, CompressOptions{})
	require.NoError(t, err)
	assert.Equal(t, path+".gz", res.CompressedPath)
	assert.Equal(t, int64(len(content)), res.OriginalSize)
	assert.Less(t, res.CompressedSize, res.OriginalSize)
	assert.Greater(t, res.CompressionRatio, 0.0)
	assert.Less(t, res.CompressionRatio, 1.0)

	// The original must be left in place.
	_, err = os.Stat(path)
	require.NoError(t, err)

	back, err := ReadCompressedLog(res.CompressedPath)
	require.NoError(t, err)
	assert.Equal(t, content, string(back))
}

func TestCompressLogFileBrotliRoundTrip(t *testing.T) {
	content := strings.Repeat("another log line with some repetition\n", 200)
	path := writeLog(t, "act.log", content)

	res, err := CompressLogFile(path, CompressOptions{Format: FormatBrotli})
	require.NoError(t, err)
	assert.Equal(t, path+".br", res.CompressedPath)

	back, err := ReadCompressedLog(res.CompressedPath)
	require.NoError(t, err)
	assert.Equal(t, content, string(back))
}

func TestCompressLogFileRejectsUnknownFormat(t *testing.T) {
	path := writeLog(t, "act.log", "data")
	_, err := CompressLogFile(path, CompressOptions{Format: "zstd"})
	assert.Error(t, err)
}

func TestCompressLogFileMissingFile(t *testing.T) {
	_, err := CompressLogFile("/nonexistent/act.log", CompressOptions{})
	assert.Error(t, err)
}

func TestCompressLogFileExtractsScreenshots(t *testing.T) {
	image := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("pixels", 100)))
	content := fmt.Sprintf(`<html><img src="data:image/jpeg;base64,%s"><p>after</p></html>`, image)
	path := writeLog(t, "act.html", content)

	res, err := CompressLogFile(path, CompressOptions{ExtractScreenshots: true})
	require.NoError(t, err)
	require.Len(t, res.Screenshots, 1)

	saved, err := os.ReadFile(res.Screenshots[0])
	require.NoError(t, err)
	assert.Equal(t, image, string(saved))

	back, err := ReadCompressedLog(res.CompressedPath)
	require.NoError(t, err)
	assert.NotContains(t, string(back), image, "image payload is replaced")
	assert.Contains(t, string(back), "screenshot extracted to")
	assert.Contains(t, string(back), "<p>after</p>", "surrounding content survives")
}

func TestCompressLogFileLeavesSmallImagesAlone(t *testing.T) {
	content := `<img src="data:image/png;base64,aGVsbG8=">`
	path := writeLog(t, "act.html", content)

	res, err := CompressLogFile(path, CompressOptions{ExtractScreenshots: true})
	require.NoError(t, err)
	assert.Empty(t, res.Screenshots, "short payloads are not worth extracting")

	back, err := ReadCompressedLog(res.CompressedPath)
	require.NoError(t, err)
	assert.Equal(t, content, string(back))
}

func TestReadCompressedLogPlainFile(t *testing.T) {
	path := writeLog(t, "plain.log", "not compressed")
	back, err := ReadCompressedLog(path)
	require.NoError(t, err)
	assert.Equal(t, "not compressed", string(back))
}
