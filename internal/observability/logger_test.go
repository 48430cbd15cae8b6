// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/novaact-mcp/internal/config"
)

func TestInitialize(t *testing.T) {
	t.Run("console output carries level, service and message", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "novaact-mcp-test",
		}, &buf)

		logger := GetLogger()
		require.NotNil(t, logger)
		logger.Info("browser session started")
		logger.Debug("queued task")
		_ = Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "DEBUG")
		assert.Contains(t, output, "browser session started")
		assert.Contains(t, output, "novaact-mcp-test")
	})

	t.Run("json format emits structured entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(config.LoggerConfig{
			Level:  "info",
			Format: "json",
		}, &buf)

		GetLogger().Info("session ready", zap.String("session_id", "abc123"))
		_ = Sync()

		line := strings.TrimSpace(buf.String())
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "session ready", entry["msg"])
		assert.Equal(t, "abc123", entry["session_id"])
	})

	t.Run("level filters lower severity entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(config.LoggerConfig{Level: "warn", Format: "console"}, &buf)

		GetLogger().Info("should be filtered")
		GetLogger().Warn("should appear")
		_ = Sync()

		output := buf.String()
		assert.NotContains(t, output, "should be filtered")
		assert.Contains(t, output, "should appear")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(config.LoggerConfig{Level: "not-a-level", Format: "console"}, &buf)

		GetLogger().Debug("debug hidden")
		GetLogger().Info("info visible")
		_ = Sync()

		output := buf.String()
		assert.NotContains(t, output, "debug hidden")
		assert.Contains(t, output, "info visible")
	})

	t.Run("only the first initialization wins", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var first, second bytes.Buffer
		Initialize(config.LoggerConfig{Level: "info", Format: "console"}, &first)
		Initialize(config.LoggerConfig{Level: "info", Format: "console"}, &second)

		GetLogger().Info("routed to first writer")
		_ = Sync()

		assert.Contains(t, first.String(), "routed to first writer")
		assert.Empty(t, second.String())
	})

	t.Run("file sink writes json alongside the console core", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		logFile := filepath.Join(t.TempDir(), "novaact-mcp.log")
		var buf bytes.Buffer
		Initialize(config.LoggerConfig{
			Level:   "info",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		}, &buf)

		GetLogger().Info("persisted entry")
		_ = Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
		assert.Equal(t, "persisted entry", entry["msg"])
		assert.Contains(t, buf.String(), "persisted entry")
	})
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("dropped")
	assert.NoError(t, Sync())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "debug",
		"INFO":  "info",
		"Warn":  "warn",
		"error": "error",
		"bogus": "info",
		"":      "info",
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input).String(), "input %q", input)
	}
}

func TestIsIgnorableSyncError(t *testing.T) {
	assert.True(t, isIgnorableSyncError(errString("sync /dev/stderr: invalid argument")))
	assert.True(t, isIgnorableSyncError(errString("sync: inappropriate ioctl for device")))
	assert.True(t, isIgnorableSyncError(errString("sync: bad file descriptor")))
	assert.False(t, isIgnorableSyncError(errString("disk full")))
}

type errString string

func (e errString) Error() string { return string(e) }
