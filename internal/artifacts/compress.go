// File: internal/artifacts/compress.go
package artifacts

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andybalholm/brotli"
)

// Compression formats for log archiving.
const (
	FormatGzip   = "gzip"
	FormatBrotli = "brotli"
)

// CompressOptions controls log compression.
type CompressOptions struct {
	// Format selects gzip (default) or brotli.
	Format string
	// Level is the codec compression level; 0 means the codec default.
	Level int
	// ExtractScreenshots pulls inline base64 images out into sibling
	// files before compressing, which is where most log bulk lives.
	ExtractScreenshots bool
}

// CompressResult reports the outcome of compressing one log file.
type CompressResult struct {
	CompressedPath   string   `json:"compressed_path"`
	OriginalSize     int64    `json:"original_size"`
	CompressedSize   int64    `json:"compressed_size"`
	CompressionRatio float64  `json:"compression_ratio"`
	Screenshots      []string `json:"extracted_screenshots,omitempty"`
}

var inlineImagePattern = regexp.MustCompile(`data:image/(png|jpeg|jpg|webp);base64,([A-Za-z0-9+/=]{256,})`)

// CompressLogFile compresses the log at path next to the original. The
// original file is left untouched.
func CompressLogFile(path string, opts CompressOptions) (*CompressResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	originalSize := int64(len(data))

	var screenshots []string
	if opts.ExtractScreenshots {
		data, screenshots, err = extractInlineImages(path, data)
		if err != nil {
			return nil, err
		}
	}

	format := opts.Format
	if format == "" {
		format = FormatGzip
	}

	var buf bytes.Buffer
	switch format {
	case FormatGzip:
		level := opts.Level
		if level <= 0 {
			level = gzip.DefaultCompression
		} else if level > gzip.BestCompression {
			level = gzip.BestCompression
		}
		w, err := gzip.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, fmt.Errorf("gzip compression failed: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip compression failed: %w", err)
		}
	case FormatBrotli:
		level := opts.Level
		if level <= 0 {
			level = brotli.DefaultCompression
		} else if level > brotli.BestCompression {
			level = brotli.BestCompression
		}
		w := brotli.NewWriterLevel(&buf, level)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("brotli compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("brotli compression failed: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported compression format %q", format)
	}

	outPath := path + extensionFor(format)
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write compressed log: %w", err)
	}

	compressedSize := int64(buf.Len())
	ratio := 0.0
	if originalSize > 0 {
		ratio = float64(compressedSize) / float64(originalSize)
	}
	return &CompressResult{
		CompressedPath:   outPath,
		OriginalSize:     originalSize,
		CompressedSize:   compressedSize,
		CompressionRatio: ratio,
		Screenshots:      screenshots,
	}, nil
}

func extensionFor(format string) string {
	if format == FormatBrotli {
		return ".br"
	}
	return ".gz"
}

// extractInlineImages writes embedded base64 images to a sibling directory
// and replaces them with a short placeholder reference.
func extractInlineImages(logPath string, data []byte) ([]byte, []string, error) {
	matches := inlineImagePattern.FindAllSubmatchIndex(data, -1)
	if len(matches) == 0 {
		return data, nil, nil
	}

	outDir := filepath.Join(filepath.Dir(logPath), "screenshots_extracted")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(logPath), filepath.Ext(logPath))
	var out bytes.Buffer
	var paths []string
	last := 0
	for i, m := range matches {
		ext := string(data[m[2]:m[3]])
		if ext == "jpg" {
			ext = "jpeg"
		}
		name := fmt.Sprintf("%s_img_%03d.%s.b64", base, i+1, ext)
		imgPath := filepath.Join(outDir, name)
		if err := os.WriteFile(imgPath, data[m[4]:m[5]], 0o644); err != nil {
			return nil, nil, fmt.Errorf("failed to write extracted screenshot: %w", err)
		}
		paths = append(paths, imgPath)

		out.Write(data[last:m[0]])
		fmt.Fprintf(&out, "[screenshot extracted to %s]", name)
		last = m[1]
	}
	out.Write(data[last:])
	return out.Bytes(), paths, nil
}

// ReadCompressedLog reads a log previously produced by CompressLogFile,
// decoding by extension. Plain files are returned as-is.
func ReadCompressedLog(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed log: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		r, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read gzip log: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case ".br":
		return io.ReadAll(brotli.NewReader(f))
	default:
		return io.ReadAll(f)
	}
}
