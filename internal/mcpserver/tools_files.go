// File: internal/mcpserver/tools_files.go
package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xkilldash9x/novaact-mcp/internal/artifacts"
)

// Error codes for file and log tools.
const (
	codeFileNotFound = "FILE_NOT_FOUND"
	codeFileTooLarge = "FILE_TOO_LARGE"
	codeNoLogsFound  = "NO_LOGS_FOUND"
	codeReadError    = "READ_ERROR"
	codeMissingParam = "MISSING_PARAMETER"
)

type fileToolError struct {
	Message string `json:"error,omitempty"`
	Code    string `json:"error_code,omitempty"`
}

type fetchFileResult struct {
	fileToolError
	Path           string `json:"file_path,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
	Size           int64  `json:"size,omitempty"`
	Content        string `json:"content,omitempty"`
	EncodedContent string `json:"encoded_content,omitempty"`
	DataURL        string `json:"data_url,omitempty"`
	Success        bool   `json:"success"`
	Timestamp      int64  `json:"timestamp"`
}

type viewHTMLLogResult struct {
	fileToolError
	SessionID string `json:"session_id,omitempty"`
	Path      string `json:"file_path,omitempty"`
	HTML      string `json:"html,omitempty"`
	Size      int64  `json:"file_size,omitempty"`
	Success   bool   `json:"success"`
	Timestamp int64  `json:"timestamp"`
}

type compressLogsResult struct {
	fileToolError
	*artifacts.CompressResult
	Success   bool  `json:"success"`
	Timestamp int64 `json:"timestamp"`
}

type viewCompressedResult struct {
	fileToolError
	Path        string `json:"compressed_path,omitempty"`
	Content     string `json:"content,omitempty"`
	ParsedJSON  any    `json:"parsed_json,omitempty"`
	RecordCount int    `json:"record_count,omitempty"`
	Size        int    `json:"size,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Success     bool   `json:"success"`
	Timestamp   int64  `json:"timestamp"`
}

func (s *Server) registerFileTools() {
	s.mcp.AddTool(mcp.NewTool(ToolFetchFile,
		mcp.WithDescription("Read a file from disk. Text files return content inline, images return a base64 data URL."),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Absolute path of the file to read")),
		mcp.WithBoolean("encode_base64", mcp.Description("Return the content base64 encoded regardless of type")),
		mcp.WithNumber("max_size", mcp.Description("Maximum file size in bytes (default 10MB)")),
	), s.handleFetchFile)

	s.mcp.AddTool(mcp.NewTool(ToolViewHTMLLog,
		mcp.WithDescription("Return an HTML act log: the newest one of a session, or an explicit path."),
		mcp.WithString("session_id", mcp.Description("Session whose newest HTML log to return")),
		mcp.WithString("html_path", mcp.Description("Explicit HTML log path; takes precedence over session_id")),
	), s.handleViewHTMLLog)

	s.mcp.AddTool(mcp.NewTool(ToolCompressLogs,
		mcp.WithDescription("Compress a log file, optionally extracting inline screenshots first. Supports gzip and brotli."),
		mcp.WithString("log_path", mcp.Required(), mcp.Description("Path of the log file to compress")),
		mcp.WithString("format", mcp.Description("Compression format: gzip (default) or brotli")),
		mcp.WithNumber("level", mcp.Description("Compression level; 0 uses the codec default")),
		mcp.WithBoolean("extract_screenshots", mcp.Description("Extract inline base64 images before compressing (default true)")),
	), s.handleCompressLogs)

	s.mcp.AddTool(mcp.NewTool(ToolViewCompressed,
		mcp.WithDescription("Read back a compressed log produced by compress_logs."),
		mcp.WithString("compressed_path", mcp.Required(), mcp.Description("Path of the compressed log")),
		mcp.WithNumber("max_bytes", mcp.Description("Truncate the decompressed content to this many bytes")),
	), s.handleViewCompressed)
}

var textContentTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".json": "application/json",
	".log":  "text/plain",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

func (s *Server) handleFetchFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now().Unix()
	path := request.GetString("file_path", "")
	if path == "" {
		return s.textResult(&fetchFileResult{
			fileToolError: fileToolError{Message: "file_path is required", Code: codeMissingParam},
			Timestamp:     now,
		})
	}
	maxSize := int64(request.GetInt("max_size", 0))
	if maxSize <= 0 {
		maxSize = s.cfg.Session().MaxFileSize
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return s.textResult(&fetchFileResult{
			fileToolError: fileToolError{Message: fmt.Sprintf("file not found: %s", path), Code: codeFileNotFound},
			Path:          path,
			Timestamp:     now,
		})
	}
	if info.Size() > maxSize {
		return s.textResult(&fetchFileResult{
			fileToolError: fileToolError{
				Message: fmt.Sprintf("file is %d bytes, larger than the %d byte limit", info.Size(), maxSize),
				Code:    codeFileTooLarge,
			},
			Path:      path,
			Size:      info.Size(),
			Timestamp: now,
		})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s.textResult(&fetchFileResult{
			fileToolError: fileToolError{Message: err.Error(), Code: codeReadError},
			Path:          path,
			Timestamp:     now,
		})
	}

	ext := strings.ToLower(filepath.Ext(path))
	result := &fetchFileResult{
		Path:      path,
		Size:      info.Size(),
		Success:   true,
		Timestamp: now,
	}
	switch {
	case request.GetBool("encode_base64", false):
		ct, ok := textContentTypes[ext]
		if !ok {
			if ict, iok := imageContentTypes[ext]; iok {
				ct = ict
			} else {
				ct = "application/octet-stream"
			}
		}
		result.ContentType = ct
		result.EncodedContent = base64.StdEncoding.EncodeToString(data)
	default:
		if ct, ok := imageContentTypes[ext]; ok {
			result.ContentType = ct
			result.DataURL = "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data)
			break
		}
		ct, ok := textContentTypes[ext]
		if !ok {
			ct = "application/octet-stream"
		}
		result.ContentType = ct
		result.Content = string(data)
	}
	return s.textResult(result)
}

func (s *Server) handleViewHTMLLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now().Unix()
	sessionID := request.GetString("session_id", "")
	path := request.GetString("html_path", "")
	if sessionID == "" && path == "" {
		return s.textResult(&viewHTMLLogResult{
			fileToolError: fileToolError{Message: "session_id or html_path is required", Code: codeMissingParam},
			Timestamp:     now,
		})
	}

	if path == "" {
		logsDir, ok := s.controller.LogsDir(sessionID)
		if !ok {
			return s.textResult(&viewHTMLLogResult{
				fileToolError: fileToolError{Message: fmt.Sprintf("no logs directory known for session %s", sessionID), Code: codeNoLogsFound},
				SessionID:     sessionID,
				Timestamp:     now,
			})
		}
		latest, found := artifacts.LatestHTMLLog(logsDir)
		if !found {
			return s.textResult(&viewHTMLLogResult{
				fileToolError: fileToolError{Message: fmt.Sprintf("no HTML logs in %s", logsDir), Code: codeNoLogsFound},
				SessionID:     sessionID,
				Timestamp:     now,
			})
		}
		path = latest
	}

	data, err := os.ReadFile(path)
	if err != nil {
		code := codeReadError
		if os.IsNotExist(err) {
			code = codeFileNotFound
		}
		return s.textResult(&viewHTMLLogResult{
			fileToolError: fileToolError{Message: err.Error(), Code: code},
			SessionID:     sessionID,
			Path:          path,
			Timestamp:     now,
		})
	}
	return s.textResult(&viewHTMLLogResult{
		SessionID: sessionID,
		Path:      path,
		HTML:      string(data),
		Size:      int64(len(data)),
		Success:   true,
		Timestamp: now,
	})
}

func (s *Server) handleCompressLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now().Unix()
	path := request.GetString("log_path", "")
	if path == "" {
		return s.textResult(&compressLogsResult{
			fileToolError: fileToolError{Message: "log_path is required", Code: codeMissingParam},
			Timestamp:     now,
		})
	}
	if _, err := os.Stat(path); err != nil {
		return s.textResult(&compressLogsResult{
			fileToolError: fileToolError{Message: fmt.Sprintf("file not found: %s", path), Code: codeFileNotFound},
			Timestamp:     now,
		})
	}

	res, err := artifacts.CompressLogFile(path, artifacts.CompressOptions{
		Format:             request.GetString("format", artifacts.FormatGzip),
		Level:              request.GetInt("level", 0),
		ExtractScreenshots: request.GetBool("extract_screenshots", true),
	})
	if err != nil {
		return s.textResult(&compressLogsResult{
			fileToolError: fileToolError{Message: err.Error(), Code: codeReadError},
			Timestamp:     now,
		})
	}
	return s.textResult(&compressLogsResult{
		CompressResult: res,
		Success:        true,
		Timestamp:      now,
	})
}

func (s *Server) handleViewCompressed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now().Unix()
	path := request.GetString("compressed_path", "")
	if path == "" {
		return s.textResult(&viewCompressedResult{
			fileToolError: fileToolError{Message: "compressed_path is required", Code: codeMissingParam},
			Timestamp:     now,
		})
	}
	if _, err := os.Stat(path); err != nil {
		return s.textResult(&viewCompressedResult{
			fileToolError: fileToolError{Message: fmt.Sprintf("file not found: %s", path), Code: codeFileNotFound},
			Path:          path,
			Timestamp:     now,
		})
	}

	data, err := artifacts.ReadCompressedLog(path)
	if err != nil {
		return s.textResult(&viewCompressedResult{
			fileToolError: fileToolError{Message: err.Error(), Code: codeReadError},
			Path:          path,
			Timestamp:     now,
		})
	}

	result := &viewCompressedResult{
		Path:      path,
		Success:   true,
		Timestamp: now,
	}
	// JSON logs come back parsed so agents can filter records in place.
	var parsed any
	if json.Unmarshal(data, &parsed) == nil {
		result.ParsedJSON = parsed
		if records, ok := parsed.([]any); ok {
			result.RecordCount = len(records)
		}
	}

	truncated := false
	if maxBytes := request.GetInt("max_bytes", 0); maxBytes > 0 && len(data) > maxBytes {
		data = data[:maxBytes]
		truncated = true
	}
	result.Content = string(data)
	result.Size = len(data)
	result.Truncated = truncated
	return s.textResult(result)
}
