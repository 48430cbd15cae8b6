// File: internal/session/inspect.go
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/novaact-mcp/internal/artifacts"
	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

const logFileListLimit = 10

// Inspect captures the current state of a session's page on its worker
// goroutine. Every probe (url, title, screenshot, log listing) is
// independently fault tolerant: failures become diagnostics, not errors.
func (c *Controller) Inspect(ctx context.Context, params InspectParams) *InspectResult {
	if params.SessionID == "" {
		return &InspectResult{
			ToolError: ToolError{Message: "session_id is required", Code: CodeMissingParameter},
			Timestamp: c.now(),
		}
	}
	executor, ok := c.registry.Executor(params.SessionID)
	if !ok {
		return &InspectResult{
			ToolError: ToolError{Message: fmt.Sprintf("no executor for session %s", params.SessionID), Code: CodeSessionExecutorNotFound},
			SessionID: params.SessionID,
			Timestamp: c.now(),
		}
	}

	value, err := executor.Submit(ctx, func() (any, error) {
		return c.inspectWorker(params), nil
	})
	if err != nil {
		return &InspectResult{
			ToolError: ToolError{Message: err.Error(), Code: CodeExecutionError},
			SessionID: params.SessionID,
			Timestamp: c.now(),
		}
	}
	return value.(*InspectResult)
}

// inspectWorker runs on the session's worker goroutine.
func (c *Controller) inspectWorker(params InspectParams) *InspectResult {
	sessionID := params.SessionID
	logger := c.logger.With(zap.String("session_id", sessionID))

	client, ok := c.registry.Client(sessionID)
	if !ok {
		return &InspectResult{
			ToolError: ToolError{Message: "no engine instance bound to this session", Code: CodeInstanceNotFound},
			SessionID: sessionID,
			Timestamp: c.now(),
		}
	}

	view, _ := c.registry.Snapshot(sessionID)
	result := &InspectResult{
		SessionID: sessionID,
		Status:    view.Status,
		Success:   true,
		Timestamp: c.now(),
	}

	page := client.Page()

	urlCtx, urlCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if u, err := page.URL(urlCtx); err != nil {
		result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("url unavailable: %v", err))
	} else {
		result.URL = u
		c.registry.Update(sessionID, func(s *Session) { s.URL = u })
	}
	urlCancel()

	titleCtx, titleCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if t, err := page.Title(titleCtx); err != nil {
		result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("title unavailable: %v", err))
	} else {
		result.Title = t
	}
	titleCancel()

	text := fmt.Sprintf("Session %s", sessionID)
	if result.Title != "" || result.URL != "" {
		text = fmt.Sprintf("%q (%s)", result.Title, result.URL)
	}
	result.Content = append(result.Content, ContentBlock{Type: "text", Text: text})

	if params.IncludeScreenshot {
		c.attachScreenshot(result, client, view.LogsDir, params.Quality, logger)
	}

	var htmlLog string
	if view.LogsDir != "" {
		result.BrowserState = &BrowserState{
			LogsDirectory: view.LogsDir,
			LogFiles:      artifacts.ListLogFiles(view.LogsDir, logFileListLimit),
		}
		htmlLog, _ = artifacts.LatestHTMLLog(view.LogsDir)
	}

	var rawLines []string
	if liner, ok := client.(rawLogLiner); ok {
		rawLines = liner.LogLines()
	}
	thoughts, debug := c.extractor.Extract(htmlLog, rawLines)
	for _, t := range thoughts {
		result.AgentThinking = append(result.AgentThinking, ThinkingEntry{Type: "reasoning", Content: t, Source: debug.Source})
	}
	return result
}

// attachScreenshot captures the viewport and either inlines it as a data
// URL or, when it exceeds the inline threshold, writes it next to the
// session logs. Capture failures are reported as diagnostics.
func (c *Controller) attachScreenshot(result *InspectResult, client engine.Client, logsDir string, quality int, logger *zap.Logger) {
	if quality <= 0 {
		quality = c.cfg.Inspect().ScreenshotQuality
	}

	shotCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	data, err := client.Page().Screenshot(shotCtx, quality)
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("screenshot unavailable: %v", err))
		return
	}

	if len(data) <= c.cfg.Inspect().MaxInlineImageBytes {
		result.Content = append(result.Content, ContentBlock{
			Type:    "image_base64",
			Data:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
			Caption: "Current viewport",
		})
		return
	}

	dir := logsDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), result.SessionID+"_screenshots")
	}
	shotDir := filepath.Join(dir, "screenshots")
	if err := os.MkdirAll(shotDir, 0o755); err != nil {
		result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("screenshot not saved: %v", err))
		return
	}
	name := fmt.Sprintf("screenshot_%d_%s.jpg", c.clock().Unix(), uuid.New().String()[:8])
	path := filepath.Join(shotDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("screenshot not saved: %v", err))
		return
	}
	logger.Debug("Screenshot exceeded inline threshold, saved to disk.",
		zap.String("path", path), zap.Int("bytes", len(data)))
	result.ScreenshotFilePath = path
	result.Content = append(result.Content, ContentBlock{
		Type:    "text",
		Text:    fmt.Sprintf("Screenshot saved to %s (%d bytes, over inline limit)", path, len(data)),
		Caption: "Current viewport",
	})
}
