// File: internal/session/types.go
package session

import (
	"github.com/xkilldash9x/novaact-mcp/internal/artifacts"
)

// Error codes carried in tool result payloads. Tool calls never fail with
// a transport error for domain problems; they return one of these.
const (
	CodeMissingParameter        = "MISSING_PARAMETER"
	CodeMissingAPIKey           = "MISSING_API_KEY"
	CodeEngineNotAvailable      = "NOVA_ACT_NOT_AVAILABLE"
	CodeSessionNotFound         = "SESSION_NOT_FOUND"
	CodeSessionExecutorNotFound = "SESSION_EXECUTOR_NOT_FOUND"
	CodeInstanceNotFound        = "NOVA_INSTANCE_NOT_FOUND"
	CodeGuardrailTriggered      = "GUARDRAIL_TRIGGERED"
	CodeExecutionError          = "EXECUTION_ERROR"
	CodeStartError              = "START_ERROR"
)

// ToolError is the structured error envelope embedded in result payloads.
type ToolError struct {
	Message string `json:"error,omitempty"`
	Code    string `json:"error_code,omitempty"`
}

// ContentBlock is one element of the content array returned to agents.
type ContentBlock struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Data    string `json:"data,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// ThinkingEntry is one extracted agent reasoning fragment.
type ThinkingEntry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// StartParams are the inputs to starting a browser session.
type StartParams struct {
	URL       string
	Identity  string
	Headless  bool
	SessionID string
}

// StartResult reports the outcome of starting a session.
type StartResult struct {
	ToolError
	SessionID       string `json:"session_id,omitempty"`
	EngineSessionID string `json:"nova_session_id,omitempty"`
	Identity        string `json:"identity,omitempty"`
	Status          Status `json:"status,omitempty"`
	URL             string `json:"url,omitempty"`
	LogsDir         string `json:"logs_dir,omitempty"`
	Success         bool   `json:"success"`
	Timestamp       int64  `json:"timestamp"`
}

// ExecuteParams are the inputs to executing one instruction.
type ExecuteParams struct {
	SessionID     string
	Task          string
	Instructions  string
	Schema        string
	TimeoutSec    int
	RetryAttempts int
}

// ExecuteResult reports the outcome of one instruction.
type ExecuteResult struct {
	ToolError
	SessionID     string               `json:"session_id,omitempty"`
	Task          string               `json:"task,omitempty"`
	Content       []ContentBlock       `json:"content,omitempty"`
	AgentThinking []ThinkingEntry      `json:"agent_thinking,omitempty"`
	ThinkingDebug *artifacts.DebugInfo `json:"thinking_debug,omitempty"`
	Parsed        map[string]any       `json:"parsed,omitempty"`
	URL           string               `json:"current_url,omitempty"`
	HTMLLogPath   string               `json:"html_log_path,omitempty"`
	DirectAction  bool                 `json:"direct_action"`
	RetryCount    int                  `json:"retry_count"`
	Success       bool                 `json:"success"`
	Timestamp     int64                `json:"timestamp"`
}

// InspectParams are the inputs to inspecting a session's page.
type InspectParams struct {
	SessionID         string
	IncludeScreenshot bool
	Quality           int
}

// BrowserState is the artifact-level view included in inspect results.
type BrowserState struct {
	LogsDirectory string                  `json:"logs_directory,omitempty"`
	LogFiles      []artifacts.LogFileInfo `json:"log_files,omitempty"`
}

// InspectResult reports the current state of a session's page.
type InspectResult struct {
	ToolError
	SessionID          string          `json:"session_id,omitempty"`
	Status             Status          `json:"status,omitempty"`
	URL                string          `json:"current_url,omitempty"`
	Title              string          `json:"page_title,omitempty"`
	Content            []ContentBlock  `json:"content,omitempty"`
	AgentThinking      []ThinkingEntry `json:"agent_thinking,omitempty"`
	BrowserState       *BrowserState   `json:"browser_state,omitempty"`
	ScreenshotFilePath string          `json:"screenshot_file_path,omitempty"`
	Diagnostics        []string        `json:"diagnostics,omitempty"`
	Success            bool            `json:"success"`
	Timestamp          int64           `json:"timestamp"`
}

// EndResult reports the outcome of ending a session.
type EndResult struct {
	ToolError
	SessionID string `json:"session_id,omitempty"`
	Identity  string `json:"identity,omitempty"`
	Status    Status `json:"status,omitempty"`
	Success   bool   `json:"success"`
	Timestamp int64  `json:"timestamp"`
}

// ListResult enumerates registered sessions.
type ListResult struct {
	Sessions   []StatusView `json:"sessions"`
	TotalCount int          `json:"total_count"`
	Reaped     int          `json:"reaped,omitempty"`
	Timestamp  int64        `json:"timestamp"`
}
