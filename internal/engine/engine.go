// File: internal/engine/engine.go

// Package engine defines the boundary to the natural-language browser
// automation engine. Everything above this package talks to the engine
// through the Client and Page interfaces; the concrete implementation
// lives in internal/engine/novaact.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client is one live automation engine instance bound to a single browser.
type Client interface {
	// Start launches the browser and navigates to the starting page.
	Start(ctx context.Context) error

	// Act executes one natural-language instruction against the page,
	// driving the browser through as many low-level steps as needed.
	Act(ctx context.Context, instruction string, opts ActOptions) (*ActResult, error)

	// Page exposes direct page-level operations that bypass the planner.
	Page() Page

	// SessionID reports the engine's own session identifier, which is
	// distinct from the registry session id.
	SessionID() string

	// LogsDirectory reports where the engine writes its per-act logs.
	LogsDirectory() string

	// Close releases the browser and all engine resources.
	Close(ctx context.Context) error
}

// Page is the direct, planner-free surface of the live browser page.
type Page interface {
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, quality int) ([]byte, error)
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
}

// ActOptions tunes a single Act call. Zero values fall back to the
// client's configured defaults.
type ActOptions struct {
	Timeout  time.Duration
	MaxSteps int
	// Schema, when non-empty, is a JSON schema the engine asks the
	// planner to shape its final answer with.
	Schema string
}

// Metadata describes one completed act.
type Metadata struct {
	SessionID        string `json:"session_id"`
	ActID            string `json:"act_id"`
	NumStepsExecuted int    `json:"num_steps_executed"`
}

// ActResult is the outcome of a successful Act call.
type ActResult struct {
	// Response is the planner's final free-text answer.
	Response string
	// Parsed holds the schema-shaped answer when ActOptions.Schema was
	// set and the response parsed cleanly; nil otherwise.
	Parsed map[string]any
	// Metadata identifies the act within the engine session.
	Metadata Metadata
	// HTMLLogPath points at the per-act HTML log, empty if none was written.
	HTMLLogPath string
}

// Options configures a new client instance.
type Options struct {
	StartingPage  string
	Headless      bool
	APIKey        string
	UserDataDir   string
	LogsDirectory string
	ExtraArgs     []string
}

// Factory builds a new engine client. A nil factory means the engine is
// not available in this deployment.
type Factory func(ctx context.Context, opts Options) (Client, error)

// GuardrailError reports that the engine refused to perform an
// instruction. It is terminal for the act: callers must not retry it.
type GuardrailError struct {
	Instruction string
	Reason      string
}

func (e *GuardrailError) Error() string {
	return fmt.Sprintf("instruction refused by safety guardrail: %s", e.Reason)
}

// IsGuardrail reports whether err is (or wraps) a guardrail refusal.
func IsGuardrail(err error) bool {
	var g *GuardrailError
	return errors.As(err, &g)
}

// IsTransient reports whether err looks like a timing or navigation
// failure worth retrying after a page reload. Guardrail refusals are
// never transient.
func IsTransient(err error) bool {
	if err == nil || IsGuardrail(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "navigation")
}
