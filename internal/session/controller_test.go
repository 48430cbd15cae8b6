// File: internal/session/controller_test.go
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

func startSession(t *testing.T, c *Controller) *StartResult {
	t.Helper()
	result := c.Start(context.Background(), StartParams{URL: "https://example.com", Headless: true})
	require.True(t, result.Success, "start failed: %s", result.Message)
	return result
}

func TestStartSessionHappyPath(t *testing.T) {
	cfg := testConfig(t)
	controller, registry, holder := setupController(t, cfg)

	result := startSession(t, controller)

	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, StatusReady, result.Status)
	assert.Equal(t, "default", result.Identity)
	assert.Equal(t, "https://example.com", result.URL)
	assert.Equal(t, "engine-abc123", result.EngineSessionID)
	assert.NotEmpty(t, result.LogsDir)

	client := *holder
	require.NotNil(t, client)
	assert.True(t, client.started)
	assert.Equal(t, 1, client.actCount(), "exactly one probe act on start")

	view, found := registry.Snapshot(result.SessionID)
	require.True(t, found)
	assert.Equal(t, StatusReady, view.Status)
	assert.False(t, view.Complete)

	// The explicit logs directory handed to the engine must exist.
	info, err := os.Stat(result.LogsDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStartSessionMissingURL(t *testing.T) {
	controller, _, _ := setupController(t, testConfig(t))

	result := controller.Start(context.Background(), StartParams{})
	assert.False(t, result.Success)
	assert.Equal(t, CodeMissingParameter, result.Code)
}

func TestStartSessionMissingAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.EngineCfg.APIKey = ""
	controller, _, _ := setupController(t, cfg)

	result := controller.Start(context.Background(), StartParams{URL: "https://example.com"})
	assert.False(t, result.Success)
	assert.Equal(t, CodeMissingAPIKey, result.Code)
}

func TestStartSessionWithoutFactory(t *testing.T) {
	cfg := testConfig(t)
	registry := NewRegistry(testLogger(t))
	controller := NewController(cfg, testLogger(t), registry, nil)

	result := controller.Start(context.Background(), StartParams{URL: "https://example.com"})
	assert.False(t, result.Success)
	assert.Equal(t, CodeEngineNotAvailable, result.Code)
	assert.Equal(t, 0, registry.Len())
}

func TestStartSessionFactoryFailureRetainsErrorEntry(t *testing.T) {
	cfg := testConfig(t)
	registry := NewRegistry(testLogger(t))
	factory := func(ctx context.Context, opts engine.Options) (engine.Client, error) {
		return nil, errors.New("no browser binary")
	}
	controller := NewController(cfg, testLogger(t), registry, factory)
	t.Cleanup(func() { registry.CloseAll(context.Background()) })

	result := controller.Start(context.Background(), StartParams{URL: "https://example.com"})
	assert.False(t, result.Success)
	assert.Equal(t, CodeStartError, result.Code)

	// The failed session stays visible until reaped.
	view, found := registry.Snapshot(result.SessionID)
	require.True(t, found)
	assert.Equal(t, StatusError, view.Status)
	assert.True(t, view.Complete)
	assert.Contains(t, view.Error, "no browser binary")
}

func TestExecuteInstruction(t *testing.T) {
	cfg := testConfig(t)
	controller, registry, holder := setupController(t, cfg)
	start := startSession(t, controller)
	client := *holder

	client.page.mu.Lock()
	client.page.url = "https://example.com/results"
	client.page.mu.Unlock()
	client.actFn = func(instruction string, calls int) (*engine.ActResult, error) {
		return &engine.ActResult{
			Response: "The title is Example",
			Metadata: engine.Metadata{SessionID: client.sessionID, NumStepsExecuted: 3},
		}, nil
	}

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: start.SessionID,
		Task:      "read the page title",
	})
	require.True(t, result.Success, "execute failed: %s", result.Message)
	assert.Equal(t, "read the page title", result.Task)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Equal(t, "The title is Example", result.Content[0].Text)
	assert.False(t, result.DirectAction)
	assert.Equal(t, 0, result.RetryCount)
	assert.Equal(t, "https://example.com/results", result.URL)

	view, _ := registry.Snapshot(start.SessionID)
	assert.Equal(t, StatusReady, view.Status)
	assert.Equal(t, "https://example.com/results", view.URL)
	assert.Equal(t, 1, view.ActionCount)
}

func TestExecuteUnknownSession(t *testing.T) {
	controller, _, _ := setupController(t, testConfig(t))

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: "nope",
		Task:      "do something",
	})
	assert.False(t, result.Success)
	assert.Equal(t, CodeSessionNotFound, result.Code)
}

func TestExecuteMissingTask(t *testing.T) {
	controller, _, _ := setupController(t, testConfig(t))

	result := controller.Execute(context.Background(), ExecuteParams{SessionID: "x"})
	assert.False(t, result.Success)
	assert.Equal(t, CodeMissingParameter, result.Code)
}

func TestExecuteDirectActionBypassesPlanner(t *testing.T) {
	controller, _, holder := setupController(t, testConfig(t))
	start := startSession(t, controller)
	client := *holder
	probeActs := client.actCount()

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: start.SessionID,
		Task:      "click element '#submit'",
	})
	require.True(t, result.Success, "execute failed: %s", result.Message)
	assert.True(t, result.DirectAction)
	assert.Equal(t, 1, client.page.clickCalls)
	assert.Equal(t, probeActs, client.actCount(), "direct actions must not reach the planner")
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	controller, _, holder := setupController(t, testConfig(t))
	start := startSession(t, controller)
	client := *holder

	failures := 2
	client.actFn = func(instruction string, calls int) (*engine.ActResult, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("timeout waiting for selector")
		}
		return &engine.ActResult{Response: "recovered"}, nil
	}

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: start.SessionID,
		Task:      "flaky task",
	})
	require.True(t, result.Success, "execute failed: %s", result.Message)
	assert.Equal(t, 2, result.RetryCount)
	assert.Equal(t, 2, client.page.reloadCalls, "each retry reloads the page first")
	assert.Equal(t, "recovered", result.Content[0].Text)
}

func TestExecuteExhaustedRetriesMarksSessionError(t *testing.T) {
	controller, registry, holder := setupController(t, testConfig(t))
	start := startSession(t, controller)
	client := *holder

	client.actFn = func(instruction string, calls int) (*engine.ActResult, error) {
		return nil, errors.New("navigation failed: net::ERR_CONNECTION_RESET")
	}

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: start.SessionID,
		Task:      "doomed task",
	})
	assert.False(t, result.Success)
	assert.Equal(t, CodeExecutionError, result.Code)
	assert.Equal(t, 2, result.RetryCount)

	view, _ := registry.Snapshot(start.SessionID)
	assert.Equal(t, StatusError, view.Status)
	assert.True(t, view.Complete)

	// The session must still be endable after a terminal error.
	end := controller.End(context.Background(), start.SessionID)
	assert.True(t, end.Success)
}

func TestExecuteGuardrailIsNeverRetried(t *testing.T) {
	controller, registry, holder := setupController(t, testConfig(t))
	start := startSession(t, controller)
	client := *holder
	probeActs := client.actCount()

	client.actFn = func(instruction string, calls int) (*engine.ActResult, error) {
		return nil, &engine.GuardrailError{Instruction: instruction, Reason: "refused to enter payment details"}
	}

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: start.SessionID,
		Task:      "buy everything",
	})
	assert.False(t, result.Success)
	assert.Equal(t, CodeGuardrailTriggered, result.Code)
	assert.Equal(t, 0, result.RetryCount)
	assert.Equal(t, probeActs+1, client.actCount(), "guardrail refusals are terminal for the act")
	assert.Equal(t, 0, client.page.reloadCalls)

	// The session survives a refusal.
	view, _ := registry.Snapshot(start.SessionID)
	assert.Equal(t, StatusReady, view.Status)
	assert.False(t, view.Complete)
}

func TestExecuteNonTransientFailureDoesNotRetry(t *testing.T) {
	controller, _, holder := setupController(t, testConfig(t))
	start := startSession(t, controller)
	client := *holder

	client.actFn = func(instruction string, calls int) (*engine.ActResult, error) {
		return nil, errors.New("planner returned an empty response")
	}

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: start.SessionID,
		Task:      "task",
	})
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.RetryCount)
	assert.Equal(t, 0, client.page.reloadCalls)
}

func TestExecuteExtractsAgentThinking(t *testing.T) {
	cfg := testConfig(t)
	controller, _, holder := setupController(t, cfg)
	start := startSession(t, controller)
	client := *holder

	htmlLog := filepath.Join(client.logsDir, "act_001_testact.html")
	html := `<html><body>
		<div class="agent-thought">The form needs an email first.</div>
		<div class="agent-thought">Submitting now.</div>
		<div class="agent-thought">Submitting now.</div>
	</body></html>`
	require.NoError(t, os.WriteFile(htmlLog, []byte(html), 0o644))

	client.actFn = func(instruction string, calls int) (*engine.ActResult, error) {
		return &engine.ActResult{Response: "submitted", HTMLLogPath: htmlLog}, nil
	}

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: start.SessionID,
		Task:      "submit the form",
	})
	require.True(t, result.Success, "execute failed: %s", result.Message)
	require.Len(t, result.AgentThinking, 2, "duplicate thoughts are collapsed")
	assert.Equal(t, "The form needs an email first.", result.AgentThinking[0].Content)
	assert.Equal(t, "html_log", result.AgentThinking[0].Source)
	assert.Equal(t, htmlLog, result.HTMLLogPath)
}

func TestExecuteThinkingFallsBackToRawLines(t *testing.T) {
	controller, _, holder := setupController(t, testConfig(t))
	start := startSession(t, controller)
	client := *holder

	client.logLines = []string{
		`some noise`,
		`think("looking for the login button")`,
	}
	client.actFn = func(instruction string, calls int) (*engine.ActResult, error) {
		return &engine.ActResult{Response: "done"}, nil
	}

	result := controller.Execute(context.Background(), ExecuteParams{
		SessionID: start.SessionID,
		Task:      "log in",
	})
	require.True(t, result.Success, "execute failed: %s", result.Message)
	require.Len(t, result.AgentThinking, 1)
	assert.Equal(t, "looking for the login button", result.AgentThinking[0].Content)
	assert.Equal(t, "raw_output", result.AgentThinking[0].Source)
}

func TestEndSession(t *testing.T) {
	controller, registry, holder := setupController(t, testConfig(t))
	start := startSession(t, controller)

	result := controller.End(context.Background(), start.SessionID)
	require.True(t, result.Success)
	assert.Equal(t, StatusEnded, result.Status)
	assert.Equal(t, "default", result.Identity)
	assert.True(t, (*holder).isClosed())
	assert.Equal(t, 0, registry.Len())

	// Ending twice reports the session as gone.
	again := controller.End(context.Background(), start.SessionID)
	assert.False(t, again.Success)
	assert.Equal(t, CodeSessionNotFound, again.Code)
}

func TestEndSessionMissingID(t *testing.T) {
	controller, _, _ := setupController(t, testConfig(t))
	result := controller.End(context.Background(), "")
	assert.False(t, result.Success)
	assert.Equal(t, CodeMissingParameter, result.Code)
}

func TestListSessions(t *testing.T) {
	controller, _, _ := setupController(t, testConfig(t))

	before := controller.List(context.Background())
	start := startSession(t, controller)

	during := controller.List(context.Background())
	assert.Equal(t, before.TotalCount+1, during.TotalCount)

	found := false
	for _, v := range during.Sessions {
		if v.SessionID == start.SessionID {
			found = true
			assert.Equal(t, StatusReady, v.Status)
		}
	}
	assert.True(t, found)

	controller.End(context.Background(), start.SessionID)
	after := controller.List(context.Background())
	assert.Equal(t, before.TotalCount, after.TotalCount)
}

func TestConcurrentExecutesOnOneSessionSerialize(t *testing.T) {
	controller, _, holder := setupController(t, testConfig(t))
	start := startSession(t, controller)
	client := *holder

	var concurrent, maxConcurrent int
	gate := make(chan struct{}, 1)
	client.actFn = func(instruction string, calls int) (*engine.ActResult, error) {
		select {
		case gate <- struct{}{}:
		default:
			t.Error("two instructions ran concurrently on one session")
		}
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		concurrent--
		<-gate
		return &engine.ActResult{Response: fmt.Sprintf("done %d", calls)}, nil
	}

	done := make(chan *ExecuteResult, 8)
	for i := 0; i < 8; i++ {
		go func() {
			done <- controller.Execute(context.Background(), ExecuteParams{
				SessionID: start.SessionID,
				Task:      "task",
			})
		}()
	}
	for i := 0; i < 8; i++ {
		res := <-done
		assert.True(t, res.Success, "execute failed: %s", res.Message)
	}
	assert.LessOrEqual(t, maxConcurrent, 1)
}
