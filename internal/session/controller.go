// File: internal/session/controller.go

// Package session owns the lifecycle of browser automation sessions: the
// registry of live sessions, the per-session serial executor, and the
// controller that runs start/execute/inspect/end flows on top of them.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/novaact-mcp/internal/artifacts"
	"github.com/xkilldash9x/novaact-mcp/internal/config"
	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

// initialObserveInstruction is the probe act issued right after the
// browser starts. Its only purpose is to make the engine materialize its
// own session id and logs directory.
const initialObserveInstruction = "Observe the current page and respond with the title."

// rawLogLiner is probed on engine clients that keep raw planner output
// lines in memory; they feed the reasoning extractor fallback.
type rawLogLiner interface {
	LogLines() []string
}

// Controller implements the session-facing tool operations. All engine
// work funnels through each session's executor; the controller itself
// holds no per-session state.
type Controller struct {
	cfg       config.Interface
	logger    *zap.Logger
	registry  *Registry
	factory   engine.Factory
	extractor *artifacts.Extractor
	clock     func() time.Time
}

// NewController wires a controller. A nil factory marks the engine as
// unavailable; session starts will fail with a structured error.
func NewController(cfg config.Interface, logger *zap.Logger, registry *Registry, factory engine.Factory) *Controller {
	extractor, err := artifacts.NewExtractor()
	if err != nil {
		// Default patterns are compile-time constants.
		panic(fmt.Sprintf("default thinking patterns failed to compile: %v", err))
	}
	return &Controller{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		factory:   factory,
		extractor: extractor,
		clock:     time.Now,
	}
}

// Registry exposes the underlying registry for housekeeping loops.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// LogsDir reports the resolved logs directory of a session.
func (c *Controller) LogsDir(sessionID string) (string, bool) {
	view, ok := c.registry.Snapshot(sessionID)
	if !ok || view.LogsDir == "" {
		return "", false
	}
	return view.LogsDir, true
}

func (c *Controller) now() int64 { return c.clock().Unix() }

// Start creates a session, spins up its executor and launches the browser
// on the session's worker goroutine.
func (c *Controller) Start(ctx context.Context, params StartParams) *StartResult {
	if params.URL == "" {
		return &StartResult{
			ToolError: ToolError{Message: "url is required", Code: CodeMissingParameter},
			Timestamp: c.now(),
		}
	}
	if c.factory == nil {
		return &StartResult{
			ToolError: ToolError{Message: "browser automation engine is not configured", Code: CodeEngineNotAvailable},
			Timestamp: c.now(),
		}
	}
	if c.cfg.Engine().APIKey == "" {
		return &StartResult{
			ToolError: ToolError{Message: "NOVA_ACT_API_KEY is not set", Code: CodeMissingAPIKey},
			Timestamp: c.now(),
		}
	}

	identity := params.Identity
	if identity == "" {
		identity = c.cfg.Browser().DefaultIdentity
	}
	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	executor := NewExecutor(c.cfg.Session().QueueSize, c.logger.Named("executor").With(zap.String("session_id", sessionID)))
	if !c.registry.Create(sessionID, identity, params.URL, executor) {
		executor.Close()
		return &StartResult{
			ToolError: ToolError{Message: fmt.Sprintf("session %s already exists", sessionID), Code: CodeStartError},
			SessionID: sessionID,
			Timestamp: c.now(),
		}
	}

	value, err := executor.Submit(ctx, func() (any, error) {
		return c.startWorker(sessionID, identity, params), nil
	})
	if err != nil {
		c.registry.Update(sessionID, func(s *Session) {
			s.Status = StatusError
			s.Error = err.Error()
			s.Complete = true
		})
		return &StartResult{
			ToolError: ToolError{Message: err.Error(), Code: CodeStartError},
			SessionID: sessionID,
			Timestamp: c.now(),
		}
	}
	return value.(*StartResult)
}

// startWorker runs on the session's worker goroutine.
func (c *Controller) startWorker(sessionID, identity string, params StartParams) *StartResult {
	logger := c.logger.With(zap.String("session_id", sessionID))

	fail := func(err error) *StartResult {
		logger.Error("Session start failed.", zap.Error(err))
		c.registry.Update(sessionID, func(s *Session) {
			s.Status = StatusError
			s.Error = err.Error()
			s.Complete = true
		})
		return &StartResult{
			ToolError: ToolError{Message: err.Error(), Code: CodeStartError},
			SessionID: sessionID,
			Identity:  identity,
			Status:    StatusError,
			Timestamp: c.now(),
		}
	}

	c.registry.Update(sessionID, func(s *Session) { s.Status = StatusStartingBrowser })

	profileDir := filepath.Join(c.cfg.Browser().ProfilesDir, sanitizeIdentity(identity))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return fail(fmt.Errorf("failed to create profile directory: %w", err))
	}
	logsDir := filepath.Join(os.TempDir(), sessionID+"_sdk_logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fail(fmt.Errorf("failed to create logs directory: %w", err))
	}

	startCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Engine().StartTimeout)
	defer cancel()

	client, err := c.factory(startCtx, engine.Options{
		StartingPage:  params.URL,
		Headless:      params.Headless,
		APIKey:        c.cfg.Engine().APIKey,
		UserDataDir:   profileDir,
		LogsDirectory: logsDir,
		ExtraArgs:     c.cfg.Browser().Args,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create engine instance: %w", err))
	}
	if err := client.Start(startCtx); err != nil {
		return fail(fmt.Errorf("failed to start browser: %w", err))
	}

	c.registry.SetClient(sessionID, client)

	// Probe act. Failure here is not fatal: the browser is up, we just
	// could not confirm the engine session metadata yet.
	engineSessionID := client.SessionID()
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if res, err := client.Act(probeCtx, initialObserveInstruction, engine.ActOptions{}); err != nil {
		logger.Warn("Initial observation act failed.", zap.Error(err))
	} else if res.Metadata.SessionID != "" {
		engineSessionID = res.Metadata.SessionID
	}
	probeCancel()

	resolvedLogs, ok := artifacts.ResolveLogsDir(client, artifacts.ResolveOptions{
		BaseDir:         logsDir,
		EngineSessionID: engineSessionID,
	})
	if !ok {
		resolvedLogs = logsDir
	}

	var currentURL string
	if page := client.Page(); page != nil {
		urlCtx, urlCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if u, err := page.URL(urlCtx); err == nil {
			currentURL = u
		}
		urlCancel()
	}
	if currentURL == "" {
		currentURL = params.URL
	}

	c.registry.Update(sessionID, func(s *Session) {
		s.Status = StatusReady
		s.URL = currentURL
		s.EngineSessionID = engineSessionID
		s.LogsDir = resolvedLogs
	})

	logger.Info("Session started.",
		zap.String("identity", identity),
		zap.String("engine_session_id", engineSessionID),
		zap.String("logs_dir", resolvedLogs))

	return &StartResult{
		SessionID:       sessionID,
		EngineSessionID: engineSessionID,
		Identity:        identity,
		Status:          StatusReady,
		URL:             currentURL,
		LogsDir:         resolvedLogs,
		Success:         true,
		Timestamp:       c.now(),
	}
}

// Execute runs one natural-language instruction on the session's worker.
func (c *Controller) Execute(ctx context.Context, params ExecuteParams) *ExecuteResult {
	if params.SessionID == "" || params.Task == "" {
		return &ExecuteResult{
			ToolError: ToolError{Message: "session_id and task are required", Code: CodeMissingParameter},
			Timestamp: c.now(),
		}
	}
	executor, ok := c.registry.Executor(params.SessionID)
	if !ok {
		return &ExecuteResult{
			ToolError: ToolError{Message: fmt.Sprintf("session %s not found", params.SessionID), Code: CodeSessionNotFound},
			SessionID: params.SessionID,
			Timestamp: c.now(),
		}
	}

	value, err := executor.Submit(ctx, func() (any, error) {
		return c.executeWorker(params), nil
	})
	if err != nil {
		return &ExecuteResult{
			ToolError: ToolError{Message: err.Error(), Code: CodeExecutionError},
			SessionID: params.SessionID,
			Timestamp: c.now(),
		}
	}
	return value.(*ExecuteResult)
}

// executeWorker runs on the session's worker goroutine.
func (c *Controller) executeWorker(params ExecuteParams) *ExecuteResult {
	sessionID := params.SessionID
	logger := c.logger.With(zap.String("session_id", sessionID))

	client, ok := c.registry.Client(sessionID)
	if !ok {
		return &ExecuteResult{
			ToolError: ToolError{Message: "no engine instance bound to this session", Code: CodeInstanceNotFound},
			SessionID: sessionID,
			Timestamp: c.now(),
		}
	}

	c.registry.Update(sessionID, func(s *Session) { s.Status = StatusExecutingStep })

	instruction := params.Task
	if params.Instructions != "" {
		instruction = instruction + "\n" + params.Instructions
	}

	timeout := c.cfg.Engine().ActTimeout
	if params.TimeoutSec > 0 {
		timeout = time.Duration(params.TimeoutSec) * time.Second
	}
	maxRetries := c.cfg.Engine().MaxRetryAttempts
	if params.RetryAttempts > 0 {
		maxRetries = params.RetryAttempts
	}

	direct, isDirect := matchDirectAction(instruction)

	var (
		res        *engine.ActResult
		response   string
		err        error
		retryCount int
	)
	for {
		actCtx, cancel := context.WithTimeout(context.Background(), timeout)
		if isDirect {
			response, err = direct.apply(actCtx, client.Page())
		} else {
			res, err = client.Act(actCtx, instruction, engine.ActOptions{
				Timeout: timeout,
				Schema:  params.Schema,
			})
			if err == nil {
				response = res.Response
			}
		}
		cancel()

		if err == nil {
			break
		}
		if engine.IsGuardrail(err) {
			return c.recordGuardrail(sessionID, params.Task, instruction, err, isDirect, retryCount)
		}
		if !engine.IsTransient(err) || retryCount >= maxRetries {
			return c.recordFailure(sessionID, params.Task, instruction, err, isDirect, retryCount)
		}

		retryCount++
		logger.Warn("Transient step failure, reloading page before retry.",
			zap.Int("attempt", retryCount), zap.Error(err))
		reloadCtx, reloadCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if rerr := client.Page().Reload(reloadCtx); rerr != nil {
			logger.Debug("Recovery reload failed.", zap.Error(rerr))
		}
		reloadCancel()
	}

	// Post-act state capture. Each read is independently fault tolerant.
	var currentURL string
	urlCtx, urlCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if u, uerr := client.Page().URL(urlCtx); uerr == nil {
		currentURL = u
	}
	urlCancel()

	view, _ := c.registry.Snapshot(sessionID)
	htmlLog := ""
	if res != nil {
		htmlLog = res.HTMLLogPath
	}
	if htmlLog == "" && view.LogsDir != "" {
		if latest, found := artifacts.LatestHTMLLog(view.LogsDir); found {
			htmlLog = latest
		}
	}

	var rawLines []string
	if liner, ok := client.(rawLogLiner); ok {
		rawLines = liner.LogLines()
	}
	thoughts, debug := c.extractor.Extract(htmlLog, rawLines)
	thinking := make([]ThinkingEntry, 0, len(thoughts))
	for _, t := range thoughts {
		thinking = append(thinking, ThinkingEntry{Type: "reasoning", Content: t, Source: debug.Source})
	}

	record := ActionRecord{
		Instruction:  instruction,
		Response:     response,
		DirectAction: isDirect,
		Success:      true,
		RetryCount:   retryCount,
		HTMLLogPath:  htmlLog,
		Timestamp:    c.clock(),
	}
	c.registry.Update(sessionID, func(s *Session) {
		s.Status = StatusReady
		if currentURL != "" {
			s.URL = currentURL
		}
		s.Results = append(s.Results, record)
	})

	result := &ExecuteResult{
		SessionID:     sessionID,
		Task:          params.Task,
		Content:       []ContentBlock{{Type: "text", Text: response}},
		AgentThinking: thinking,
		URL:           currentURL,
		HTMLLogPath:   htmlLog,
		DirectAction:  isDirect,
		RetryCount:    retryCount,
		Success:       true,
		Timestamp:     c.now(),
	}
	if c.cfg.Server().Debug {
		result.ThinkingDebug = &debug
	}
	if res != nil && res.Parsed != nil {
		result.Parsed = res.Parsed
	}
	return result
}

// recordGuardrail surfaces a refusal without tearing the session down; the
// browser stays usable for subsequent instructions.
func (c *Controller) recordGuardrail(sessionID, task, instruction string, err error, isDirect bool, retryCount int) *ExecuteResult {
	c.registry.Update(sessionID, func(s *Session) {
		s.Status = StatusReady
		s.Results = append(s.Results, ActionRecord{
			Instruction:  instruction,
			DirectAction: isDirect,
			Success:      false,
			Error:        err.Error(),
			RetryCount:   retryCount,
			Timestamp:    c.clock(),
		})
	})
	return &ExecuteResult{
		ToolError:    ToolError{Message: err.Error(), Code: CodeGuardrailTriggered},
		SessionID:    sessionID,
		Task:         task,
		DirectAction: isDirect,
		RetryCount:   retryCount,
		Timestamp:    c.now(),
	}
}

func (c *Controller) recordFailure(sessionID, task, instruction string, err error, isDirect bool, retryCount int) *ExecuteResult {
	c.logger.Error("Instruction failed.",
		zap.String("session_id", sessionID),
		zap.Int("retries", retryCount),
		zap.Error(err))
	c.registry.Update(sessionID, func(s *Session) {
		s.Status = StatusError
		s.Error = err.Error()
		s.Complete = true
		s.Results = append(s.Results, ActionRecord{
			Instruction:  instruction,
			DirectAction: isDirect,
			Success:      false,
			Error:        err.Error(),
			RetryCount:   retryCount,
			Timestamp:    c.clock(),
		})
	})
	return &ExecuteResult{
		ToolError:    ToolError{Message: err.Error(), Code: CodeExecutionError},
		SessionID:    sessionID,
		Task:         task,
		DirectAction: isDirect,
		RetryCount:   retryCount,
		Timestamp:    c.now(),
	}
}

// End shuts the session down and removes it from the registry. The
// registry entry is removed even when engine teardown fails.
func (c *Controller) End(ctx context.Context, sessionID string) *EndResult {
	if sessionID == "" {
		return &EndResult{
			ToolError: ToolError{Message: "session_id is required", Code: CodeMissingParameter},
			Timestamp: c.now(),
		}
	}
	executor, ok := c.registry.Executor(sessionID)
	if !ok {
		return &EndResult{
			ToolError: ToolError{Message: fmt.Sprintf("session %s not found", sessionID), Code: CodeSessionNotFound},
			SessionID: sessionID,
			Timestamp: c.now(),
		}
	}
	view, _ := c.registry.Snapshot(sessionID)

	var closeErr error
	_, err := executor.Submit(ctx, func() (any, error) {
		if client, ok := c.registry.Client(sessionID); ok {
			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			// Prefer a structured shutdown when the engine offers one,
			// falling back to a plain close.
			if sd, ok := client.(interface{ Shutdown(context.Context) error }); ok {
				if closeErr = sd.Shutdown(closeCtx); closeErr == nil {
					return nil, nil
				}
			}
			closeErr = client.Close(closeCtx)
		}
		return nil, nil
	})
	if err != nil {
		c.logger.Warn("Session end could not run on its executor.",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	if closeErr != nil {
		c.logger.Warn("Engine close reported an error during session end.",
			zap.String("session_id", sessionID), zap.Error(closeErr))
	}

	// Shut the executor down without waiting for queued work; anything
	// still pending fails fast with ErrExecutorClosed.
	executor.Close()
	c.registry.Remove(sessionID)

	c.logger.Info("Session ended.", zap.String("session_id", sessionID))
	return &EndResult{
		SessionID: sessionID,
		Identity:  view.Identity,
		Status:    StatusEnded,
		Success:   true,
		Timestamp: c.now(),
	}
}

// List returns all registered sessions, reaping stale ones first.
func (c *Controller) List(ctx context.Context) *ListResult {
	reaped := c.registry.GarbageCollect(c.cfg.Session().Retention)
	sessions := c.registry.List()
	return &ListResult{
		Sessions:   sessions,
		TotalCount: len(sessions),
		Reaped:     reaped,
		Timestamp:  c.now(),
	}
}

// sanitizeIdentity keeps profile directory names filesystem safe.
func sanitizeIdentity(identity string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, identity)
}
