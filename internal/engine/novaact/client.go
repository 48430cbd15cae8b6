// File: internal/engine/novaact/client.go

// Package novaact implements the engine boundary on top of a local
// Chrome instance driven through chromedp, with an LLM planner turning
// natural-language instructions into page actions.
package novaact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/novaact-mcp/internal/config"
	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

// Config tunes the engine implementation beyond per-instance Options.
type Config struct {
	Model      string
	MaxSteps   int
	ActTimeout time.Duration
}

// Client drives one browser through chromedp and plans its steps with
// an LLM. It implements engine.Client.
type Client struct {
	opts    engine.Options
	cfg     Config
	logger  *zap.Logger
	planner *Planner

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	page      *pageHandle
	sessionID string
	logsDir   string

	mu       sync.Mutex
	isClosed bool
	actSeq   int
	logLines []string
}

var _ engine.Client = (*Client)(nil)

// New builds an unstarted client. The browser is not launched until
// Start is called.
func New(ctx context.Context, opts engine.Options, cfg Config, logger *zap.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("planner model is required")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 30
	}
	if cfg.ActTimeout <= 0 {
		cfg.ActTimeout = 180 * time.Second
	}

	sessionID := uuid.New().String()
	logsDir := opts.LogsDirectory
	if logsDir == "" {
		logsDir = filepath.Join(os.TempDir(), sessionID+"_act_logs")
	}

	planner, err := NewPlanner(ctx, opts.APIKey, cfg.Model, logger.Named("planner"))
	if err != nil {
		return nil, fmt.Errorf("failed to create planner: %w", err)
	}

	return &Client{
		opts:      opts,
		cfg:       cfg,
		logger:    logger.With(zap.String("engine_session_id", sessionID)),
		planner:   planner,
		sessionID: sessionID,
		logsDir:   logsDir,
	}, nil
}

// NewFactory adapts the configured engine settings into an engine.Factory.
func NewFactory(engineCfg config.EngineConfig, logger *zap.Logger) engine.Factory {
	return func(ctx context.Context, opts engine.Options) (engine.Client, error) {
		return New(ctx, opts, Config{
			Model:      engineCfg.Model,
			MaxSteps:   engineCfg.MaxSteps,
			ActTimeout: engineCfg.ActTimeout,
		}, logger)
	}
}

// Start launches Chrome, connects CDP and navigates to the starting page.
func (c *Client) Start(ctx context.Context) error {
	if err := os.MkdirAll(c.logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if c.opts.Headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	}
	if c.opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(c.opts.UserDataDir))
	}
	for _, arg := range c.opts.ExtraArgs {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			allocOpts = append(allocOpts, chromedp.Flag(key, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(key, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	c.allocCancel = allocCancel
	c.browserCtx = browserCtx
	c.browserCancel = browserCancel

	// Establish the target and CDP connection.
	startCtx, cancel := combineContext(browserCtx, ctx)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	c.page = &pageHandle{sessionCtx: browserCtx}

	if c.opts.StartingPage != "" {
		if err := c.page.Navigate(ctx, c.opts.StartingPage); err != nil {
			c.teardown()
			return fmt.Errorf("failed to open starting page: %w", err)
		}
	}

	c.logger.Info("Browser session started.",
		zap.String("starting_page", c.opts.StartingPage),
		zap.Bool("headless", c.opts.Headless),
		zap.String("logs_dir", c.logsDir))
	return nil
}

// Page returns the direct page surface. Nil before Start succeeds.
func (c *Client) Page() engine.Page {
	if c.page == nil {
		return nil
	}
	return c.page
}

func (c *Client) SessionID() string { return c.sessionID }

func (c *Client) LogsDirectory() string { return c.logsDir }

// LogLines returns a copy of the raw planner log lines written so far.
func (c *Client) LogLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.logLines))
	copy(out, c.logLines)
	return out
}

func (c *Client) appendLogLine(line string) {
	c.mu.Lock()
	c.logLines = append(c.logLines, line)
	c.mu.Unlock()
}

// Close shuts the browser down. It is idempotent.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil
	}
	c.isClosed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if c.browserCtx != nil {
			// Ask the browser to exit cleanly before cancelling contexts.
			_ = chromedp.Cancel(c.browserCtx)
		}
		c.teardown()
	}()

	select {
	case <-done:
		c.logger.Info("Browser session closed.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser close interrupted: %w", ctx.Err())
	}
}

func (c *Client) teardown() {
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
}

// combineContext derives a context from the session context that is also
// cancelled when the caller's context is done.
func combineContext(sessionCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(sessionCtx)
	go func() {
		select {
		case <-callCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
