// File: internal/session/helpers_test.go
package session

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/novaact-mcp/internal/config"
	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zapcore.WarnLevel))
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.EngineCfg.APIKey = "test-key"
	cfg.BrowserCfg.ProfilesDir = t.TempDir()
	return cfg
}

// fakePage is a scripted engine.Page for controller tests.
type fakePage struct {
	mu          sync.Mutex
	url         string
	title       string
	shot        []byte
	shotErr     error
	urlErr      error
	titleErr    error
	clickErr    error
	navCalls    int
	reloadCalls int
	clickCalls  int
	fillCalls   int
	shotCalls   int
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, p.urlErr
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, p.titleErr
}

func (p *fakePage) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shotCalls++
	return p.shot, p.shotErr
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navCalls++
	p.url = url
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloadCalls++
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickCalls++
	return p.clickErr
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fillCalls++
	return nil
}

// fakeClient is a scripted engine.Client. actFn, when set, handles every
// Act call; the default succeeds with a canned response.
type fakeClient struct {
	mu        sync.Mutex
	page      *fakePage
	sessionID string
	logsDir   string
	logLines  []string
	actFn     func(instruction string, calls int) (*engine.ActResult, error)
	actCalls  int
	started   bool
	closed    bool
}

var _ engine.Client = (*fakeClient)(nil)

func newFakeClient(logsDir string) *fakeClient {
	return &fakeClient{
		page:      &fakePage{url: "https://example.com", title: "Example"},
		sessionID: "engine-abc123",
		logsDir:   logsDir,
	}
}

func (c *fakeClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *fakeClient) Act(ctx context.Context, instruction string, opts engine.ActOptions) (*engine.ActResult, error) {
	c.mu.Lock()
	c.actCalls++
	calls := c.actCalls
	fn := c.actFn
	c.mu.Unlock()

	if fn != nil {
		return fn(instruction, calls)
	}
	return &engine.ActResult{
		Response: "ok",
		Metadata: engine.Metadata{SessionID: c.sessionID, NumStepsExecuted: 1},
	}, nil
}

func (c *fakeClient) Page() engine.Page     { return c.page }
func (c *fakeClient) SessionID() string     { return c.sessionID }
func (c *fakeClient) LogsDirectory() string { return c.logsDir }
func (c *fakeClient) LogLines() []string    { return append([]string(nil), c.logLines...) }

func (c *fakeClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) actCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actCalls
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// setupController wires a controller around a fake engine factory. The
// returned fakeClient pointer is populated once a session starts.
func setupController(t *testing.T, cfg *config.Config) (*Controller, *Registry, **fakeClient) {
	t.Helper()
	registry := NewRegistry(testLogger(t))
	holder := new(*fakeClient)
	factory := func(ctx context.Context, opts engine.Options) (engine.Client, error) {
		client := newFakeClient(opts.LogsDirectory)
		*holder = client
		return client, nil
	}
	controller := NewController(cfg, testLogger(t), registry, factory)

	t.Cleanup(func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		registry.CloseAll(ctx)
	})
	return controller, registry, holder
}
