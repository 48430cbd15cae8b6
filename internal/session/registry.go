// File: internal/session/registry.go
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusStartingBrowser Status = "starting_browser"
	StatusReady           Status = "ready"
	StatusExecutingStep   Status = "executing_step"
	StatusError           Status = "error"
	StatusEnded           Status = "ended"
)

// ActionRecord is the stored outcome of one executed instruction.
type ActionRecord struct {
	Instruction  string    `json:"instruction"`
	Response     string    `json:"response,omitempty"`
	DirectAction bool      `json:"direct_action"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	RetryCount   int       `json:"retry_count"`
	HTMLLogPath  string    `json:"html_log_path,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Session is the registry's record of one browser session. Mutations go
// through Registry.Update so the lock and bookkeeping invariants hold.
type Session struct {
	ID              string
	Identity        string
	Status          Status
	URL             string
	EngineSessionID string
	LogsDir         string
	Results         []ActionRecord
	Complete        bool
	Error           string
	CreatedAt       time.Time
	LastUpdated     time.Time

	client   engine.Client
	executor *Executor
}

// StatusView is the copyable, engine-free projection of a session handed
// to callers outside this package.
type StatusView struct {
	SessionID       string    `json:"session_id"`
	Identity        string    `json:"identity"`
	Status          Status    `json:"status"`
	URL             string    `json:"url,omitempty"`
	EngineSessionID string    `json:"nova_session_id,omitempty"`
	LogsDir         string    `json:"logs_dir,omitempty"`
	Complete        bool      `json:"complete"`
	Error           string    `json:"error,omitempty"`
	ActionCount     int       `json:"action_count"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
}

func (s *Session) view() StatusView {
	return StatusView{
		SessionID:       s.ID,
		Identity:        s.Identity,
		Status:          s.Status,
		URL:             s.URL,
		EngineSessionID: s.EngineSessionID,
		LogsDir:         s.LogsDir,
		Complete:        s.Complete,
		Error:           s.Error,
		ActionCount:     len(s.Results),
		CreatedAt:       s.CreatedAt,
		LastUpdated:     s.LastUpdated,
	}
}

// Registry is the concurrency-safe store of all live sessions. It never
// calls into the engine while holding its lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *zap.Logger
	clock    func() time.Time
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		clock:    time.Now,
	}
}

// Create registers a new session in the initializing state and returns
// false if the id is already taken.
func (r *Registry) Create(id, identity, url string, executor *Executor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return false
	}
	now := r.clock()
	r.sessions[id] = &Session{
		ID:          id,
		Identity:    identity,
		Status:      StatusInitializing,
		URL:         url,
		CreatedAt:   now,
		LastUpdated: now,
		executor:    executor,
	}
	return true
}

// Update applies fn to the session under the lock and refreshes its
// last-updated stamp. Completion is monotonic: once a session is marked
// complete it stays complete no matter what fn does.
func (r *Registry) Update(id string, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	wasComplete := s.Complete
	fn(s)
	if wasComplete {
		s.Complete = true
	}
	s.LastUpdated = r.clock()
	return true
}

// Snapshot returns a copy of the session's visible state.
func (r *Registry) Snapshot(id string) (StatusView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return StatusView{}, false
	}
	return s.view(), true
}

// Client returns the engine instance bound to the session, if any.
func (r *Registry) Client(id string) (engine.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.client == nil {
		return nil, false
	}
	return s.client, true
}

// SetClient binds the engine instance to the session.
func (r *Registry) SetClient(id string, client engine.Client) bool {
	return r.Update(id, func(s *Session) { s.client = client })
}

// Executor returns the session's serial executor.
func (r *Registry) Executor(id string) (*Executor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.executor == nil {
		return nil, false
	}
	return s.executor, true
}

// Remove drops the session from the registry, returning its record so the
// caller can release the engine and executor outside the lock.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// List returns views of every registered session.
func (r *Registry) List() []StatusView {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]StatusView, 0, len(r.sessions))
	for _, s := range r.sessions {
		views = append(views, s.view())
	}
	return views
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// GarbageCollect removes sessions that are complete and have been idle
// longer than retention. Engine and executor teardown happens outside the
// lock. Returns the number of sessions reaped.
func (r *Registry) GarbageCollect(retention time.Duration) int {
	cutoff := r.clock().Add(-retention)

	r.mu.Lock()
	var victims []*Session
	for id, s := range r.sessions {
		if s.Complete && s.LastUpdated.Before(cutoff) {
			victims = append(victims, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		r.release(s)
		r.logger.Info("Reaped stale session.",
			zap.String("session_id", s.ID),
			zap.Time("last_updated", s.LastUpdated))
	}
	return len(victims)
}

// CloseAll tears down every session concurrently. Used at server shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	victims := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		victims = append(victims, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range victims {
		g.Go(func() error {
			if s.client != nil {
				if err := s.client.Close(ctx); err != nil {
					r.logger.Warn("Session close failed during shutdown.",
						zap.String("session_id", s.ID), zap.Error(err))
				}
			}
			if s.executor != nil {
				s.executor.Close()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Registry) release(s *Session) {
	if s.executor != nil {
		s.executor.Close()
	}
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.client.Close(ctx); err != nil {
			r.logger.Warn("Engine close failed during reaping.",
				zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}
