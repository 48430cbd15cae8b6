// File: internal/session/executor.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrExecutorClosed is returned for work submitted to a closed executor.
var ErrExecutorClosed = errors.New("session executor is closed")

type taskResult struct {
	value any
	err   error
}

type task struct {
	fn     func() (any, error)
	result chan taskResult
}

// Executor serializes all engine work for one session onto a single
// worker goroutine. Tasks run strictly in submission order; concurrent
// submitters queue up and never touch the engine in parallel.
type Executor struct {
	tasks  chan *task
	quit   chan struct{}
	done   chan struct{}
	closer sync.Once
	logger *zap.Logger
}

// NewExecutor starts the worker goroutine immediately.
func NewExecutor(queueSize int, logger *zap.Logger) *Executor {
	if queueSize <= 0 {
		queueSize = 16
	}
	e := &Executor{
		tasks:  make(chan *task, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		// Check quit first so queued tasks are abandoned rather than run
		// when Close raced with a submission.
		select {
		case <-e.quit:
			e.drain()
			return
		default:
		}
		select {
		case <-e.quit:
			e.drain()
			return
		case t := <-e.tasks:
			value, err := e.invoke(t.fn)
			t.result <- taskResult{value: value, err: err}
		}
	}
}

// drain fails everything still queued so blocked submitters unblock.
func (e *Executor) drain() {
	for {
		select {
		case t := <-e.tasks:
			t.result <- taskResult{err: ErrExecutorClosed}
		default:
			return
		}
	}
}

// invoke runs one task, converting panics into errors so a misbehaving
// task cannot kill the worker.
func (e *Executor) invoke(fn func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Session task panicked.", zap.Any("panic", r))
			err = fmt.Errorf("session task panicked: %v", r)
		}
	}()
	return fn()
}

// Submit queues fn and waits for its result. Cancelling ctx abandons the
// wait but does not interrupt a task that already started running.
func (e *Executor) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	t := &task{fn: fn, result: make(chan taskResult, 1)}

	select {
	case e.tasks <- t:
	case <-e.quit:
		return nil, ErrExecutorClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-t.result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		// The worker exited; a result may still have been delivered in
		// the window before shutdown.
		select {
		case r := <-t.result:
			return r.value, r.err
		default:
			return nil, ErrExecutorClosed
		}
	}
}

// Close stops the worker without waiting for queued tasks; they fail with
// ErrExecutorClosed. A task already running finishes first. Idempotent.
func (e *Executor) Close() {
	e.closer.Do(func() { close(e.quit) })
}

// Done is closed once the worker goroutine has exited.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}
