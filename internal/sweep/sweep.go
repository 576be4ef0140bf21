// Package sweep runs one periodic housekeeping function with an explicit lifecycle.
//
// Each component owns its own Task. Start is idempotent, Stop cancels the running
// iteration and waits for the goroutine to exit, so tests never leak timers.
package sweep

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func performs one sweep and reports how many records it removed.
type Func func(ctx context.Context) (int64, error)

// Task is a cancellable ticker loop around a Func.
type Task struct {
	name     string
	interval time.Duration
	fn       Func
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped task. A non-positive interval disables Start.
func New(name string, interval time.Duration, fn Func, logger *zap.Logger) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With(zap.String("sweep", name)),
	}
}

// Start launches the loop bound to ctx.
func (t *Task) Start(ctx context.Context) {
	if t == nil || t.fn == nil || t.interval <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(runCtx, t.done)
}

// Stop cancels the loop and blocks until it has returned.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (t *Task) Running() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// RunOnce executes a single sweep synchronously.
func (t *Task) RunOnce(ctx context.Context) (int64, error) {
	if t == nil || t.fn == nil {
		return 0, nil
	}
	return t.fn(ctx)
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			iterCtx, cancel := context.WithTimeout(ctx, t.interval)
			n, err := t.fn(iterCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.logger.Warn("sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				t.logger.Debug("sweep removed records", zap.Int64("removed", n))
			}
		}
	}
}
