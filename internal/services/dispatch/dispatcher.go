package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Task is a side effect run behind the dispatcher boundary
type Task func(ctx context.Context) error

// Config holds configuration for the dispatcher
type Config struct {
	// TaskTimeout bounds every task
	TaskTimeout time.Duration
}

// DefaultConfig returns default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		TaskTimeout: 15 * time.Second,
	}
}

// Dispatcher runs side effects so that their failures and panics never reach
// the request that triggered them
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a new Dispatcher
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	return &Dispatcher{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "dispatch")),
	}
}

// Go runs fn in the background, detached from any request context
func (d *Dispatcher) Go(name string, fn Task) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.run(context.Background(), name, fn)
	}()
}

// Do runs fn synchronously. The error is logged and returned for callers that
// want to record it; it has already been handled.
func (d *Dispatcher) Do(ctx context.Context, name string, fn Task) error {
	return d.run(ctx, name, fn)
}

// Wait blocks until all background tasks have finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// WaitTimeout waits for background tasks up to the given duration and
// reports whether they all finished
func (d *Dispatcher) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *Dispatcher) run(ctx context.Context, name string, fn Task) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
			d.logger.Error("task panic",
				slog.String("task", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	err = fn(ctx)
	if err != nil {
		d.logger.Warn("task failed",
			slog.String("task", name),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return err
	}
	d.logger.Debug("task completed",
		slog.String("task", name),
		slog.Duration("duration", time.Since(start)))
	return nil
}
