// Package worker runs detached background jobs with a bounded number of
// goroutines. Job failures are logged, never returned to the dispatcher.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrPoolFull = errors.New("worker pool is full")

type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	g      errgroup.Group
}

// New returns a pool running at most limit jobs at once. A limit <= 0 means
// no limit.
func New(limit int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{ctx: ctx, cancel: cancel}
	if limit > 0 {
		p.g.SetLimit(limit)
	}
	return p
}

// Go starts fn on its own goroutine. The context passed to fn is canceled
// when the pool shuts down.
func (p *Pool) Go(name string, fn func(ctx context.Context) error) error {
	if p.ctx.Err() != nil {
		return context.Canceled
	}

	started := p.g.TryGo(func() error {
		p.run(name, fn)
		return nil
	})
	if !started {
		return ErrPoolFull
	}
	return nil
}

func (p *Pool) run(name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("background job panic recovered", "job", name, "panic", r)
		}
	}()

	start := time.Now()
	if err := fn(p.ctx); err != nil {
		slog.Error("background job failed", "job", name, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	slog.Info("background job finished", "job", name, "duration_ms", time.Since(start).Milliseconds())
}

// Shutdown cancels running jobs and waits for them to return, or for ctx to
// expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		_ = p.g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
