// Package scheduler runs one named maintenance job on a fixed interval and
// keeps a record of its latest run.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one run of the periodic work.
type Job func(ctx context.Context) error

// Status describes the scheduler and its most recent run.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Interval  string    `json:"interval"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	LastRunAt time.Time `json:"lastRunAt,omitzero"`
	LastError string    `json:"lastError,omitempty"`
}

type Scheduler struct {
	name     string
	interval time.Duration
	job      Job

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// runMu serializes ticks with manual runs.
	runMu     sync.Mutex
	statMu    sync.Mutex
	runs      int64
	failures  int64
	lastRunAt time.Time
	lastErr   string
}

func New(name string, interval time.Duration, job Job) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the loop. The job runs once immediately, then on every
// tick. It reports false when already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "job", s.name, "interval", s.interval.String())

		_ = s.run(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping", "job", s.name)
				return
			case <-ticker.C:
				_ = s.run(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped", "job", s.name)
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// RunNow runs the job on the caller's goroutine, waiting for any scheduled
// run to finish first.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.run(ctx)
}

func (s *Scheduler) Status() Status {
	s.statMu.Lock()
	defer s.statMu.Unlock()

	return Status{
		Name:      s.name,
		Running:   s.running.Load(),
		Interval:  s.interval.String(),
		Runs:      s.runs,
		Failures:  s.failures,
		LastRunAt: s.lastRunAt,
		LastError: s.lastErr,
	}
}

func (s *Scheduler) run(ctx context.Context) (err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler job panic recovered", "job", s.name, "panic", r)
			err = errors.New("job panicked")
		}
		s.record(start, err)
	}()

	return s.job(ctx)
}

func (s *Scheduler) record(start time.Time, err error) {
	s.statMu.Lock()
	s.runs++
	s.lastRunAt = start.UTC()
	s.lastErr = ""
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
	}
	s.statMu.Unlock()

	attrs := []any{"job", s.name, "duration_ms", time.Since(start).Milliseconds()}
	if err != nil {
		slog.Warn("scheduler job failed", append(attrs, "error", err)...)
		return
	}
	slog.Info("scheduler job completed", attrs...)
}
