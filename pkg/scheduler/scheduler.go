// Package scheduler runs the periodic background duties on robfig/cron.
// Each duty runs on its own fixed interval, never overlaps itself and
// survives panics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/papercomputeco/ephemera/pkg/logger"
)

// Job is one run of a duty. ctx is cancelled once Stop gives up waiting.
type Job func(ctx context.Context) error

// JobStats reports how a duty has fared.
type JobStats struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	Failures int64         `json:"failures"`
	LastRun  time.Time     `json:"last_run"`
	LastErr  string        `json:"last_error,omitempty"`
	Next     time.Time     `json:"next"`
}

type duty struct {
	name     string
	interval time.Duration
	id       cron.EntryID

	runs     atomic.Int64
	failures atomic.Int64
	lastRun  atomic.Int64
	lastErr  atomic.Value
}

// every is a constant-delay schedule without cron.Every's whole-second
// rounding.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// Scheduler owns the cron runner and the context handed to jobs.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu      sync.Mutex
	duties  []*duty
	started bool
	stopped bool
}

// New returns an idle Scheduler.
func New(l *slog.Logger) *Scheduler {
	if l == nil {
		l = logger.Nop()
	}
	l = l.With("component", "scheduler")
	cl := cronLogger{l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: l,
	}
}

// Every registers job to run every interval once the scheduler starts.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("duty %s: interval must be positive, got %s", name, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("scheduler stopped")
	}

	d := &duty{name: name, interval: interval}
	d.id = s.cron.Schedule(every(interval), cron.FuncJob(func() {
		s.run(d, job)
	}))
	s.duties = append(s.duties, d)
	s.logger.Debug("duty registered", "duty", name, "interval", interval)
	return nil
}

func (s *Scheduler) run(d *duty, job Job) {
	start := time.Now()
	err := job(s.ctx)
	d.runs.Add(1)
	d.lastRun.Store(start.UnixNano())
	if err != nil {
		d.failures.Add(1)
		d.lastErr.Store(err.Error())
		s.logger.Warn("duty failed", "duty", d.name, "elapsed", time.Since(start), "error", err)
		return
	}
	d.lastErr.Store("")
	s.logger.Debug("duty finished", "duty", d.name, "elapsed", time.Since(start))
}

// Start begins running registered duties. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", "duties", len(s.duties))
}

// Stop halts scheduling and waits for running jobs to return. If ctx ends
// first the job context is cancelled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	defer s.cancel()
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out waiting for running duties")
		return ctx.Err()
	}
}

// Stats reports every duty in registration order.
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	duties := append([]*duty(nil), s.duties...)
	s.mu.Unlock()

	out := make([]JobStats, 0, len(duties))
	for _, d := range duties {
		st := JobStats{
			Name:     d.name,
			Interval: d.interval,
			Runs:     d.runs.Load(),
			Failures: d.failures.Load(),
			Next:     s.cron.Entry(d.id).Next,
		}
		if ts := d.lastRun.Load(); ts > 0 {
			st.LastRun = time.Unix(0, ts)
		}
		if v, ok := d.lastErr.Load().(string); ok {
			st.LastErr = v
		}
		out = append(out, st)
	}
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
