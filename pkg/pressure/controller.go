// Package pressure watches store memory usage and removes idle sessions more
// aggressively as usage climbs.
package pressure

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/ephemera/pkg/clock"
	"github.com/papercomputeco/ephemera/pkg/eventstream"
	"github.com/papercomputeco/ephemera/pkg/logger"
	"github.com/papercomputeco/ephemera/pkg/session"
	"github.com/papercomputeco/ephemera/pkg/store"
)

// MemorySource reports store memory counters. *store.Manager implements it.
type MemorySource interface {
	MemoryInfo(ctx context.Context) (store.MemoryInfo, error)
}

// Sessions is the slice of the session log cleanup needs. *session.Log
// implements it.
type Sessions interface {
	Inactive(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteIdle(ctx context.Context, sessionID string, cutoff time.Time, reason eventstream.Reason) (int64, error)
	ActiveCount(ctx context.Context) (int64, error)
}

// Invalidator drops cached copies of removed sessions. *cache.Cache
// implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, sessionIDs ...string) (int, error)
}

// Config tunes the controller.
type Config struct {
	Thresholds Thresholds
	// SessionTTL is the configured session lifetime that cleanup ages scale.
	SessionTTL time.Duration
	// Concurrency bounds parallel deletes in one cleanup.
	Concurrency int
}

// MemoryStats is the latest sample plus cumulative cleanup counters.
type MemoryStats struct {
	UsedBytes       int64     `json:"used_bytes"`
	MaxBytes        int64     `json:"max_bytes"`
	UsageRatio      float64   `json:"usage_ratio"`
	Status          Status    `json:"status"`
	ActiveSessions  int64     `json:"active_sessions"`
	SampledAt       time.Time `json:"sampled_at"`
	CleanupRuns     int64     `json:"cleanup_runs"`
	SessionsCleaned int64     `json:"sessions_cleaned"`
	BytesFreed      int64     `json:"bytes_freed"`
	LastCleanup     time.Time `json:"last_cleanup"`
}

// CleanupResult describes one cleanup run.
type CleanupResult struct {
	Status     Status        `json:"status"`
	Forced     bool          `json:"forced"`
	Age        time.Duration `json:"age"`
	Cutoff     time.Time     `json:"cutoff"`
	Candidates int           `json:"candidates"`
	Cleaned    int           `json:"cleaned"`
	// Skipped counts candidates written to after they were picked.
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	CacheKeys  int           `json:"cache_keys"`
	BytesFreed int64         `json:"bytes_freed"`
	Duration   time.Duration `json:"duration"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(p *Controller) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Controller) { p.logger = l }
}

// WithInvalidator sets where cached copies of cleaned sessions are dropped.
func WithInvalidator(inv Invalidator) Option {
	return func(p *Controller) { p.cache = inv }
}

// Controller samples memory and runs cleanups.
type Controller struct {
	mem      MemorySource
	sessions Sessions
	cache    Invalidator
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	last    MemoryStats
	sampled bool

	runs        atomic.Int64
	cleaned     atomic.Int64
	freed       atomic.Int64
	lastCleanup atomic.Int64
}

// New returns a Controller.
func New(mem MemorySource, sessions Sessions, cfg Config, opts ...Option) *Controller {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	p := &Controller{
		mem:      mem,
		sessions: sessions,
		cfg:      cfg,
		clock:    clock.Real{},
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pressure")
	return p
}

// Sample reads memory counters and the active-session count and classifies
// the result.
func (p *Controller) Sample(ctx context.Context) (MemoryStats, error) {
	info, err := p.mem.MemoryInfo(ctx)
	if err != nil {
		return MemoryStats{}, err
	}
	active, err := p.sessions.ActiveCount(ctx)
	if err != nil {
		return MemoryStats{}, err
	}

	ratio := info.Ratio()
	sample := MemoryStats{
		UsedBytes:      info.UsedBytes,
		MaxBytes:       info.MaxBytes,
		UsageRatio:     ratio,
		Status:         Classify(ratio, p.cfg.Thresholds),
		ActiveSessions: active,
		SampledAt:      p.clock.Now(),
	}

	p.mu.Lock()
	prev := p.last.Status
	p.last = sample
	p.sampled = true
	p.mu.Unlock()

	if prev != "" && prev != sample.Status {
		p.logger.Warn("memory status changed", "from", string(prev), "to", string(sample.Status), "usage_ratio", ratio)
	}
	return p.withCounters(sample), nil
}

// Cleanup deletes sessions idle longer than the age the current status
// allows, or ForcedCleanupAge when force is set. A failed sample falls back
// to the last known status. Per-session failures are counted, not returned.
// Cache keys of the deleted sessions are invalidated in one pass at the end.
func (p *Controller) Cleanup(ctx context.Context, force bool) (CleanupResult, error) {
	start := p.clock.Now()
	status := p.currentStatus(ctx)

	age := CleanupAge(status, p.cfg.SessionTTL, force)
	res := CleanupResult{Status: status, Forced: force, Age: age, Cutoff: start.Add(-age)}

	ids, err := p.sessions.Inactive(ctx, res.Cutoff)
	if err != nil {
		return res, err
	}
	res.Candidates = len(ids)

	var (
		mu      sync.Mutex
		removed []string
		skipped atomic.Int64
		failed  atomic.Int64
		freed   atomic.Int64
		g       errgroup.Group
	)
	g.SetLimit(p.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			n, err := p.sessions.DeleteIdle(ctx, id, res.Cutoff, eventstream.ReasonEvicted)
			switch {
			case errors.Is(err, session.ErrSessionActive):
				skipped.Add(1)
				p.logger.Debug("session active again, kept", "session_id", id)
			case err != nil:
				failed.Add(1)
				p.logger.Warn("cleanup delete failed", "session_id", id, "error", err)
			default:
				freed.Add(n)
				mu.Lock()
				removed = append(removed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Cleaned = len(removed)
	res.Skipped = int(skipped.Load())
	res.Failed = int(failed.Load())
	res.BytesFreed = freed.Load()
	if p.cache != nil && len(removed) > 0 {
		n, err := p.cache.Invalidate(ctx, removed...)
		if err != nil {
			p.logger.Warn("cache invalidation failed, entries will lapse on TTL", "sessions", len(removed), "error", err)
		}
		res.CacheKeys = n
	}
	res.Duration = p.clock.Now().Sub(start)

	p.runs.Add(1)
	p.cleaned.Add(int64(res.Cleaned))
	p.freed.Add(res.BytesFreed)
	p.lastCleanup.Store(start.UnixNano())

	p.logger.Info("cleanup finished",
		"status", string(status),
		"forced", force,
		"age", age,
		"candidates", res.Candidates,
		"cleaned", res.Cleaned,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"bytes_freed", res.BytesFreed,
	)
	return res, nil
}

func (p *Controller) currentStatus(ctx context.Context) Status {
	sample, err := p.Sample(ctx)
	if err == nil {
		return sample.Status
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	status := StatusHealthy
	if p.sampled {
		status = p.last.Status
	}
	p.logger.Warn("memory sample failed, using last known status", "status", string(status), "error", err)
	return status
}

// Tick is the periodic duty: sample, and clean up forcibly right away when
// pressure is critical or worse. It reports whether a cleanup ran.
func (p *Controller) Tick(ctx context.Context) (MemoryStats, bool, error) {
	sample, err := p.Sample(ctx)
	if err != nil {
		p.logger.Warn("memory sample failed", "error", err)
		return MemoryStats{}, false, err
	}
	if !sample.Status.Urgent() {
		return sample, false, nil
	}
	p.logger.Warn("memory pressure high, forcing cleanup", "status", string(sample.Status), "usage_ratio", sample.UsageRatio)
	if _, err := p.Cleanup(ctx, true); err != nil {
		return sample, true, err
	}
	return p.Stats(), true, nil
}

// Stats returns the last sample with cumulative counters. It never touches
// the network.
func (p *Controller) Stats() MemoryStats {
	p.mu.Lock()
	s := p.last
	p.mu.Unlock()
	return p.withCounters(s)
}

func (p *Controller) withCounters(s MemoryStats) MemoryStats {
	s.CleanupRuns = p.runs.Load()
	s.SessionsCleaned = p.cleaned.Load()
	s.BytesFreed = p.freed.Load()
	if ts := p.lastCleanup.Load(); ts > 0 {
		s.LastCleanup = time.Unix(0, ts)
	}
	return s
}
