// Package app builds the ephemera component graph from a Config and owns its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/papercomputeco/ephemera/pkg/cache"
	"github.com/papercomputeco/ephemera/pkg/clock"
	"github.com/papercomputeco/ephemera/pkg/config"
	"github.com/papercomputeco/ephemera/pkg/eventstream"
	"github.com/papercomputeco/ephemera/pkg/eventstream/kafka"
	"github.com/papercomputeco/ephemera/pkg/eventstream/nop"
	"github.com/papercomputeco/ephemera/pkg/history"
	"github.com/papercomputeco/ephemera/pkg/logger"
	"github.com/papercomputeco/ephemera/pkg/pressure"
	"github.com/papercomputeco/ephemera/pkg/scheduler"
	"github.com/papercomputeco/ephemera/pkg/session"
	"github.com/papercomputeco/ephemera/pkg/store"
)

// Duty names as they appear in scheduler stats and logs.
const (
	DutyCacheOptimize    = "cache-optimize"
	DutyMemoryCheck      = "memory-check"
	DutySessionCleanup   = "session-cleanup"
	DutySessionReconcile = "session-reconcile"
)

// Option configures New.
type Option func(*options)

type options struct {
	publisher eventstream.Publisher
	clock     clock.Clock
}

// WithPublisher overrides the publisher the [events] section would build.
func WithPublisher(p eventstream.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithClock sets the time source of every component.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// App holds the wired components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Store     *store.Manager
	Sessions  *session.Log
	Cache     *cache.Cache
	Pressure  *pressure.Controller
	History   *history.Service
	Publisher eventstream.Publisher
	Scheduler *scheduler.Scheduler

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New connects to the store and builds every component on top of it. It
// does not start the periodic duties; call Start for that.
func New(ctx context.Context, cfg *config.Config, l *slog.Logger, opts ...Option) (*App, error) {
	if l == nil {
		l = logger.Nop()
	}
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}

	pub := o.publisher
	if pub == nil {
		var err error
		pub, err = newPublisher(cfg, l)
		if err != nil {
			return nil, err
		}
	}

	mgr, err := store.Connect(ctx, StoreConfig(cfg), store.WithLogger(l))
	if err != nil {
		_ = pub.Close()
		return nil, err
	}

	sessions := session.New(mgr, SessionConfig(cfg),
		session.WithPublisher(pub),
		session.WithClock(o.clock),
		session.WithLogger(l),
	)
	c := cache.New(mgr, CacheConfig(cfg),
		cache.WithClock(o.clock),
		cache.WithLogger(l),
	)

	pc := pressure.New(mgr, sessions, PressureConfig(cfg),
		pressure.WithClock(o.clock),
		pressure.WithLogger(l),
		pressure.WithInvalidator(c),
	)

	return &App{
		cfg:       cfg,
		logger:    l,
		Store:     mgr,
		Sessions:  sessions,
		Cache:     c,
		Pressure:  pc,
		History:   history.New(sessions, c, HistoryConfig(cfg), history.WithClock(o.clock), history.WithLogger(l)),
		Publisher: pub,
		Scheduler: scheduler.New(l),
	}, nil
}

func newPublisher(cfg *config.Config, l *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "", config.ProviderNop:
		return nop.NewPublisher(), nil
	case config.ProviderKafka:
		p, err := kafka.NewPublisher(KafkaConfig(cfg), l)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
}

// Start registers the periodic duties and starts the scheduler. Calling it
// again is a no-op.
func (a *App) Start() error {
	var err error
	a.startOnce.Do(func() {
		err = errors.Join(
			a.Scheduler.Every(DutyCacheOptimize, a.cfg.Cache.OptimizeInterval.Duration, func(ctx context.Context) error {
				_, err := a.Cache.Optimize(ctx)
				return err
			}),
			a.Scheduler.Every(DutyMemoryCheck, a.cfg.Memory.CheckInterval.Duration, func(ctx context.Context) error {
				_, _, err := a.Pressure.Tick(ctx)
				return err
			}),
			a.Scheduler.Every(DutySessionCleanup, a.cfg.Memory.CleanupInterval.Duration, func(ctx context.Context) error {
				_, err := a.Pressure.Cleanup(ctx, false)
				return err
			}),
			a.Scheduler.Every(DutySessionReconcile, a.cfg.Session.ReconcileInterval.Duration, func(ctx context.Context) error {
				_, err := a.Reconcile(ctx)
				return err
			}),
		)
		if err != nil {
			return
		}
		a.Scheduler.Start()
		a.logger.Info("periodic duties started",
			"cache_optimize", a.cfg.Cache.OptimizeInterval.Duration,
			"memory_check", a.cfg.Memory.CheckInterval.Duration,
			"session_cleanup", a.cfg.Memory.CleanupInterval.Duration,
			"session_reconcile", a.cfg.Session.ReconcileInterval.Duration,
		)
	})
	return err
}

// Reconcile drops expired sessions from the active set and invalidates
// their cache keys. It returns how many sessions were dropped. A cache
// failure is logged, not returned.
func (a *App) Reconcile(ctx context.Context) (int, error) {
	gone, err := a.Sessions.DeleteExpiredFromActiveSet(ctx)
	if err != nil || len(gone) == 0 {
		return len(gone), err
	}
	if _, err := a.Cache.Invalidate(ctx, gone...); err != nil {
		a.logger.Warn("cache invalidation failed, entries will lapse on TTL", "sessions", len(gone), "error", err)
	}
	return len(gone), nil
}

// Report is the combined health view rendered by "ephemera status".
type Report struct {
	Store          store.HealthReport   `json:"store"`
	Memory         pressure.MemoryStats `json:"memory"`
	MemoryError    string               `json:"memory_error,omitempty"`
	Cache          cache.Stats          `json:"cache"`
	ActiveSessions int64                `json:"active_sessions"`
	Jobs           []scheduler.JobStats `json:"jobs"`
}

// Health probes the store and takes a fresh memory sample. Failures are
// reported in the result rather than returned.
func (a *App) Health(ctx context.Context) Report {
	r := Report{
		Store: a.Store.Health(ctx),
		Cache: a.Cache.Stats(),
		Jobs:  a.Scheduler.Stats(),
	}
	mem, err := a.Pressure.Sample(ctx)
	if err != nil {
		r.MemoryError = err.Error()
		r.Memory = a.Pressure.Stats()
	} else {
		r.Memory = mem
	}
	r.ActiveSessions = r.Memory.ActiveSessions
	return r
}

// Close stops the duties, waiting up to ctx for running ones, then closes
// the publisher and the store. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeErr = errors.Join(
			a.Scheduler.Stop(ctx),
			a.Publisher.Close(),
			a.Store.Close(),
		)
		a.logger.Info("ephemera stopped")
	})
	return a.closeErr
}
