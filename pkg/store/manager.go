// Package store owns the pooled connection to the remote key-value store.
// A Manager retries transient failures, probes liveness in the background and
// swaps in a fresh client when the current one stops answering, so callers
// never reason about reconnection themselves.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/papercomputeco/ephemera/pkg/logger"
)

// Operation is one unit of work against the store. It may be invoked more
// than once when a transient failure is retried.
type Operation func(ctx context.Context, c *redis.Client) error

// Executor runs named operations with retry. Manager implements it.
type Executor interface {
	Execute(ctx context.Context, name string, op Operation) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to logger.Nop().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager is a single logical handle to the store.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	client atomic.Pointer[redis.Client]
	status atomic.Int32

	connErrors   atomic.Int64
	windowErrors atomic.Int64
	failedConns  atomic.Int64
	lastCheck    atomic.Int64
	lastRTT      atomic.Int64

	reconnecting atomic.Bool
	limiter      *rate.Limiter

	closed    atomic.Bool
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// Connect builds the pool, probes it and starts the health-check loop. The
// probe is retried cfg.MaxRetries times with linear backoff; if every attempt
// fails the pool is released and a *ConnectionError is returned.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:     cfg,
		logger:  logger.Nop(),
		limiter: rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "store", "addr", cfg.Addr())

	client := m.newClient()
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*cfg.RetryBackoff); err != nil {
				lastErr = err
				break
			}
		}
		attempts++
		rtt, err := m.probe(ctx, client)
		if err == nil {
			m.lastRTT.Store(int64(rtt))
			lastErr = nil
			break
		}
		lastErr = err
		m.connErrors.Add(1)
		m.logger.Warn("initial probe failed", "attempt", attempts, "error", err)
	}
	if lastErr != nil {
		_ = client.Close()
		return nil, &ConnectionError{Addr: cfg.Addr(), Attempts: attempts, Err: lastErr}
	}

	m.client.Store(client)
	m.lastCheck.Store(time.Now().UnixNano())
	m.setStatus(StatusHealthy)
	m.logger.Info("connected", "pool_size", cfg.MaxConnections)

	go m.healthLoop()
	return m, nil
}

func (m *Manager) newClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         m.cfg.Addr(),
		DB:           m.cfg.DB,
		Password:     m.cfg.Password,
		PoolSize:     m.cfg.MaxConnections,
		DialTimeout:  m.cfg.ConnectTimeout,
		ReadTimeout:  m.cfg.SocketTimeout,
		WriteTimeout: m.cfg.SocketTimeout,
		PoolTimeout:  m.cfg.PoolTimeout,
		// Retries are owned by Execute.
		MaxRetries: -1,
	})
}

func (m *Manager) probe(ctx context.Context, c *redis.Client) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	start := time.Now()
	if err := c.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Execute runs op with up to cfg.MaxRetries retries on transient errors,
// waiting attempt*RetryBackoff between attempts. redis.Nil is returned as is.
// Exhausting the retries marks the manager unhealthy. A done ctx ends the
// loop early without touching status.
func (m *Manager) Execute(ctx context.Context, name string, op Operation) error {
	if m.closed.Load() {
		return &StoreError{Op: name, Err: ErrClosed}
	}
	if m.Status() == StatusUnhealthy {
		m.tryReconnect(ctx, true)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*m.cfg.RetryBackoff); err != nil {
				return &StoreError{Op: name, Attempts: attempts, Err: errors.Join(lastErr, err)}
			}
		}
		if m.closed.Load() {
			return &StoreError{Op: name, Attempts: attempts, Err: ErrClosed}
		}

		attempts++
		err := op(ctx, m.client.Load())
		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		lastErr = err

		if !IsTransient(err) {
			return &StoreError{Op: name, Attempts: attempts, Err: err}
		}
		m.connErrors.Add(1)
		m.windowErrors.Add(1)
		m.logger.Debug("transient store error", "op", name, "attempt", attempts, "error", err)
		if ctx.Err() != nil {
			return &StoreError{Op: name, Attempts: attempts, Transient: true, Err: err}
		}
	}

	if m.setStatus(StatusUnhealthy) != StatusUnhealthy {
		m.logger.Error("store marked unhealthy", "op", name, "attempts", attempts, "error", lastErr)
	}
	return &StoreError{Op: name, Attempts: attempts, Transient: true, Err: lastErr}
}

// Do runs a raw command through Execute.
func (m *Manager) Do(ctx context.Context, args ...any) (any, error) {
	name := "do"
	if len(args) > 0 {
		name = fmt.Sprint(args[0])
	}
	var out any
	err := m.Execute(ctx, name, func(ctx context.Context, c *redis.Client) error {
		v, err := c.Do(ctx, args...).Result()
		out = v
		return err
	})
	return out, err
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	return Status(m.status.Load())
}

// setStatus stores s and returns the previous status.
func (m *Manager) setStatus(s Status) Status {
	return Status(m.status.Swap(int32(s)))
}

// Stats returns a snapshot built from counters and pool statistics. It does
// not touch the network.
func (m *Manager) Stats() ConnectionStats {
	stats := ConnectionStats{
		Addr:             m.cfg.Addr(),
		Status:           m.Status(),
		FailedConns:      m.failedConns.Load(),
		ConnectionErrors: m.connErrors.Load(),
		LastRTT:          time.Duration(m.lastRTT.Load()),
		MaxConns:         m.cfg.MaxConnections,
	}
	if ts := m.lastCheck.Load(); ts > 0 {
		stats.LastHealthCheck = time.Unix(0, ts)
	}
	if c := m.client.Load(); c != nil {
		ps := c.PoolStats()
		stats.TotalConns = int(ps.TotalConns)
		stats.IdleConns = int(ps.IdleConns)
		stats.ActiveConns = stats.TotalConns - stats.IdleConns
		stats.PoolTimeouts = int64(ps.Timeouts)
	}
	return stats
}

// Close stops the health loop, waits for it and releases the pool. Further
// calls return nil.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.stop)
		<-m.done
		if c := m.client.Load(); c != nil {
			err = c.Close()
		}
		m.setStatus(StatusDisconnected)
		m.logger.Info("store connection closed")
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
