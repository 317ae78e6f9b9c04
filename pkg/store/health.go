package store

import (
	"context"
	"fmt"
	"time"
)

// Status is the connection state of a Manager.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusHealthy
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "disconnected"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionStats is a point-in-time view of the pool and its health.
type ConnectionStats struct {
	Addr             string        `json:"addr"`
	Status           Status        `json:"status"`
	MaxConns         int           `json:"max_connections"`
	TotalConns       int           `json:"total_connections"`
	ActiveConns      int           `json:"active_connections"`
	IdleConns        int           `json:"idle_connections"`
	FailedConns      int64         `json:"failed_connections"`
	PoolTimeouts     int64         `json:"pool_timeouts"`
	ConnectionErrors int64         `json:"connection_errors"`
	LastHealthCheck  time.Time     `json:"last_health_check"`
	LastRTT          time.Duration `json:"last_rtt"`
}

// HealthReport is what the monitoring surface consumes.
type HealthReport struct {
	Healthy bool            `json:"healthy"`
	Error   string          `json:"error,omitempty"`
	Stats   ConnectionStats `json:"stats"`
}

// Health runs one probe and reports the outcome with fresh stats.
func (m *Manager) Health(ctx context.Context) HealthReport {
	err := m.HealthCheck(ctx)
	r := HealthReport{Healthy: err == nil, Stats: m.Stats()}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// HealthCheck probes the store once and recomputes status. A failed probe
// marks the manager unhealthy and attempts a reconnect that is not subject
// to the reconnect throttle.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	c := m.client.Load()
	rtt, err := m.probe(ctx, c)
	m.lastCheck.Store(time.Now().UnixNano())
	errs := m.windowErrors.Swap(0)

	if err != nil {
		m.connErrors.Add(1)
		if prev := m.setStatus(StatusUnhealthy); prev != StatusUnhealthy {
			m.logger.Error("health check failed", "previous", prev.String(), "error", err)
		}
		if m.tryReconnect(ctx, false) {
			return nil
		}
		return fmt.Errorf("health check: %w", err)
	}

	m.lastRTT.Store(int64(rtt))
	next := StatusHealthy
	if errs >= int64(m.cfg.DegradedErrorThreshold) {
		next = StatusDegraded
	}
	if prev := m.setStatus(next); prev != next {
		m.logger.Info("store status changed", "from", prev.String(), "to", next.String(), "window_errors", errs)
	}
	return nil
}

// tryReconnect restores a healthy status, first by re-probing the current
// client and then by swapping in a fresh one. Only one attempt runs at a
// time. It reports whether the manager is healthy afterwards.
func (m *Manager) tryReconnect(ctx context.Context, throttled bool) bool {
	if throttled && !m.limiter.Allow() {
		return false
	}
	if !m.reconnecting.CompareAndSwap(false, true) {
		return false
	}
	defer m.reconnecting.Store(false)

	if m.closed.Load() {
		return false
	}
	if rtt, err := m.probe(ctx, m.client.Load()); err == nil {
		m.lastRTT.Store(int64(rtt))
		m.setStatus(StatusHealthy)
		m.logger.Info("store recovered")
		return true
	}

	fresh := m.newClient()
	rtt, err := m.probe(ctx, fresh)
	if err != nil {
		_ = fresh.Close()
		m.failedConns.Add(1)
		m.logger.Warn("reconnect failed", "error", err)
		return false
	}
	if m.closed.Load() {
		_ = fresh.Close()
		return false
	}
	old := m.client.Swap(fresh)
	if old != nil {
		_ = old.Close()
	}
	m.lastRTT.Store(int64(rtt))
	m.setStatus(StatusHealthy)
	m.logger.Info("store reconnected", "rtt", rtt)
	return true
}

func (m *Manager) healthLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			// Independent of any caller so an in-flight probe finishes
			// before Close returns.
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout+m.cfg.SocketTimeout)
			if err := m.HealthCheck(ctx); err != nil {
				m.logger.Debug("periodic health check", "error", err)
			}
			cancel()
		}
	}
}
