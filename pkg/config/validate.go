package config

import (
	"errors"
	"fmt"
)

// Validate reports every setting that would make the runtime misbehave.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	s := cfg.Store
	if s.Host == "" {
		add("store.host must not be empty")
	}
	if s.Port <= 0 || s.Port > 65535 {
		add("store.port %d out of range", s.Port)
	}
	if s.DB < 0 {
		add("store.db must not be negative")
	}
	if s.MaxConnections <= 0 {
		add("store.max_connections must be positive")
	}
	if s.MaxRetries < 0 {
		add("store.max_retries must not be negative")
	}
	for name, d := range map[string]Duration{
		"store.socket_timeout":        s.SocketTimeout,
		"store.connect_timeout":       s.ConnectTimeout,
		"store.pool_timeout":          s.PoolTimeout,
		"store.health_check_interval": s.HealthCheckInterval,
		"store.reconnect_interval":    s.ReconnectInterval,
		"session.reconcile_interval":  cfg.Session.ReconcileInterval,
		"cache.optimize_interval":     cfg.Cache.OptimizeInterval,
		"memory.check_interval":       cfg.Memory.CheckInterval,
		"memory.cleanup_interval":     cfg.Memory.CleanupInterval,
	} {
		if d.Duration <= 0 {
			add("%s must be positive", name)
		}
	}
	if s.RetryBackoff.Duration < 0 {
		add("store.retry_backoff must not be negative")
	}

	for name, n := range map[string]int{
		"session.message_ttl_hours":     cfg.Session.MessageTTLHours,
		"session.context_ttl_hours":     cfg.Session.ContextTTLHours,
		"session.participant_ttl_hours": cfg.Session.ParticipantTTLHours,
		"session.metadata_ttl_hours":    cfg.Session.MetadataTTLHours,
		"session.max_messages":          cfg.Session.MaxMessages,
		"cache.hot_ttl_seconds":         cfg.Cache.HotTTLSeconds,
		"cache.warm_ttl_seconds":        cfg.Cache.WarmTTLSeconds,
		"cache.cold_ttl_seconds":        cfg.Cache.ColdTTLSeconds,
		"cache.recent_window":           cfg.Cache.RecentWindow,
		"memory.cleanup_concurrency":    cfg.Memory.CleanupConcurrency,
	} {
		if n <= 0 {
			add("%s must be positive", name)
		}
	}

	c := cfg.Cache
	if c.WarmThreshold < 0 || c.HotThreshold <= c.WarmThreshold {
		add("cache thresholds must satisfy 0 <= warm (%d) < hot (%d)", c.WarmThreshold, c.HotThreshold)
	}

	m := cfg.Memory
	if m.WarningThreshold <= 0 || m.WarningThreshold >= m.CriticalThreshold ||
		m.CriticalThreshold >= m.EmergencyThreshold || m.EmergencyThreshold > 100 {
		add("memory thresholds must satisfy 0 < warning (%d) < critical (%d) < emergency (%d) <= 100",
			m.WarningThreshold, m.CriticalThreshold, m.EmergencyThreshold)
	}

	switch cfg.Events.Provider {
	case ProviderNop:
	case ProviderKafka:
		if len(cfg.Events.BrokerList()) == 0 {
			add("events.brokers is required for the kafka provider")
		}
		if cfg.Events.Topic == "" {
			add("events.topic is required for the kafka provider")
		}
	default:
		add("unknown events.provider %q (available: %s, %s)", cfg.Events.Provider, ProviderNop, ProviderKafka)
	}

	return errors.Join(errs...)
}
