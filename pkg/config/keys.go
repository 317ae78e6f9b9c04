package config

import (
	"fmt"
	"strconv"
)

type kind int

const (
	kindString kind = iota
	kindInt
	kindDuration
	kindBool
)

// key is one dotted config name with accessors on *Config.
type key struct {
	name string
	kind kind
	get  func(c *Config) string
	set  func(c *Config, v string) error
}

func str(name string, field func(c *Config) *string) key {
	return key{
		name: name,
		kind: kindString,
		get:  func(c *Config) string { return *field(c) },
		set:  func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func num(name string, field func(c *Config) *int) key {
	return key{
		name: name,
		kind: kindInt,
		get:  func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func dur(name string, field func(c *Config) *Duration) key {
	return key{
		name: name,
		kind: kindDuration,
		get:  func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			if err := field(c).UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			return nil
		},
	}
}

func toggle(name string, field func(c *Config) *bool) key {
	return key{
		name: name,
		kind: kindBool,
		get:  func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// keys lists every supported key in TOML section order.
var keys = []key{
	str("store.host", func(c *Config) *string { return &c.Store.Host }),
	num("store.port", func(c *Config) *int { return &c.Store.Port }),
	num("store.db", func(c *Config) *int { return &c.Store.DB }),
	str("store.password", func(c *Config) *string { return &c.Store.Password }),
	num("store.max_connections", func(c *Config) *int { return &c.Store.MaxConnections }),
	dur("store.socket_timeout", func(c *Config) *Duration { return &c.Store.SocketTimeout }),
	dur("store.connect_timeout", func(c *Config) *Duration { return &c.Store.ConnectTimeout }),
	dur("store.pool_timeout", func(c *Config) *Duration { return &c.Store.PoolTimeout }),
	num("store.max_retries", func(c *Config) *int { return &c.Store.MaxRetries }),
	dur("store.retry_backoff", func(c *Config) *Duration { return &c.Store.RetryBackoff }),
	dur("store.health_check_interval", func(c *Config) *Duration { return &c.Store.HealthCheckInterval }),
	dur("store.reconnect_interval", func(c *Config) *Duration { return &c.Store.ReconnectInterval }),
	num("store.degraded_error_threshold", func(c *Config) *int { return &c.Store.DegradedErrorThreshold }),

	num("session.message_ttl_hours", func(c *Config) *int { return &c.Session.MessageTTLHours }),
	num("session.context_ttl_hours", func(c *Config) *int { return &c.Session.ContextTTLHours }),
	num("session.participant_ttl_hours", func(c *Config) *int { return &c.Session.ParticipantTTLHours }),
	num("session.metadata_ttl_hours", func(c *Config) *int { return &c.Session.MetadataTTLHours }),
	num("session.max_messages", func(c *Config) *int { return &c.Session.MaxMessages }),
	dur("session.reconcile_interval", func(c *Config) *Duration { return &c.Session.ReconcileInterval }),

	num("cache.hot_ttl_seconds", func(c *Config) *int { return &c.Cache.HotTTLSeconds }),
	num("cache.warm_ttl_seconds", func(c *Config) *int { return &c.Cache.WarmTTLSeconds }),
	num("cache.cold_ttl_seconds", func(c *Config) *int { return &c.Cache.ColdTTLSeconds }),
	dur("cache.optimize_interval", func(c *Config) *Duration { return &c.Cache.OptimizeInterval }),
	num("cache.hot_threshold", func(c *Config) *int { return &c.Cache.HotThreshold }),
	num("cache.warm_threshold", func(c *Config) *int { return &c.Cache.WarmThreshold }),
	num("cache.recent_window", func(c *Config) *int { return &c.Cache.RecentWindow }),

	dur("memory.check_interval", func(c *Config) *Duration { return &c.Memory.CheckInterval }),
	dur("memory.cleanup_interval", func(c *Config) *Duration { return &c.Memory.CleanupInterval }),
	num("memory.warning_threshold", func(c *Config) *int { return &c.Memory.WarningThreshold }),
	num("memory.critical_threshold", func(c *Config) *int { return &c.Memory.CriticalThreshold }),
	num("memory.emergency_threshold", func(c *Config) *int { return &c.Memory.EmergencyThreshold }),
	num("memory.cleanup_concurrency", func(c *Config) *int { return &c.Memory.CleanupConcurrency }),

	str("events.provider", func(c *Config) *string { return &c.Events.Provider }),
	str("events.brokers", func(c *Config) *string { return &c.Events.Brokers }),
	str("events.topic", func(c *Config) *string { return &c.Events.Topic }),

	toggle("log.debug", func(c *Config) *bool { return &c.Log.Debug }),
	toggle("log.json", func(c *Config) *bool { return &c.Log.JSON }),
}

var byName = func() map[string]key {
	m := make(map[string]key, len(keys))
	for _, k := range keys {
		m[k.name] = k
	}
	return m
}()

func lookup(name string) (key, error) {
	k, ok := byName[name]
	if !ok {
		return key{}, fmt.Errorf("unknown config key: %q", name)
	}
	return k, nil
}

// ValidConfigKeys returns every supported key in TOML section order.
func ValidConfigKeys() []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.name
	}
	return names
}

// IsValidConfigKey reports whether name is a supported key.
func IsValidConfigKey(name string) bool {
	_, ok := byName[name]
	return ok
}
