package config

import (
	"strings"
	"time"
)

// Config represents the persistent ephemera configuration stored as
// config.toml in the .ephemera/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Store   StoreConfig   `toml:"store"`
	Session SessionConfig `toml:"session"`
	Cache   CacheConfig   `toml:"cache"`
	Memory  MemoryConfig  `toml:"memory"`
	Events  EventsConfig  `toml:"events"`
	Log     LogConfig     `toml:"log"`
}

// StoreConfig holds the Redis connection settings.
type StoreConfig struct {
	Host                   string   `toml:"host"`
	Port                   int      `toml:"port"`
	DB                     int      `toml:"db"`
	Password               string   `toml:"password,omitempty"`
	MaxConnections         int      `toml:"max_connections"`
	SocketTimeout          Duration `toml:"socket_timeout"`
	ConnectTimeout         Duration `toml:"connect_timeout"`
	PoolTimeout            Duration `toml:"pool_timeout"`
	MaxRetries             int      `toml:"max_retries"`
	RetryBackoff           Duration `toml:"retry_backoff"`
	HealthCheckInterval    Duration `toml:"health_check_interval"`
	ReconnectInterval      Duration `toml:"reconnect_interval"`
	DegradedErrorThreshold int      `toml:"degraded_error_threshold"`
}

// SessionConfig holds session log lifetimes. TTLs are whole hours.
type SessionConfig struct {
	MessageTTLHours     int      `toml:"message_ttl_hours"`
	ContextTTLHours     int      `toml:"context_ttl_hours"`
	ParticipantTTLHours int      `toml:"participant_ttl_hours"`
	MetadataTTLHours    int      `toml:"metadata_ttl_hours"`
	MaxMessages         int      `toml:"max_messages"`
	ReconcileInterval   Duration `toml:"reconcile_interval"`
}

// CacheConfig holds the tier lifetimes in seconds and the optimizer settings.
type CacheConfig struct {
	HotTTLSeconds    int      `toml:"hot_ttl_seconds"`
	WarmTTLSeconds   int      `toml:"warm_ttl_seconds"`
	ColdTTLSeconds   int      `toml:"cold_ttl_seconds"`
	OptimizeInterval Duration `toml:"optimize_interval"`
	HotThreshold     int      `toml:"hot_threshold"`
	WarmThreshold    int      `toml:"warm_threshold"`
	RecentWindow     int      `toml:"recent_window"`
}

// MemoryConfig holds memory pressure settings. Thresholds are percentages of
// the store's memory limit.
type MemoryConfig struct {
	CheckInterval      Duration `toml:"check_interval"`
	CleanupInterval    Duration `toml:"cleanup_interval"`
	WarningThreshold   int      `toml:"warning_threshold"`
	CriticalThreshold  int      `toml:"critical_threshold"`
	EmergencyThreshold int      `toml:"emergency_threshold"`
	CleanupConcurrency int      `toml:"cleanup_concurrency"`
}

// EventsConfig selects where session lifecycle events go.
type EventsConfig struct {
	Provider string `toml:"provider"`
	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic"`
}

// BrokerList splits Brokers on commas and drops empty entries.
func (e EventsConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type LogConfig struct {
	Debug bool `toml:"debug"`
	JSON  bool `toml:"json"`
}

// Duration is a time.Duration stored in TOML as a string such as "30s".
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration {
	return Duration{d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}
