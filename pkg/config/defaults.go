package config

import "time"

const (
	defaultHost = "localhost"
	defaultPort = 6379

	defaultSessionTTLHours = 24
	defaultContextTTLHours = 12

	// ProviderNop drops every event.
	ProviderNop = "nop"
	// ProviderKafka publishes events to a Kafka topic.
	ProviderKafka = "kafka"

	defaultTopic = "ephemera.sessions"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Store: StoreConfig{
			Host:                   defaultHost,
			Port:                   defaultPort,
			MaxConnections:         20,
			SocketTimeout:          D(5 * time.Second),
			ConnectTimeout:         D(5 * time.Second),
			PoolTimeout:            D(4 * time.Second),
			MaxRetries:             3,
			RetryBackoff:           D(time.Second),
			HealthCheckInterval:    D(30 * time.Second),
			ReconnectInterval:      D(5 * time.Second),
			DegradedErrorThreshold: 5,
		},
		Session: SessionConfig{
			MessageTTLHours:     defaultSessionTTLHours,
			ContextTTLHours:     defaultContextTTLHours,
			ParticipantTTLHours: defaultSessionTTLHours,
			MetadataTTLHours:    defaultSessionTTLHours,
			MaxMessages:         1000,
			ReconcileInterval:   D(10 * time.Minute),
		},
		Cache: CacheConfig{
			HotTTLSeconds:    300,
			WarmTTLSeconds:   1800,
			ColdTTLSeconds:   7200,
			OptimizeInterval: D(30 * time.Minute),
			HotThreshold:     10,
			WarmThreshold:    3,
			RecentWindow:     50,
		},
		Memory: MemoryConfig{
			CheckInterval:      D(time.Minute),
			CleanupInterval:    D(time.Hour),
			WarningThreshold:   70,
			CriticalThreshold:  85,
			EmergencyThreshold: 95,
			CleanupConcurrency: 8,
		},
		Events: EventsConfig{
			Provider: ProviderNop,
			Topic:    defaultTopic,
		},
	}
}
