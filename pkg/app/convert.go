package app

import (
	"time"

	"github.com/papercomputeco/ephemera/pkg/cache"
	"github.com/papercomputeco/ephemera/pkg/config"
	"github.com/papercomputeco/ephemera/pkg/eventstream/kafka"
	"github.com/papercomputeco/ephemera/pkg/history"
	"github.com/papercomputeco/ephemera/pkg/pressure"
	"github.com/papercomputeco/ephemera/pkg/session"
	"github.com/papercomputeco/ephemera/pkg/store"
)

func hours(n int) time.Duration   { return time.Duration(n) * time.Hour }
func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// StoreConfig maps the [store] section.
func StoreConfig(c *config.Config) store.Config {
	s := c.Store
	return store.Config{
		Host:                   s.Host,
		Port:                   s.Port,
		DB:                     s.DB,
		Password:               s.Password,
		MaxConnections:         s.MaxConnections,
		SocketTimeout:          s.SocketTimeout.Duration,
		ConnectTimeout:         s.ConnectTimeout.Duration,
		PoolTimeout:            s.PoolTimeout.Duration,
		MaxRetries:             s.MaxRetries,
		RetryBackoff:           s.RetryBackoff.Duration,
		HealthCheckInterval:    s.HealthCheckInterval.Duration,
		ReconnectInterval:      s.ReconnectInterval.Duration,
		DegradedErrorThreshold: s.DegradedErrorThreshold,
	}
}

// SessionConfig maps the [session] section.
func SessionConfig(c *config.Config) session.Config {
	cfg := session.DefaultConfig()
	cfg.MessageTTL = hours(c.Session.MessageTTLHours)
	cfg.MetadataTTL = hours(c.Session.MetadataTTLHours)
	cfg.ParticipantTTL = hours(c.Session.ParticipantTTLHours)
	cfg.MaxMessages = int64(c.Session.MaxMessages)
	return cfg
}

// CacheConfig maps the [cache] section. Each category is capped by the
// lifetime of the session record it copies.
func CacheConfig(c *config.Config) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.HotTTL = seconds(c.Cache.HotTTLSeconds)
	cfg.WarmTTL = seconds(c.Cache.WarmTTLSeconds)
	cfg.ColdTTL = seconds(c.Cache.ColdTTLSeconds)
	cfg.HotThreshold = int64(c.Cache.HotThreshold)
	cfg.WarmThreshold = int64(c.Cache.WarmThreshold)
	cfg.MaxTTL = map[cache.Category]time.Duration{
		cache.CategoryMessages:    hours(c.Session.MessageTTLHours),
		cache.CategoryContext:     hours(c.Session.ContextTTLHours),
		cache.CategoryParticipant: hours(c.Session.ParticipantTTLHours),
		cache.CategoryAnalysis:    hours(c.Session.MessageTTLHours),
		cache.CategorySession:     hours(c.Session.MetadataTTLHours),
	}
	return cfg
}

// PressureConfig maps the [memory] section. Thresholds are percentages.
func PressureConfig(c *config.Config) pressure.Config {
	m := c.Memory
	return pressure.Config{
		Thresholds: pressure.Thresholds{
			Warning:   float64(m.WarningThreshold) / 100,
			Critical:  float64(m.CriticalThreshold) / 100,
			Emergency: float64(m.EmergencyThreshold) / 100,
		},
		SessionTTL:  hours(c.Session.MessageTTLHours),
		Concurrency: m.CleanupConcurrency,
	}
}

// HistoryConfig maps the facade settings from the [cache] section.
func HistoryConfig(c *config.Config) history.Config {
	return history.Config{RecentWindow: c.Cache.RecentWindow}
}

// KafkaConfig maps the [events] section.
func KafkaConfig(c *config.Config) kafka.Config {
	return kafka.Config{
		Brokers: c.Events.BrokerList(),
		Topic:   c.Events.Topic,
	}
}
