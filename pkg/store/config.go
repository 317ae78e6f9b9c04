package store

import (
	"net"
	"strconv"
	"time"
)

// Config holds connection and retry parameters for a Manager.
type Config struct {
	Host     string
	Port     int
	DB       int
	Password string

	// MaxConnections bounds the pool. Callers beyond it queue for up to
	// PoolTimeout.
	MaxConnections int
	SocketTimeout  time.Duration
	ConnectTimeout time.Duration
	PoolTimeout    time.Duration

	MaxRetries   int
	RetryBackoff time.Duration

	HealthCheckInterval time.Duration
	ReconnectInterval   time.Duration

	// DegradedErrorThreshold is the number of failed calls within one
	// health-check window that demotes a healthy manager to degraded.
	DegradedErrorThreshold int
}

// DefaultConfig returns a Config pointed at a local store.
func DefaultConfig() Config {
	return Config{
		Host:                   "localhost",
		Port:                   6379,
		MaxConnections:         20,
		SocketTimeout:          5 * time.Second,
		ConnectTimeout:         5 * time.Second,
		PoolTimeout:            4 * time.Second,
		MaxRetries:             3,
		RetryBackoff:           time.Second,
		HealthCheckInterval:    30 * time.Second,
		ReconnectInterval:      5 * time.Second,
		DegradedErrorThreshold: 5,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.SocketTimeout <= 0 {
		c.SocketTimeout = d.SocketTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = d.PoolTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.DegradedErrorThreshold <= 0 {
		c.DegradedErrorThreshold = d.DegradedErrorThreshold
	}
	return c
}
