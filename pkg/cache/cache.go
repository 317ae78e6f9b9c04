// Package cache keeps short-lived derived data in the store under
// per-category keys with three TTL classes. Access counts are kept in
// process and drive a periodic pass that moves keys between classes.
package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/ephemera/pkg/clock"
	"github.com/papercomputeco/ephemera/pkg/codec"
	"github.com/papercomputeco/ephemera/pkg/logger"
	"github.com/papercomputeco/ephemera/pkg/store"
)

// Option configures a Cache.
type Option func(*Cache)

// WithCodec sets the payload codec. Defaults to codec.JSON.
func WithCodec(c codec.Codec) Option {
	return func(t *Cache) { t.codec = c }
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(t *Cache) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Cache) { t.logger = l }
}

// Cache is the tiered cache.
type Cache struct {
	exec   store.Executor
	cfg    Config
	codec  codec.Codec
	clock  clock.Clock
	logger *slog.Logger

	// key string -> *atomic.Int64, see bump and retire
	counters sync.Map

	requests atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	errors   atomic.Int64

	mu         sync.Mutex
	lastReport OptimizationReport
}

// New returns a Cache over exec.
func New(exec store.Executor, cfg Config, opts ...Option) *Cache {
	c := &Cache{
		exec:   exec,
		cfg:    cfg.withDefaults(),
		codec:  codec.JSON{},
		clock:  clock.Real{},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cache")
	return c
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.cfg
}

// retired marks a counter that has been removed from the map. Increments
// that find it move on to the counter that replaced it.
const retired = math.MinInt64

func (c *Cache) counter(key string) *atomic.Int64 {
	if v, ok := c.counters.Load(key); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.counters.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// bump records one access to key.
func (c *Cache) bump(key string) {
	for {
		ctr := c.counter(key)
		n := ctr.Load()
		if n == retired {
			c.counters.CompareAndDelete(key, ctr)
			continue
		}
		if ctr.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// retire drops the counter of a deleted key.
func (c *Cache) retire(key string) {
	if v, ok := c.counters.Load(key); ok {
		ctr := v.(*atomic.Int64)
		ctr.Store(retired)
		c.counters.CompareAndDelete(key, ctr)
	}
}

// retireIdle drops every counter that is still at zero. A counter bumped
// in the meantime is kept.
func (c *Cache) retireIdle() {
	c.counters.Range(func(k, v any) bool {
		ctr := v.(*atomic.Int64)
		if ctr.CompareAndSwap(0, retired) {
			c.counters.CompareAndDelete(k, ctr)
		}
		return true
	})
}

// spend subtracts n accesses unless the counter was retired meanwhile.
func spend(ctr *atomic.Int64, n int64) {
	for n > 0 {
		cur := ctr.Load()
		if cur == retired || ctr.CompareAndSwap(cur, cur-n) {
			return
		}
	}
}

func load(ctr *atomic.Int64) int64 {
	if n := ctr.Load(); n > 0 {
		return n
	}
	return 0
}

// Accesses returns the access count of k since the last optimization pass.
func (c *Cache) Accesses(k Key) int64 {
	if v, ok := c.counters.Load(k.String()); ok {
		return load(v.(*atomic.Int64))
	}
	return 0
}

// Put encodes payload and writes it with the TTL of tier.
func (c *Cache) Put(ctx context.Context, k Key, payload any, tier Tier) error {
	key := k.String()
	if !k.valid() {
		return &CacheError{Op: "put", Key: key, Err: ErrInvalidKey}
	}
	if _, err := ParseTier(string(tier)); err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}
	b, err := c.codec.Marshal(payload)
	if err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}

	ttl := c.cfg.TTL(k.Category, tier)
	err = c.exec.Execute(ctx, "cache put", func(ctx context.Context, rc *redis.Client) error {
		return rc.Set(ctx, key, b, ttl).Err()
	})
	if err != nil {
		c.errors.Add(1)
		return &CacheError{Op: "put", Key: key, Err: err}
	}
	c.bump(key)
	return nil
}

// Get returns the stored payload. A miss is (nil, false, nil). A key held
// by a Reserve claim reads as a miss.
func (c *Cache) Get(ctx context.Context, k Key) ([]byte, bool, error) {
	c.requests.Add(1)
	key := k.String()
	if !k.valid() {
		c.errors.Add(1)
		return nil, false, &CacheError{Op: "get", Key: key, Err: ErrInvalidKey}
	}

	var b []byte
	err := c.exec.Execute(ctx, "cache get", func(ctx context.Context, rc *redis.Client) error {
		var err error
		b, err = rc.Get(ctx, key).Bytes()
		return err
	})
	switch {
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
		return nil, false, nil
	case err != nil:
		c.errors.Add(1)
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	case bytes.HasPrefix(b, claimPrefix):
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	c.bump(key)
	return b, true, nil
}

// GetInto decodes a hit into dst. An undecodable payload is evicted and
// reported as a CacheError.
func (c *Cache) GetInto(ctx context.Context, k Key, dst any) (bool, error) {
	b, ok, err := c.Get(ctx, k)
	if err != nil || !ok {
		return false, err
	}
	if err := c.codec.Unmarshal(b, dst); err != nil {
		c.errors.Add(1)
		if evictErr := c.Evict(ctx, k); evictErr != nil {
			c.logger.Debug("evict undecodable entry", "key", k.String(), "error", evictErr)
		}
		return false, &CacheError{Op: "decode", Key: k.String(), Err: err}
	}
	return true, nil
}

// Evict deletes one key.
func (c *Cache) Evict(ctx context.Context, k Key) error {
	key := k.String()
	err := c.exec.Execute(ctx, "cache evict", func(ctx context.Context, rc *redis.Client) error {
		return rc.Del(ctx, key).Err()
	})
	c.retire(key)
	if err != nil {
		c.errors.Add(1)
		return &CacheError{Op: "evict", Key: key, Err: err}
	}
	return nil
}

// Invalidate deletes every key owned by one of sessionIDs in a single SCAN
// pass and returns how many were removed.
func (c *Cache) Invalidate(ctx context.Context, sessionIDs ...string) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	owners := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		owners[id] = struct{}{}
	}

	var matched []string
	err := c.scan(ctx, "cache invalidate", func(ctx context.Context, rc *redis.Client, keys []string) error {
		for _, key := range keys {
			k, ok := parseKey(key)
			if !ok {
				continue
			}
			if _, hit := owners[k.Session()]; hit {
				matched = append(matched, key)
			}
		}
		return nil
	}, func() { matched = matched[:0] })
	if err != nil {
		c.errors.Add(1)
		return 0, &CacheError{Op: "invalidate", Err: err}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	var n int64
	err = c.exec.Execute(ctx, "cache invalidate del", func(ctx context.Context, rc *redis.Client) error {
		var err error
		n, err = rc.Del(ctx, matched...).Result()
		return err
	})
	for _, key := range matched {
		c.retire(key)
	}
	if err != nil {
		c.errors.Add(1)
		return 0, &CacheError{Op: "invalidate", Err: err}
	}
	c.logger.Debug("invalidated session cache", "sessions", len(sessionIDs), "keys", n)
	return int(n), nil
}

// scan walks cache:* with SCAN inside one Execute. reset clears the caller's
// accumulator before a retried attempt.
func (c *Cache) scan(ctx context.Context, name string, fn func(context.Context, *redis.Client, []string) error, reset func()) error {
	return c.exec.Execute(ctx, name, func(ctx context.Context, rc *redis.Client) error {
		reset()
		var cursor uint64
		for {
			keys, next, err := rc.Scan(ctx, cursor, keyPrefix+"*", c.cfg.ScanBatch).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := fn(ctx, rc, keys); err != nil {
					return err
				}
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Requests    int64              `json:"requests"`
	Hits        int64              `json:"hits"`
	Misses      int64              `json:"misses"`
	Errors      int64              `json:"errors"`
	HitRate     float64            `json:"hit_rate"`
	TrackedKeys int                `json:"tracked_keys"`
	LastPass    OptimizationReport `json:"last_pass"`
}

// Stats never touches the network.
func (c *Cache) Stats() Stats {
	s := Stats{
		Requests: c.requests.Load(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Errors:   c.errors.Load(),
	}
	if s.Requests > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Requests)
	}
	c.counters.Range(func(_, _ any) bool {
		s.TrackedKeys++
		return true
	})
	c.mu.Lock()
	s.LastPass = c.lastReport
	c.mu.Unlock()
	return s
}

func (c *Cache) now() time.Time {
	return c.clock.Now()
}
