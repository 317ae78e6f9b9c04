package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// OptimizationReport summarizes one Optimize pass.
type OptimizationReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Adjusted  int           `json:"adjusted"`
	Unchanged int           `json:"unchanged"`
	// Vanished counts keys that expired between SCAN and PTTL.
	Vanished int          `json:"vanished"`
	Targets  map[Tier]int `json:"targets"`
}

type observed struct {
	key   string
	count int64
	ctr   *atomic.Int64
}

// Optimize moves every cached key to the tier its access count earns. A TTL
// is only ever shortened, so near-expired keys are not revived. Keys are
// never deleted here. The counts read during the pass are subtracted at the
// end, so accesses that land while it runs carry over to the next one.
func (c *Cache) Optimize(ctx context.Context) (OptimizationReport, error) {
	report := OptimizationReport{StartedAt: c.now(), Targets: map[Tier]int{}}
	var seen []observed
	visited := map[string]struct{}{}

	err := c.scan(ctx, "cache optimize", func(ctx context.Context, rc *redis.Client, keys []string) error {
		batch := make([]observed, 0, len(keys))
		cats := make([]Category, 0, len(keys))
		for _, key := range keys {
			k, ok := parseKey(key)
			if !ok {
				continue
			}
			// SCAN may return a key more than once.
			if _, dup := visited[key]; dup {
				continue
			}
			visited[key] = struct{}{}
			ctr := c.counter(key)
			batch = append(batch, observed{key: key, count: load(ctr), ctr: ctr})
			cats = append(cats, k.Category)
		}
		if len(batch) == 0 {
			return nil
		}

		cmds, err := rc.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, o := range batch {
				p.PTTL(ctx, o.key)
			}
			return nil
		})
		if err != nil {
			return err
		}

		type change struct {
			key string
			ttl time.Duration
		}
		var changes []change
		for i, cmd := range cmds {
			report.Scanned++
			current := cmd.(*redis.DurationCmd).Val()
			// go-redis reports a missing key as -2ns and no expiry as -1ns.
			if current == -2 {
				report.Vanished++
				continue
			}
			tier := c.cfg.TierFor(batch[i].count)
			target := c.cfg.TTL(cats[i], tier)
			report.Targets[tier]++
			if current >= 0 && current <= target {
				report.Unchanged++
				continue
			}
			changes = append(changes, change{key: batch[i].key, ttl: target})
		}

		if len(changes) > 0 {
			exp, err := rc.Pipelined(ctx, func(p redis.Pipeliner) error {
				for _, ch := range changes {
					p.PExpire(ctx, ch.key, ch.ttl)
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, cmd := range exp {
				if cmd.(*redis.BoolCmd).Val() {
					report.Adjusted++
				} else {
					report.Vanished++
				}
			}
		}
		seen = append(seen, batch...)
		return nil
	}, func() {
		seen = seen[:0]
		clear(visited)
		report = OptimizationReport{StartedAt: report.StartedAt, Targets: map[Tier]int{}}
	})
	if err != nil {
		c.errors.Add(1)
		return report, &CacheError{Op: "optimize", Err: err}
	}

	for _, o := range seen {
		spend(o.ctr, o.count)
	}
	c.retireIdle()

	report.Duration = c.now().Sub(report.StartedAt)
	c.mu.Lock()
	c.lastReport = report
	c.mu.Unlock()

	c.logger.Info("cache optimized",
		"scanned", report.Scanned,
		"adjusted", report.Adjusted,
		"unchanged", report.Unchanged,
		"vanished", report.Vanished,
		"duration", report.Duration,
	)
	return report, nil
}
