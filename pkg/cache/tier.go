package cache

import (
	"fmt"
	"time"
)

// Tier is a TTL class. The TTL of a key is its tier; moving between tiers
// rewrites the TTL and never the payload.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Tiers lists every tier from hottest to coldest.
var Tiers = []Tier{TierHot, TierWarm, TierCold}

// ParseTier accepts hot, warm or cold.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierHot, TierWarm, TierCold:
		return t, nil
	}
	return "", fmt.Errorf("unknown cache tier %q", s)
}

// Category groups cached data by what it was derived from.
type Category string

const (
	CategoryMessages    Category = "messages"
	CategoryContext     Category = "context"
	CategoryParticipant Category = "participant"
	CategoryAnalysis    Category = "analysis"
	CategorySession     Category = "session"
)

func (c Category) valid() bool {
	switch c {
	case CategoryMessages, CategoryContext, CategoryParticipant, CategoryAnalysis, CategorySession:
		return true
	}
	return false
}

// Config sets tier TTLs and the access thresholds used by Optimize.
type Config struct {
	HotTTL  time.Duration
	WarmTTL time.Duration
	ColdTTL time.Duration

	// Keys with at least HotThreshold accesses since the last pass go hot,
	// at least WarmThreshold go warm, the rest go cold.
	HotThreshold  int64
	WarmThreshold int64

	// MaxTTL caps the TTL per category so a cached copy never outlives the
	// record it was derived from.
	MaxTTL map[Category]time.Duration

	ScanBatch int64

	// FillTimeout bounds how long a Reserve claim holds a key.
	FillTimeout time.Duration
}

// DefaultConfig is 5m/30m/2h with thresholds 10 and 3.
func DefaultConfig() Config {
	return Config{
		HotTTL:        5 * time.Minute,
		WarmTTL:       30 * time.Minute,
		ColdTTL:       2 * time.Hour,
		HotThreshold:  10,
		WarmThreshold: 3,
		ScanBatch:     500,
		FillTimeout:   10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HotTTL <= 0 {
		c.HotTTL = d.HotTTL
	}
	if c.WarmTTL <= 0 {
		c.WarmTTL = d.WarmTTL
	}
	if c.ColdTTL <= 0 {
		c.ColdTTL = d.ColdTTL
	}
	if c.HotThreshold <= 0 {
		c.HotThreshold = d.HotThreshold
	}
	if c.WarmThreshold <= 0 {
		c.WarmThreshold = d.WarmThreshold
	}
	if c.ScanBatch <= 0 {
		c.ScanBatch = d.ScanBatch
	}
	if c.FillTimeout <= 0 {
		c.FillTimeout = d.FillTimeout
	}
	return c
}

// TierFor maps an access count to a tier.
func (c Config) TierFor(accesses int64) Tier {
	switch {
	case accesses >= c.HotThreshold:
		return TierHot
	case accesses >= c.WarmThreshold:
		return TierWarm
	default:
		return TierCold
	}
}

// TTL returns the TTL for tier t in category cat, after the category cap.
func (c Config) TTL(cat Category, t Tier) time.Duration {
	var ttl time.Duration
	switch t {
	case TierHot:
		ttl = c.HotTTL
	case TierWarm:
		ttl = c.WarmTTL
	default:
		ttl = c.ColdTTL
	}
	if limit, ok := c.MaxTTL[cat]; ok && limit > 0 && limit < ttl {
		ttl = limit
	}
	return ttl
}
