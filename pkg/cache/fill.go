package cache

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// claimPrefix starts every Reserve token. JSON payloads never begin with a
// NUL byte.
var claimPrefix = []byte("\x00claim:")

// Reserve claims an absent key for a read-through fill and returns the
// token Fill needs. Call it before reading the source. An empty token means
// the key is present or another fill holds it, so read the source without
// filling.
func (c *Cache) Reserve(ctx context.Context, k Key) (string, error) {
	key := k.String()
	if !k.valid() {
		return "", &CacheError{Op: "reserve", Key: key, Err: ErrInvalidKey}
	}

	token := string(claimPrefix) + uuid.NewString()
	var claimed bool
	err := c.exec.Execute(ctx, "cache reserve", func(ctx context.Context, rc *redis.Client) error {
		var err error
		claimed, err = rc.SetNX(ctx, key, token, c.cfg.FillTimeout).Result()
		return err
	})
	if err != nil {
		c.errors.Add(1)
		return "", &CacheError{Op: "reserve", Key: key, Err: err}
	}
	if !claimed {
		return "", nil
	}
	return token, nil
}

// Fill stores payload under k only while the claim taken by Reserve is
// still in place. Evict, Invalidate or a lapsed claim void it, and Fill then
// reports false without writing.
func (c *Cache) Fill(ctx context.Context, k Key, token string, payload any, tier Tier) (bool, error) {
	key := k.String()
	if token == "" {
		return false, nil
	}
	if _, err := ParseTier(string(tier)); err != nil {
		return false, &CacheError{Op: "fill", Key: key, Err: err}
	}
	b, err := c.codec.Marshal(payload)
	if err != nil {
		return false, &CacheError{Op: "fill", Key: key, Err: err}
	}

	ttl := c.cfg.TTL(k.Category, tier)
	stored, err := c.whileClaimed(ctx, "cache fill", key, token, func(p redis.Pipeliner) {
		p.Set(ctx, key, b, ttl)
	})
	if err != nil {
		c.errors.Add(1)
		return false, &CacheError{Op: "fill", Key: key, Err: err}
	}
	if stored {
		c.bump(key)
	}
	return stored, nil
}

// Release gives up a claim that will not be filled, so the next reader can
// claim the key without waiting for it to lapse.
func (c *Cache) Release(ctx context.Context, k Key, token string) error {
	if token == "" {
		return nil
	}
	key := k.String()
	_, err := c.whileClaimed(ctx, "cache release", key, token, func(p redis.Pipeliner) {
		p.Del(ctx, key)
	})
	if err != nil {
		c.errors.Add(1)
		return &CacheError{Op: "release", Key: key, Err: err}
	}
	return nil
}

// whileClaimed queues fn in a MULTI batch that only commits while key still
// holds token. It reports whether the batch ran.
func (c *Cache) whileClaimed(ctx context.Context, name, key, token string, fn func(redis.Pipeliner)) (bool, error) {
	var ran bool
	err := c.exec.Execute(ctx, name, func(ctx context.Context, rc *redis.Client) error {
		ran = false
		err := rc.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) || (err == nil && cur != token) {
				return nil
			}
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				fn(p)
				return nil
			})
			ran = err == nil
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return nil
		}
		return err
	})
	return ran, err
}
