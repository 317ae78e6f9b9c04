package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/ephemera/pkg/eventstream"
)

// Inactive returns the ids in the active set whose last activity precedes
// cutoff. Members whose metadata has already vanished are included so the
// caller can clear them out.
func (l *Log) Inactive(ctx context.Context, cutoff time.Time) ([]string, error) {
	var stale []string
	err := l.scanActive(ctx, "inactive", func(ctx context.Context, c *redis.Client, ids []string) error {
		cmds, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, id := range ids {
				p.HGet(ctx, MetaKey(id), fieldLastActivity)
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		for i, cmd := range cmds {
			v, err := cmd.(*redis.StringCmd).Result()
			if errors.Is(err, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			if err != nil {
				return err
			}
			if last := parseTime(v); last.IsZero() || last.Before(cutoff) {
				stale = append(stale, ids[i])
			}
		}
		return nil
	}, func() { stale = stale[:0] })
	if err != nil {
		return nil, storageErr("inactive", "", err)
	}
	return stale, nil
}

// Delete removes every key of the session and drops it from the active set.
// It returns an estimate of the bytes freed, measured from the payloads read
// in the same batch.
func (l *Log) Delete(ctx context.Context, sessionID string, reason eventstream.Reason) (int64, error) {
	return l.remove(ctx, "delete", sessionID, reason, nil)
}

// DeleteIdle is Delete for sessions picked by Inactive. The metadata hash is
// watched and last_activity read again, so a session written to at or after
// cutoff since it was picked is left alone and ErrSessionActive returned.
func (l *Log) DeleteIdle(ctx context.Context, sessionID string, cutoff time.Time, reason eventstream.Reason) (int64, error) {
	return l.remove(ctx, "delete idle", sessionID, reason, &cutoff)
}

type removal struct {
	freed    int64
	messages int64
	removed  int64
}

func (l *Log) remove(ctx context.Context, op, sessionID string, reason eventstream.Reason, cutoff *time.Time) (int64, error) {
	if !validID(sessionID) {
		return 0, storageErr(op, sessionID, ErrInvalidSession)
	}

	var res removal
	err := l.exec.Execute(ctx, op, func(ctx context.Context, c *redis.Client) error {
		if cutoff == nil {
			var err error
			res, err = removeBatch(ctx, c, sessionID)
			return err
		}

		metaKey := MetaKey(sessionID)
		txf := func(tx *redis.Tx) error {
			last, err := tx.HGet(ctx, metaKey, fieldLastActivity).Result()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if t := parseTime(last); !t.IsZero() && !t.Before(*cutoff) {
					return ErrSessionActive
				}
			}
			res, err = removeBatch(ctx, tx, sessionID)
			return err
		}
		for range maxWatchRetries {
			err := c.Watch(ctx, txf, metaKey)
			if !errors.Is(err, redis.TxFailedErr) {
				return err
			}
		}
		return redis.TxFailedErr
	})
	if err != nil {
		return 0, storageErr(op, sessionID, err)
	}

	if res.removed > 0 {
		l.publish(ctx, sessionID, reason, res.messages, res.freed)
		l.logger.Info("session deleted", "session_id", sessionID, "reason", string(reason), "freed_bytes", res.freed)
	}
	return res.freed, nil
}

// txPipeliner is satisfied by both *redis.Client and *redis.Tx.
type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

func removeBatch(ctx context.Context, c txPipeliner, sessionID string) (removal, error) {
	var (
		list  *redis.StringSliceCmd
		meta  *redis.MapStringStringCmd
		parts *redis.MapStringStringCmd
		del   *redis.IntCmd
		srem  *redis.IntCmd
	)
	_, err := c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		list = p.LRange(ctx, MessagesKey(sessionID), 0, -1)
		meta = p.HGetAll(ctx, MetaKey(sessionID))
		parts = p.HGetAll(ctx, ParticipantsKey(sessionID))
		del = p.Del(ctx, sessionKeys(sessionID)...)
		srem = p.SRem(ctx, ActiveSetKey, sessionID)
		return nil
	})
	if err != nil {
		return removal{}, err
	}

	var res removal
	for _, m := range list.Val() {
		res.freed += int64(len(m))
	}
	res.freed += hashBytes(meta.Val()) + hashBytes(parts.Val())
	res.messages = int64(len(list.Val()))
	res.removed = del.Val() + srem.Val()
	return res, nil
}

// DeleteExpiredFromActiveSet drops ids from the active set whose message list
// has expired, and returns the dropped ids.
func (l *Log) DeleteExpiredFromActiveSet(ctx context.Context) ([]string, error) {
	var gone []string
	err := l.scanActive(ctx, "reconcile", func(ctx context.Context, c *redis.Client, ids []string) error {
		cmds, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, id := range ids {
				p.Exists(ctx, MessagesKey(id))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i, cmd := range cmds {
			if cmd.(*redis.IntCmd).Val() == 0 {
				gone = append(gone, ids[i])
			}
		}
		return nil
	}, func() { gone = gone[:0] })
	if err != nil {
		return nil, storageErr("reconcile", "", err)
	}
	if len(gone) == 0 {
		return nil, nil
	}

	members := make([]any, len(gone))
	for i, id := range gone {
		members[i] = id
	}
	var removed int64
	err = l.exec.Execute(ctx, "reconcile srem", func(ctx context.Context, c *redis.Client) error {
		var err error
		removed, err = c.SRem(ctx, ActiveSetKey, members...).Result()
		return err
	})
	if err != nil {
		return nil, storageErr("reconcile", "", err)
	}

	for _, id := range gone {
		l.publish(ctx, id, eventstream.ReasonExpired, 0, 0)
	}
	l.logger.Info("reconciled active sessions", "removed", removed)
	return gone, nil
}

// scanActive walks the active set with SSCAN, calling fn per batch inside one
// Execute. reset clears the caller's accumulator before a retried attempt.
func (l *Log) scanActive(ctx context.Context, name string, fn func(context.Context, *redis.Client, []string) error, reset func()) error {
	return l.exec.Execute(ctx, name, func(ctx context.Context, c *redis.Client) error {
		reset()
		var cursor uint64
		for {
			ids, next, err := c.SScan(ctx, ActiveSetKey, cursor, "", l.cfg.ScanBatch).Result()
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				if err := fn(ctx, c, ids); err != nil {
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

func (l *Log) publish(ctx context.Context, sessionID string, reason eventstream.Reason, messages, freed int64) {
	ev := eventstream.NewSessionEvent(sessionID, reason, l.clock.Now())
	ev.MessageCount = messages
	ev.FreedBytes = freed
	if err := l.publisher.PublishSession(ctx, ev); err != nil {
		l.logger.Warn("publish session event", "session_id", sessionID, "reason", string(reason), "error", err)
	}
}

func hashBytes(h map[string]string) int64 {
	var n int64
	for k, v := range h {
		n += int64(len(k) + len(v))
	}
	return n
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
