// Package session is the TTL-bounded system of record for chat sessions: an
// append-only message list per session, a metadata hash, participant
// snapshots and a global index of active sessions.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/ephemera/pkg/clock"
	"github.com/papercomputeco/ephemera/pkg/codec"
	"github.com/papercomputeco/ephemera/pkg/eventstream"
	"github.com/papercomputeco/ephemera/pkg/eventstream/nop"
	"github.com/papercomputeco/ephemera/pkg/logger"
	"github.com/papercomputeco/ephemera/pkg/store"
)

// optimistic-lock conflicts on the participant hash before giving up
const maxWatchRetries = 5

// Option configures a Log.
type Option func(*Log)

// WithCodec sets the payload codec. Defaults to codec.JSON.
func WithCodec(c codec.Codec) Option {
	return func(l *Log) { l.codec = c }
}

// WithClock sets the time source. Defaults to clock.Real.
func WithClock(c clock.Clock) Option {
	return func(l *Log) { l.clock = c }
}

// WithPublisher sets where lifecycle events go. Defaults to a no-op.
func WithPublisher(p eventstream.Publisher) Option {
	return func(l *Log) { l.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Log) { l.logger = lg }
}

// Log reads and writes sessions through a store.Executor.
type Log struct {
	exec      store.Executor
	cfg       Config
	codec     codec.Codec
	clock     clock.Clock
	publisher eventstream.Publisher
	logger    *slog.Logger
}

// New returns a Log over exec.
func New(exec store.Executor, cfg Config, opts ...Option) *Log {
	l := &Log{
		exec:      exec,
		cfg:       cfg.withDefaults(),
		codec:     codec.JSON{},
		clock:     clock.Real{},
		publisher: nop.NewPublisher(),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "session")
	return l
}

// Config returns the effective retention settings.
func (l *Log) Config() Config {
	return l.cfg
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, ": \t\n")
}

// Append stores msg in sessionID and returns its id. The message push, the
// metadata upsert, the active-set registration and the sender's snapshot go
// out in one MULTI/EXEC batch under WATCH on the participant hash.
func (l *Log) Append(ctx context.Context, sessionID string, msg Message) (string, error) {
	if !validID(sessionID) {
		return "", storageErr("append", sessionID, ErrInvalidSession)
	}
	if msg.Type == "" {
		msg.Type = MessageUser
	}
	if msg.SenderID == "" || !msg.Type.Valid() {
		return "", storageErr("append", sessionID, ErrInvalidMessage)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.clock.Now()
	}
	msg.Timestamp = msg.Timestamp.UTC()
	msg.SessionID = sessionID

	payload, err := l.codec.Marshal(msg)
	if err != nil {
		return "", storageErr("append", sessionID, err)
	}

	messagesKey := MessagesKey(sessionID)
	metaKey := MetaKey(sessionID)
	participantsKey := ParticipantsKey(sessionID)
	now := l.clock.Now().UTC().Format(time.RFC3339Nano)

	err = l.exec.Execute(ctx, "append", func(ctx context.Context, c *redis.Client) error {
		txf := func(tx *redis.Tx) error {
			snap, err := l.readSnapshot(ctx, tx, participantsKey, msg.SenderID)
			if err != nil {
				return err
			}
			if msg.SenderName != "" {
				snap.Nickname = msg.SenderName
			}
			snap.LastMessageAt = msg.Timestamp
			snap.MessageCount++
			snapPayload, err := l.codec.Marshal(snap)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.LPush(ctx, messagesKey, payload)
				if l.cfg.MaxMessages > 0 {
					p.LTrim(ctx, messagesKey, 0, l.cfg.MaxMessages-1)
				}
				p.Expire(ctx, messagesKey, l.cfg.MessageTTL)

				p.HSetNX(ctx, metaKey, fieldCreatedAt, now)
				p.HSet(ctx, metaKey, fieldLastActivity, now, fieldStatus, string(StatusActive))
				p.HIncrBy(ctx, metaKey, fieldMessageCount, 1)
				p.Expire(ctx, metaKey, l.cfg.MetadataTTL)

				p.SAdd(ctx, ActiveSetKey, sessionID)

				p.HSet(ctx, participantsKey, msg.SenderID, snapPayload)
				p.Expire(ctx, participantsKey, l.cfg.ParticipantTTL)
				return nil
			})
			return err
		}

		for range maxWatchRetries {
			err := c.Watch(ctx, txf, participantsKey)
			if !errors.Is(err, redis.TxFailedErr) {
				return err
			}
		}
		return redis.TxFailedErr
	})
	if err != nil {
		return "", storageErr("append", sessionID, err)
	}

	l.logger.Debug("message appended", "session_id", sessionID, "message_id", msg.ID, "sender_id", msg.SenderID)
	return msg.ID, nil
}

func (l *Log) readSnapshot(ctx context.Context, tx *redis.Tx, key, userID string) (ParticipantSnapshot, error) {
	snap := ParticipantSnapshot{UserID: userID}
	raw, err := tx.HGet(ctx, key, userID).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return snap, nil
	case err != nil:
		return snap, err
	}
	if err := l.codec.Unmarshal(raw, &snap); err != nil {
		l.logger.Warn("resetting unreadable participant snapshot", "key", key, "user_id", userID, "error", err)
		return ParticipantSnapshot{UserID: userID}, nil
	}
	return snap, nil
}

// Recent returns up to limit of the newest messages, oldest first. A positive
// since drops messages older than now-since. A non-positive limit returns the
// whole stored list.
func (l *Log) Recent(ctx context.Context, sessionID string, limit int, since time.Duration) ([]Message, error) {
	if !validID(sessionID) {
		return nil, storageErr("recent", sessionID, ErrInvalidSession)
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	var raw []string
	err := l.exec.Execute(ctx, "recent", func(ctx context.Context, c *redis.Client) error {
		var err error
		raw, err = c.LRange(ctx, MessagesKey(sessionID), 0, stop).Result()
		return err
	})
	if err != nil {
		return nil, storageErr("recent", sessionID, err)
	}

	var cutoff time.Time
	if since > 0 {
		cutoff = l.clock.Now().Add(-since)
	}

	out := make([]Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m Message
		if err := l.codec.Unmarshal([]byte(raw[i]), &m); err != nil {
			l.logger.Warn("skipping unreadable message", "session_id", sessionID, "error", err)
			continue
		}
		if !cutoff.IsZero() && m.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SetTTL applies ttl to every key of the session so they expire together.
func (l *Log) SetTTL(ctx context.Context, sessionID string, ttl time.Duration) error {
	if !validID(sessionID) {
		return storageErr("set ttl", sessionID, ErrInvalidSession)
	}
	if ttl <= 0 {
		return storageErr("set ttl", sessionID, ErrInvalidTTL)
	}
	err := l.exec.Execute(ctx, "set ttl", func(ctx context.Context, c *redis.Client) error {
		_, err := c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, k := range sessionKeys(sessionID) {
				p.Expire(ctx, k, ttl)
			}
			return nil
		})
		return err
	})
	return storageErr("set ttl", sessionID, err)
}

// Stats reports counts and remaining TTL. A session whose keys are gone is
// reported as expired rather than as an error.
func (l *Log) Stats(ctx context.Context, sessionID string) (Stats, error) {
	if !validID(sessionID) {
		return Stats{}, storageErr("stats", sessionID, ErrInvalidSession)
	}

	var (
		meta         map[string]string
		participants int64
		ttl          time.Duration
		stored       int64
	)
	err := l.exec.Execute(ctx, "stats", func(ctx context.Context, c *redis.Client) error {
		cmds, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
			p.HGetAll(ctx, MetaKey(sessionID))
			p.HLen(ctx, ParticipantsKey(sessionID))
			p.PTTL(ctx, MessagesKey(sessionID))
			p.LLen(ctx, MessagesKey(sessionID))
			return nil
		})
		if err != nil {
			return err
		}
		meta = cmds[0].(*redis.MapStringStringCmd).Val()
		participants = cmds[1].(*redis.IntCmd).Val()
		ttl = cmds[2].(*redis.DurationCmd).Val()
		stored = cmds[3].(*redis.IntCmd).Val()
		return nil
	})
	if err != nil {
		return Stats{}, storageErr("stats", sessionID, err)
	}

	sess := l.sessionFromMeta(sessionID, meta, participants)
	st := Stats{
		SessionID:        sessionID,
		MessageCount:     sess.MessageCount,
		StoredMessages:   stored,
		ParticipantCount: participants,
		Status:           sess.Status,
		CreatedAt:        sess.CreatedAt,
		LastActivity:     sess.LastActivity,
	}
	if ttl > 0 {
		st.TTL = ttl
	}
	if len(meta) == 0 && stored == 0 {
		st.Status = StatusExpired
	}
	return st, nil
}

// Session returns the metadata record, or ErrNotFound.
func (l *Log) Session(ctx context.Context, sessionID string) (Session, error) {
	if !validID(sessionID) {
		return Session{}, storageErr("session", sessionID, ErrInvalidSession)
	}
	var (
		meta         map[string]string
		participants int64
	)
	err := l.exec.Execute(ctx, "session", func(ctx context.Context, c *redis.Client) error {
		cmds, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
			p.HGetAll(ctx, MetaKey(sessionID))
			p.HLen(ctx, ParticipantsKey(sessionID))
			return nil
		})
		if err != nil {
			return err
		}
		meta = cmds[0].(*redis.MapStringStringCmd).Val()
		participants = cmds[1].(*redis.IntCmd).Val()
		return nil
	})
	if err != nil {
		return Session{}, storageErr("session", sessionID, err)
	}
	if len(meta) == 0 {
		return Session{}, storageErr("session", sessionID, ErrNotFound)
	}
	return l.sessionFromMeta(sessionID, meta, participants), nil
}

func (l *Log) sessionFromMeta(id string, meta map[string]string, participants int64) Session {
	s := Session{ID: id, ParticipantCount: participants, Status: StatusExpired}
	if len(meta) == 0 {
		return s
	}
	s.CreatedAt = parseTime(meta[fieldCreatedAt])
	s.LastActivity = parseTime(meta[fieldLastActivity])
	s.MessageCount = parseInt(meta[fieldMessageCount])
	if st := Status(meta[fieldStatus]); st != "" {
		s.Status = st
	}
	return s
}

// Participants returns every snapshot of the session sorted by user id.
func (l *Log) Participants(ctx context.Context, sessionID string) ([]ParticipantSnapshot, error) {
	if !validID(sessionID) {
		return nil, storageErr("participants", sessionID, ErrInvalidSession)
	}
	var raw map[string]string
	err := l.exec.Execute(ctx, "participants", func(ctx context.Context, c *redis.Client) error {
		var err error
		raw, err = c.HGetAll(ctx, ParticipantsKey(sessionID)).Result()
		return err
	})
	if err != nil {
		return nil, storageErr("participants", sessionID, err)
	}

	out := make([]ParticipantSnapshot, 0, len(raw))
	for user, v := range raw {
		var snap ParticipantSnapshot
		if err := l.codec.Unmarshal([]byte(v), &snap); err != nil {
			l.logger.Warn("skipping unreadable participant", "session_id", sessionID, "user_id", user, "error", err)
			continue
		}
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b ParticipantSnapshot) int { return strings.Compare(a.UserID, b.UserID) })
	return out, nil
}

// Participant returns one snapshot. The bool is false when the user has not
// written to the session.
func (l *Log) Participant(ctx context.Context, sessionID, userID string) (ParticipantSnapshot, bool, error) {
	if !validID(sessionID) {
		return ParticipantSnapshot{}, false, storageErr("participant", sessionID, ErrInvalidSession)
	}
	var raw []byte
	err := l.exec.Execute(ctx, "participant", func(ctx context.Context, c *redis.Client) error {
		var err error
		raw, err = c.HGet(ctx, ParticipantsKey(sessionID), userID).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return ParticipantSnapshot{}, false, nil
	}
	if err != nil {
		return ParticipantSnapshot{}, false, storageErr("participant", sessionID, err)
	}
	var snap ParticipantSnapshot
	if err := l.codec.Unmarshal(raw, &snap); err != nil {
		return ParticipantSnapshot{}, false, storageErr("participant", sessionID, err)
	}
	return snap, true, nil
}

// ActiveCount returns the size of the active-session index.
func (l *Log) ActiveCount(ctx context.Context) (int64, error) {
	var n int64
	err := l.exec.Execute(ctx, "active count", func(ctx context.Context, c *redis.Client) error {
		var err error
		n, err = c.SCard(ctx, ActiveSetKey).Result()
		return err
	})
	if err != nil {
		return 0, storageErr("active count", "", err)
	}
	return n, nil
}
