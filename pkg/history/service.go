// Package history is the read-through facade used by the chat layer. Writes
// go to the session log; reads try the cache first and fall back to the log
// on a miss or any cache failure. A miss claims the cache key before the log
// is read, and the write-side evictions void that claim, so a fill never
// stores a copy older than the last write.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/ephemera/pkg/cache"
	"github.com/papercomputeco/ephemera/pkg/clock"
	"github.com/papercomputeco/ephemera/pkg/eventstream"
	"github.com/papercomputeco/ephemera/pkg/logger"
	"github.com/papercomputeco/ephemera/pkg/session"
)

// Config tunes the facade.
type Config struct {
	// RecentWindow is how many newest messages are cached per session.
	// Requests for more read the log directly.
	RecentWindow int
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used by the since filter on cached windows.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service combines a session log and a cache.
type Service struct {
	log    *session.Log
	cache  *cache.Cache
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Service.
func New(log *session.Log, c *cache.Cache, cfg Config, opts ...Option) *Service {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 50
	}
	s := &Service{log: log, cache: c, cfg: cfg, clock: clock.Real{}, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "history")
	return s
}

func windowKey(id string) cache.Key  { return cache.NewKey(cache.CategoryMessages, id, "recent") }
func sessionKey(id string) cache.Key { return cache.NewKey(cache.CategorySession, id) }
func participantKey(id, user string) cache.Key {
	return cache.NewKey(cache.CategoryParticipant, id, user)
}

func contextKey(id, name string) cache.Key {
	return cache.NewKey(cache.CategoryContext, id, name)
}

func analysisKey(id, name string) cache.Key {
	return cache.NewKey(cache.CategoryAnalysis, id, name)
}

// AddMessage appends msg and drops the cached copies it makes stale.
func (s *Service) AddMessage(ctx context.Context, sessionID string, msg session.Message) (string, error) {
	id, err := s.log.Append(ctx, sessionID, msg)
	if err != nil {
		return "", wrap("add message", sessionID, err)
	}
	s.evict(ctx, windowKey(sessionID), sessionKey(sessionID), participantKey(sessionID, msg.SenderID))
	return id, nil
}

func (s *Service) evict(ctx context.Context, keys ...cache.Key) {
	for _, k := range keys {
		if err := s.cache.Evict(ctx, k); err != nil {
			s.logger.Debug("cache evict failed", "key", k.String(), "error", err)
		}
	}
}

// RecentMessages returns up to limit newest messages oldest first, with the
// same since filter as the log.
func (s *Service) RecentMessages(ctx context.Context, sessionID string, limit int, since time.Duration) ([]session.Message, error) {
	if limit <= 0 || limit > s.cfg.RecentWindow {
		msgs, err := s.log.Recent(ctx, sessionID, limit, since)
		return msgs, wrap("recent messages", sessionID, err)
	}

	key := windowKey(sessionID)
	var window []session.Message
	ok, err := s.cache.GetInto(ctx, key, &window)
	if err != nil {
		s.logger.Debug("cache read failed, using log", "session_id", sessionID, "error", err)
	}
	if !ok {
		token := s.reserve(ctx, key)
		window, err = s.log.Recent(ctx, sessionID, s.cfg.RecentWindow, 0)
		if err != nil || len(window) == 0 {
			s.release(ctx, key, token)
			return window, wrap("recent messages", sessionID, err)
		}
		s.fill(ctx, key, token, window, cache.TierHot)
	}
	return trim(window, limit, since, s.clock.Now()), nil
}

func (s *Service) reserve(ctx context.Context, k cache.Key) string {
	token, err := s.cache.Reserve(ctx, k)
	if err != nil {
		s.logger.Debug("cache reserve failed", "key", k.String(), "error", err)
	}
	return token
}

func (s *Service) fill(ctx context.Context, k cache.Key, token string, v any, tier cache.Tier) {
	if token == "" {
		return
	}
	stored, err := s.cache.Fill(ctx, k, token, v, tier)
	switch {
	case err != nil:
		s.logger.Debug("cache fill failed", "key", k.String(), "error", err)
	case !stored:
		s.logger.Debug("cache fill dropped, written meanwhile", "key", k.String())
	}
}

func (s *Service) release(ctx context.Context, k cache.Key, token string) {
	if err := s.cache.Release(ctx, k, token); err != nil {
		s.logger.Debug("cache release failed", "key", k.String(), "error", err)
	}
}

func trim(window []session.Message, limit int, since time.Duration, now time.Time) []session.Message {
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	if since <= 0 {
		return window
	}
	cutoff := now.Add(-since)
	out := window[:0:0]
	for _, m := range window {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// Session returns the session record, cached warm.
func (s *Service) Session(ctx context.Context, sessionID string) (session.Session, error) {
	key := sessionKey(sessionID)
	var sess session.Session
	if ok, _ := s.cache.GetInto(ctx, key, &sess); ok {
		return sess, nil
	}
	token := s.reserve(ctx, key)
	sess, err := s.log.Session(ctx, sessionID)
	if err != nil {
		s.release(ctx, key, token)
		return session.Session{}, wrap("session", sessionID, err)
	}
	s.fill(ctx, key, token, sess, cache.TierWarm)
	return sess, nil
}

// Participant returns one participant snapshot, cached warm.
func (s *Service) Participant(ctx context.Context, sessionID, userID string) (session.ParticipantSnapshot, bool, error) {
	key := participantKey(sessionID, userID)
	var snap session.ParticipantSnapshot
	if ok, _ := s.cache.GetInto(ctx, key, &snap); ok {
		return snap, true, nil
	}
	token := s.reserve(ctx, key)
	snap, ok, err := s.log.Participant(ctx, sessionID, userID)
	if err != nil || !ok {
		s.release(ctx, key, token)
		return snap, ok, wrap("participant", sessionID, err)
	}
	s.fill(ctx, key, token, snap, cache.TierWarm)
	return snap, true, nil
}

// SessionStats reads straight from the log so TTLs are current.
func (s *Service) SessionStats(ctx context.Context, sessionID string) (session.Stats, error) {
	st, err := s.log.Stats(ctx, sessionID)
	return st, wrap("session stats", sessionID, err)
}

// SetSessionTTL applies ttl to every key of the session.
func (s *Service) SetSessionTTL(ctx context.Context, sessionID string, ttl time.Duration) error {
	return wrap("set session ttl", sessionID, s.log.SetTTL(ctx, sessionID, ttl))
}

// PutContext caches a derived conversation context. Failures are logged
// and dropped since the context can be rebuilt.
func (s *Service) PutContext(ctx context.Context, sessionID, name string, v any) {
	if err := s.cache.Put(ctx, contextKey(sessionID, name), v, cache.TierWarm); err != nil {
		s.logger.Debug("context not cached", "session_id", sessionID, "name", name, "error", err)
	}
}

// Context loads a cached context into dst. False means rebuild it.
func (s *Service) Context(ctx context.Context, sessionID, name string, dst any) bool {
	ok, err := s.cache.GetInto(ctx, contextKey(sessionID, name), dst)
	if err != nil {
		s.logger.Debug("context cache read failed", "session_id", sessionID, "name", name, "error", err)
	}
	return ok
}

// PutAnalysis caches an analysis result cold.
func (s *Service) PutAnalysis(ctx context.Context, sessionID, name string, v any) {
	if err := s.cache.Put(ctx, analysisKey(sessionID, name), v, cache.TierCold); err != nil {
		s.logger.Debug("analysis not cached", "session_id", sessionID, "name", name, "error", err)
	}
}

// Analysis loads a cached analysis result into dst.
func (s *Service) Analysis(ctx context.Context, sessionID, name string, dst any) bool {
	ok, err := s.cache.GetInto(ctx, analysisKey(sessionID, name), dst)
	if err != nil {
		s.logger.Debug("analysis cache read failed", "session_id", sessionID, "name", name, "error", err)
	}
	return ok
}

// EndResult describes an explicit teardown.
type EndResult struct {
	FreedBytes  int64 `json:"freed_bytes"`
	CacheKeys   int   `json:"cache_keys"`
	CacheFailed bool  `json:"cache_failed,omitempty"`
}

// EndSession deletes the session and every cache key naming it.
func (s *Service) EndSession(ctx context.Context, sessionID string) (EndResult, error) {
	freed, err := s.log.Delete(ctx, sessionID, eventstream.ReasonEnded)
	if err != nil {
		return EndResult{}, wrap("end session", sessionID, err)
	}
	res := EndResult{FreedBytes: freed}
	n, err := s.cache.Invalidate(ctx, sessionID)
	if err != nil {
		var ce *cache.CacheError
		if !errors.As(err, &ce) {
			return res, wrap("end session", sessionID, err)
		}
		res.CacheFailed = true
		s.logger.Warn("cache invalidation failed, entries will lapse on TTL", "session_id", sessionID, "error", err)
	}
	res.CacheKeys = n
	s.logger.Info("session ended", "session_id", sessionID, "freed_bytes", freed, "cache_keys", n)
	return res, nil
}
