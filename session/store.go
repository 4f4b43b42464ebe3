package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrIPMismatch is returned by Validate when the presenting IP differs from the
	// IP recorded at session creation.
	ErrIPMismatch = errors.New("session ip mismatch")
	// ErrUserAgentMismatch is returned by Validate when the presenting user agent
	// differs from the one recorded at session creation.
	ErrUserAgentMismatch = errors.New("session user agent mismatch")
	// ErrRedisUnavailable wraps every store I/O failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	// DefaultTTL is the sliding session TTL.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxPerUser is the per-user concurrent session cap.
	DefaultMaxPerUser = 3

	touchRetries = 4
)

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Config tunes a Store.
type Config struct {
	Prefix     string
	TTL        time.Duration
	MaxPerUser int
	// AbsoluteLifetime caps how far touches may extend a session past its
	// creation. Zero disables the cap.
	AbsoluteLifetime time.Duration
}

// EvictionHook observes sessions removed by the concurrency cap. It is called with
// a non-nil err and empty sessionID when enforcement itself failed.
type EvictionHook func(ctx context.Context, userID, sessionID string, err error)

// Store persists sessions in Redis.
type Store struct {
	redis   redis.UniversalClient
	config  Config
	now     func() time.Time
	onEvict EvictionHook
	logger  logrus.FieldLogger
}

// NewStore creates a session Store. Zero config values fall back to the defaults.
func NewStore(rdb redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "sess"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = DefaultMaxPerUser
	}
	return &Store{redis: rdb, config: cfg, now: time.Now, logger: logrus.StandardLogger()}
}

// WithClock replaces the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// WithLogger sets the logger used for cap failures no hook observes.
func (s *Store) WithLogger(logger logrus.FieldLogger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithEvictionHook registers fn to observe cap evictions.
func (s *Store) WithEvictionHook(fn EvictionHook) *Store {
	s.onEvict = fn
	return s
}

func (s *Store) key(userID, sessionID string) string {
	return s.config.Prefix + ":" + userID + ":" + sessionID
}

func (s *Store) indexKey(userID string) string {
	return s.config.Prefix + ":idx:" + userID
}

func activityScore(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// ttlFor returns the TTL to apply to sess at now, honouring AbsoluteLifetime.
func (s *Store) ttlFor(sess *Session, now time.Time) time.Duration {
	ttl := s.config.TTL
	if deadline := sess.ExpiresAt(s.config.AbsoluteLifetime); !deadline.IsZero() {
		if remaining := deadline.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

// Create assigns a fresh random session id, writes the record with the sliding
// TTL and then enforces the per-user cap. A cap failure does not fail the call;
// it is reported to the eviction hook, or logged when none is set.
func (s *Store) Create(ctx context.Context, sess *Session) (string, error) {
	if sess == nil || sess.UserID == "" {
		return "", errors.New("session requires a user id")
	}

	now := s.now()
	sess.ID = uuid.NewString()
	sess.CreatedAt = now
	sess.LastActivityAt = now

	data, err := encode(sess)
	if err != nil {
		return "", err
	}

	idx := s.indexKey(sess.UserID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.UserID, sess.ID), data, s.config.TTL)
		pipe.ZAdd(ctx, idx, redis.Z{Score: activityScore(now), Member: sess.ID})
		pipe.Expire(ctx, idx, s.config.TTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	evicted, err := s.EnforceLimit(ctx, sess.UserID)
	if s.onEvict == nil {
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id":    sess.UserID,
				"session_id": sess.ID,
			}).WithError(err).Warn("session limit enforcement failed")
		}
		return sess.ID, nil
	}
	if err != nil {
		s.onEvict(ctx, sess.UserID, "", err)
	}
	for _, id := range evicted {
		s.onEvict(ctx, sess.UserID, id, nil)
	}

	return sess.ID, nil
}

// Get returns the session or ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(userID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := decode(data)
	if err != nil {
		return nil, err
	}
	if s.ttlFor(sess, s.now()) <= 0 {
		if err := s.Delete(ctx, userID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

// Touch records activity and rewrites the session with a fresh TTL. A session
// deleted concurrently is never resurrected: the write is conditioned on the key
// not changing since it was read.
func (s *Store) Touch(ctx context.Context, userID, sessionID string) error {
	key := s.key(userID, sessionID)
	idx := s.indexKey(userID)

	for i := 0; i < touchRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			sess, err := decode(data)
			if err != nil {
				return err
			}

			now := s.now()
			ttl := s.ttlFor(sess, now)
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.ZRem(ctx, idx, sessionID)
					return nil
				})
				if err != nil {
					return err
				}
				return redis.Nil
			}

			sess.LastActivityAt = now
			updated, err := encode(sess)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				pipe.ZAdd(ctx, idx, redis.Z{Score: activityScore(now), Member: sessionID})
				pipe.Expire(ctx, idx, s.config.TTL)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return ErrNotFound
		case errors.Is(err, ErrCorrupt):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return fmt.Errorf("%w: touch contention on session %s", ErrRedisUnavailable, sessionID)
}

// Delete removes one session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(userID, sessionID), s.indexKey(userID)}, sessionID).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAll removes every session of userID.
//
// A session created between the index read and the delete survives this call;
// callers needing a stronger guarantee also revoke the user's refresh tokens so
// such a session cannot be renewed.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	_, err := s.DeleteAllExcept(ctx, userID, "")
	return err
}

// DeleteAllExcept removes every session of userID other than keepSessionID and
// returns how many index entries were removed.
func (s *Store) DeleteAllExcept(ctx context.Context, userID, keepSessionID string) (int, error) {
	idx := s.indexKey(userID)
	ids, err := s.redis.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids))
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if id == keepSessionID {
			continue
		}
		keys = append(keys, s.key(userID, id))
		members = append(members, id)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, idx, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(keys), nil
}

// ListByUser returns the live sessions of userID ordered by last activity, most
// recent first. Index entries whose record has expired are pruned.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	idx := s.indexKey(userID)
	ids, err := s.redis.ZRevRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(userID, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	sessions := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := decode(data)
		if err != nil {
			return nil, err
		}
		if s.ttlFor(sess, now) <= 0 {
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.ZRem(ctx, idx, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
	return sessions, nil
}

// EnforceLimit deletes the least-recently-active sessions of userID beyond the
// cap and returns their ids.
func (s *Store) EnforceLimit(ctx context.Context, userID string) ([]string, error) {
	sessions, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sessions) <= s.config.MaxPerUser {
		return nil, nil
	}

	evicted := make([]string, 0, len(sessions)-s.config.MaxPerUser)
	for _, sess := range sessions[s.config.MaxPerUser:] {
		if err := s.Delete(ctx, userID, sess.ID); err != nil {
			return evicted, err
		}
		evicted = append(evicted, sess.ID)
	}
	return evicted, nil
}

// Validate loads the session and checks the client fingerprint. It fails with
// ErrNotFound, ErrIPMismatch or ErrUserAgentMismatch. There is no tolerance for
// roaming clients.
func (s *Store) Validate(ctx context.Context, userID, sessionID, ip, userAgent string) (*Session, error) {
	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IP != ip {
		return sess, ErrIPMismatch
	}
	if sess.UserAgent != userAgent {
		return sess, ErrUserAgentMismatch
	}
	return sess, nil
}

// Ping reports Redis availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
