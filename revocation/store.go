package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every store I/O failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Reason describes why a token was revoked. It is stored as the entry value.
type Reason string

const (
	ReasonLogout         Reason = "logout"
	ReasonPasswordChange Reason = "password_change"
	ReasonPasswordReset  Reason = "password_reset"
	ReasonAdmin          Reason = "admin"
)

// Store is a Redis-backed revocation list.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a Store. An empty prefix defaults to "revoked".
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "revoked"
	}
	return &Store{redis: rdb, prefix: prefix}
}

func (s *Store) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

// Revoke records tokenID for ttl. A non-positive ttl is a no-op: the token has
// already expired.
func (s *Store) Revoke(ctx context.Context, tokenID string, ttl time.Duration, reason Reason) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	if reason == "" {
		reason = ReasonAdmin
	}
	if err := s.redis.Set(ctx, s.key(tokenID), string(reason), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether tokenID is on the list.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// ReasonFor returns the recorded reason, or "" when tokenID is not revoked.
func (s *Store) ReasonFor(ctx context.Context, tokenID string) (Reason, error) {
	v, err := s.redis.Get(ctx, s.key(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Reason(v), nil
}
