package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrResetNotFound is returned when a digest is unknown, expired or used.
	ErrResetNotFound = errors.New("reset record not found")
	// ErrResetRedisUnavailable wraps store I/O failures.
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// saveResetLua replaces the user's outstanding token.
// KEYS[1] = token key, KEYS[2] = user pointer key
// ARGV[1] = user id, ARGV[2] = ttl ms, ARGV[3] = token key prefix, ARGV[4] = digest
var saveResetLua = redis.NewScript(`
local previous = redis.call('GET', KEYS[2])
if previous then
  redis.call('DEL', ARGV[3] .. previous)
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', tonumber(ARGV[2]))
redis.call('SET', KEYS[2], ARGV[4], 'PX', tonumber(ARGV[2]))
return 1
`)

// consumeResetLua atomically reads and deletes a token.
// KEYS[1] = token key
// ARGV[1] = user pointer key prefix, ARGV[2] = digest
var consumeResetLua = redis.NewScript(`
local userID = redis.call('GET', KEYS[1])
if not userID then
  return {err='not_found'}
end
redis.call('DEL', KEYS[1])
local pointer = ARGV[1] .. userID
if redis.call('GET', pointer) == ARGV[2] then
  redis.call('DEL', pointer)
end
return userID
`)

// PasswordResetStore holds hashed reset tokens.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPasswordResetStore returns a store. An empty prefix defaults to "pwr".
func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "pwr"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) tokenPrefix() string {
	return s.prefix + ":t:"
}

func (s *PasswordResetStore) userPrefix() string {
	return s.prefix + ":u:"
}

// Save records digest for userID for ttl, replacing any outstanding token of the
// same user.
func (s *PasswordResetStore) Save(ctx context.Context, digest, userID string, ttl time.Duration) error {
	if digest == "" || userID == "" {
		return errors.New("reset record requires digest and user id")
	}
	err := saveResetLua.Run(ctx, s.redis,
		[]string{s.tokenPrefix() + digest, s.userPrefix() + userID},
		userID, ttl.Milliseconds(), s.tokenPrefix(), digest,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume returns the user id bound to digest and deletes the record.
func (s *PasswordResetStore) Consume(ctx context.Context, digest string) (string, error) {
	userID, err := consumeResetLua.Run(ctx, s.redis,
		[]string{s.tokenPrefix() + digest},
		s.userPrefix(), digest,
	).Text()
	if err != nil {
		if strings.Contains(err.Error(), "not_found") {
			return "", ErrResetNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return userID, nil
}

// Peek returns the user id bound to digest without consuming it.
func (s *PasswordResetStore) Peek(ctx context.Context, digest string) (string, error) {
	userID, err := s.redis.Get(ctx, s.tokenPrefix()+digest).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return userID, nil
}
