package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// saveLua writes a record and indexes it under its user. The index TTL only
// grows, so it outlives every record it lists.
// KEYS[1] = record key
// KEYS[2] = user index key
// ARGV[1] = record ttl (ms)
// ARGV[2] = token hash
// ARGV[3..] = record field/value pairs
var saveLua = redis.NewScript(`
local ttl = tonumber(ARGV[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('PEXPIRE', KEYS[1], ttl)
redis.call('SADD', KEYS[2], ARGV[2])
if redis.call('PTTL', KEYS[2]) < ttl then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// rotateLua conditionally revokes the old record and writes its successor.
// KEYS[1] = old record key
// KEYS[2] = new record key
// KEYS[3] = user index key
// ARGV[1] = revoked_at (unix micro)
// ARGV[2] = successor id
// ARGV[3] = successor ttl (ms)
// ARGV[4] = successor token hash
// ARGV[5..] = successor field/value pairs
var rotateLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local revoked = redis.call('HGET', KEYS[1], 'revoked_at')
if revoked and revoked ~= '0' then
  return {err='already_revoked'}
end
redis.call('HSET', KEYS[1], 'revoked_at', ARGV[1], 'replaced_by', ARGV[2])
redis.call('HSET', KEYS[2], unpack(ARGV, 5))
local ttl = tonumber(ARGV[3])
redis.call('PEXPIRE', KEYS[2], ttl)
redis.call('SADD', KEYS[3], ARGV[4])
if redis.call('PTTL', KEYS[3]) < ttl then
  redis.call('PEXPIRE', KEYS[3], ttl)
end
return 1
`)

// revokeAllLua marks every unrevoked record in the user index as revoked and
// prunes index members whose record has expired. Record keys are derived from
// ARGV inside the script, so it runs on a single Redis node or replica set
// only, not on Redis Cluster.
// KEYS[1] = user index key
// ARGV[1] = record key prefix
// ARGV[2] = revoked_at (unix micro)
var revokeAllLua = redis.NewScript(`
local n = 0
local members = redis.call('SMEMBERS', KEYS[1])
for _, h in ipairs(members) do
  local k = ARGV[1] .. h
  local revoked = redis.call('HGET', k, 'revoked_at')
  if not revoked then
    redis.call('SREM', KEYS[1], h)
  elseif revoked == '0' then
    redis.call('HSET', k, 'revoked_at', ARGV[2])
    n = n + 1
  end
end
return n
`)

// RedisStore implements Store with one hash per record, expiring at the record's
// expiry, plus a per-user set of token digests that expires with the
// longest-lived record it lists. It requires a non-clustered Redis deployment.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a RedisStore. An empty prefix defaults to "rt".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rt"
	}
	return &RedisStore{redis: rdb, prefix: prefix, now: time.Now}
}

// WithClock replaces the time source used to derive record TTLs.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func (s *RedisStore) recordPrefix() string {
	return s.prefix + ":h:"
}

func (s *RedisStore) key(tokenHash string) string {
	return s.recordPrefix() + tokenHash
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func formatMicro(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseMicro(v string) (time.Time, error) {
	if v == "" || v == "0" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(n).UTC(), nil
}

func recordFields(rec *Record) []interface{} {
	return []interface{}{
		"id", rec.ID,
		"token_hash", rec.TokenHash,
		"user_id", rec.UserID,
		"organization_id", rec.OrganizationID,
		"session_id", rec.SessionID,
		"expires_at", formatMicro(rec.ExpiresAt),
		"revoked_at", formatMicro(rec.RevokedAt),
		"replaced_by", rec.ReplacedBy,
		"created_at", formatMicro(rec.CreatedAt),
		"created_by_ip", rec.CreatedByIP,
	}
}

func (s *RedisStore) ttl(rec *Record) time.Duration {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	args := []interface{}{s.ttl(rec).Milliseconds(), rec.TokenHash}
	args = append(args, recordFields(rec)...)

	err := saveLua.Run(ctx, s.redis,
		[]string{s.key(rec.TokenHash), s.userKey(rec.UserID)},
		args...,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// FindByHash implements Store.
func (s *RedisStore) FindByHash(ctx context.Context, tokenHash string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rec := &Record{
		ID:             fields["id"],
		TokenHash:      fields["token_hash"],
		UserID:         fields["user_id"],
		OrganizationID: fields["organization_id"],
		SessionID:      fields["session_id"],
		ReplacedBy:     fields["replaced_by"],
		CreatedByIP:    fields["created_by_ip"],
	}
	for name, dst := range map[string]*time.Time{
		"expires_at": &rec.ExpiresAt,
		"revoked_at": &rec.RevokedAt,
		"created_at": &rec.CreatedAt,
	} {
		t, err := parseMicro(fields[name])
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt %s: %v", ErrStoreUnavailable, name, err)
		}
		*dst = t
	}
	return rec, nil
}

// Rotate implements Store.
func (s *RedisStore) Rotate(ctx context.Context, oldHash string, next *Record, now time.Time) error {
	args := []interface{}{
		formatMicro(now),
		next.ID,
		s.ttl(next).Milliseconds(),
		next.TokenHash,
	}
	args = append(args, recordFields(next)...)

	err := rotateLua.Run(ctx, s.redis,
		[]string{s.key(oldHash), s.key(next.TokenHash), s.userKey(next.UserID)},
		args...,
	).Err()
	switch {
	case err == nil:
		return nil
	case strings.Contains(err.Error(), "already_revoked"):
		return ErrAlreadyRevoked
	case strings.Contains(err.Error(), "not_found"):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// RevokeAllForUser implements Store.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.recordPrefix(), formatMicro(now),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}
