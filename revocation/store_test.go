package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRevocationTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return NewStore(rdb, ""), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRevokeAndCheck(t *testing.T) {
	store, mr, done := newRevocationTest(t)
	defer done()

	ctx := context.Background()
	if err := store.Revoke(ctx, "jti-1", time.Hour, ReasonLogout); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v (%v)", revoked, err)
	}
	reason, err := store.ReasonFor(ctx, "jti-1")
	if err != nil || reason != ReasonLogout {
		t.Fatalf("expected logout reason, got %q (%v)", reason, err)
	}
	if ttl := mr.TTL("revoked:jti-1"); ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}

	revoked, err = store.IsRevoked(ctx, "jti-2")
	if err != nil || revoked {
		t.Fatalf("expected jti-2 not revoked, got %v (%v)", revoked, err)
	}
}

func TestRevokeExpiresWithToken(t *testing.T) {
	store, mr, done := newRevocationTest(t)
	defer done()

	ctx := context.Background()
	if err := store.Revoke(ctx, "jti-1", time.Minute, ReasonAdmin); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected entry gone after ttl, got %v (%v)", revoked, err)
	}
}

func TestRevokeSkipsExpiredToken(t *testing.T) {
	store, mr, done := newRevocationTest(t)
	defer done()

	if err := store.Revoke(context.Background(), "jti-1", 0, ReasonLogout); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if mr.Exists("revoked:jti-1") {
		t.Fatal("expected no entry for expired token")
	}
}

func TestRevokeRedisDown(t *testing.T) {
	store, mr, done := newRevocationTest(t)
	defer done()
	mr.Close()

	if err := store.Revoke(context.Background(), "jti-1", time.Minute, ReasonLogout); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.IsRevoked(context.Background(), "jti-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
