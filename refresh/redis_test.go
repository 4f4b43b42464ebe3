package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return NewRedisStore(rdb, ""), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func testRecord(id, hash, userID string, now time.Time) *Record {
	return &Record{
		ID:             id,
		TokenHash:      hash,
		UserID:         userID,
		OrganizationID: "org-1",
		SessionID:      "s1",
		ExpiresAt:      now.Add(7 * 24 * time.Hour),
		CreatedAt:      now,
		CreatedByIP:    "10.0.0.1",
	}
}

func TestRedisStoreSaveAndFind(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := store.Save(ctx, testRecord("r1", "h1", "u1", now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec, err := store.FindByHash(ctx, "h1")
	if err != nil {
		t.Fatalf("FindByHash failed: %v", err)
	}
	if rec.ID != "r1" || rec.UserID != "u1" || rec.OrganizationID != "org-1" || rec.SessionID != "s1" || rec.CreatedByIP != "10.0.0.1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.CreatedAt.Equal(now) || !rec.ExpiresAt.Equal(now.Add(7*24*time.Hour)) {
		t.Fatalf("unexpected timestamps: %+v", rec)
	}
	if rec.Revoked() || !rec.Usable(now) {
		t.Fatal("fresh record should be usable")
	}
	if ttl := mr.TTL("rt:h:h1"); ttl <= 6*24*time.Hour {
		t.Fatalf("expected ttl near 7d, got %v", ttl)
	}

	if _, err := store.FindByHash(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreRotateIsSingleUse(t *testing.T) {
	store, _, done := newRedisStoreTest(t)
	defer done()

	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.Save(ctx, testRecord("r1", "h1", "u1", now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Rotate(ctx, "h1", testRecord("r2", "h2", "u1", now), now); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	old, err := store.FindByHash(ctx, "h1")
	if err != nil {
		t.Fatalf("FindByHash failed: %v", err)
	}
	if !old.Revoked() || old.ReplacedBy != "r2" {
		t.Fatalf("expected old record revoked and chained, got %+v", old)
	}
	next, err := store.FindByHash(ctx, "h2")
	if err != nil {
		t.Fatalf("successor missing: %v", err)
	}
	if next.Revoked() {
		t.Fatal("successor should not be revoked")
	}

	err = store.Rotate(ctx, "h1", testRecord("r3", "h3", "u1", now), now)
	if !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
	if _, err := store.FindByHash(ctx, "h3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("losing rotation must not persist successor, got %v", err)
	}

	if err := store.Rotate(ctx, "nope", testRecord("r4", "h4", "u1", now), now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreUserIndexExpiresWithLongestRecord(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()

	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.Save(ctx, testRecord("r1", "h1", "u1", now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := mr.TTL("rt:u:u1"); ttl <= 6*24*time.Hour {
		t.Fatalf("expected index ttl near 7d, got %v", ttl)
	}

	short := testRecord("r2", "h2", "u1", now)
	short.ExpiresAt = now.Add(time.Hour)
	if err := store.Save(ctx, short); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := mr.TTL("rt:u:u1"); ttl <= 6*24*time.Hour {
		t.Fatalf("shorter record must not shrink index ttl, got %v", ttl)
	}

	long := testRecord("r3", "h3", "u1", now)
	long.ExpiresAt = now.Add(14 * 24 * time.Hour)
	if err := store.Rotate(ctx, "h1", long, now); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if ttl := mr.TTL("rt:u:u1"); ttl <= 13*24*time.Hour {
		t.Fatalf("expected index ttl extended to successor, got %v", ttl)
	}

	mr.FastForward(15 * 24 * time.Hour)
	if mr.Exists("rt:u:u1") {
		t.Fatal("expected index to expire with its records")
	}
}

func TestRedisStoreConcurrentRotateOneWinner(t *testing.T) {
	store, _, done := newRedisStoreTest(t)
	defer done()

	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.Save(ctx, testRecord("r1", "h1", "u1", now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			errs <- store.Rotate(ctx, "h1", testRecord("n"+id, "hn"+id, "u1", now), now)
		}(i)
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyRevoked):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != workers-1 {
		t.Fatalf("expected exactly one winner, got wins=%d losses=%d", wins, losses)
	}
}

func TestRedisStoreRevokeAllForUser(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()

	ctx := context.Background()
	now := time.Now().UTC()
	for _, rec := range []*Record{
		testRecord("r1", "h1", "u1", now),
		testRecord("r2", "h2", "u1", now),
		testRecord("r3", "h3", "u2", now),
	} {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	mr.Del("rt:h:h2")

	n, err := store.RevokeAllForUser(ctx, "u1", now)
	if err != nil {
		t.Fatalf("RevokeAllForUser failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked, got %d", n)
	}

	rec, err := store.FindByHash(ctx, "h1")
	if err != nil || !rec.Revoked() {
		t.Fatalf("expected h1 revoked, got %+v (%v)", rec, err)
	}
	rec, err = store.FindByHash(ctx, "h3")
	if err != nil || rec.Revoked() {
		t.Fatalf("other user's record affected: %+v (%v)", rec, err)
	}
	if ok, _ := store.redis.SIsMember(ctx, "rt:u:u1", "h2").Result(); ok {
		t.Fatal("expected expired member pruned from index")
	}

	n, err = store.RevokeAllForUser(ctx, "u1", now)
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent revoke, got %d (%v)", n, err)
	}
}
