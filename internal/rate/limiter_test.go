package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return New(rdb, cfg), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestLoginBudget(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{MaxLoginAttempts: 3, LoginWindow: time.Minute})
	defer done()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "Alice@Example.com", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "alice@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("IncrementLogin failed: %v", err)
		}
	}

	if err := l.CheckLogin(ctx, "alice@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckLogin(ctx, "alice@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestLoginResetClearsIdentifier(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginWindow: time.Minute})
	defer done()

	ctx := context.Background()
	if err := l.IncrementLogin(ctx, "bob", ""); err != nil {
		t.Fatalf("IncrementLogin failed: %v", err)
	}
	if err := l.CheckLogin(ctx, "bob", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.ResetLogin(ctx, "bob"); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if err := l.CheckLogin(ctx, "bob", ""); err != nil {
		t.Fatalf("expected cleared counter, got %v", err)
	}
}

func TestLoginIPThrottle(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{EnableIPThrottle: true, MaxLoginAttempts: 2, LoginWindow: time.Minute})
	defer done()

	ctx := context.Background()
	_ = l.IncrementLogin(ctx, "a", "10.0.0.9")
	_ = l.IncrementLogin(ctx, "b", "10.0.0.9")

	if err := l.CheckLogin(ctx, "c", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c", "10.0.0.10"); err != nil {
		t.Fatalf("other IP should pass, got %v", err)
	}
}

func TestRefreshBudget(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{MaxRefreshAttempts: 2, RefreshWindow: time.Minute})
	defer done()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.CheckRefresh(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("refresh %d limited: %v", i, err)
		}
	}
	if err := l.CheckRefresh(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestDisabledLimiter(t *testing.T) {
	var l *Limiter
	if err := l.CheckLogin(context.Background(), "x", "y"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
}
