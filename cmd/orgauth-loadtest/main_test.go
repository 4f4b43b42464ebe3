package main

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/MrEthical07/orgauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 0); got != 1 {
		t.Fatalf("p0 = %v", got)
	}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestRunPhaseCountsFailures(t *testing.T) {
	calls := 0
	stats := runPhase(10, 1, func(*rand.Rand) error {
		calls++
		if calls%2 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	if stats.ops != 10 || stats.failures != 5 {
		t.Fatalf("ops=%d failures=%d", stats.ops, stats.failures)
	}
}

func TestSeedRespectsSessionCap(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	store := session.NewStore(rdb, session.Config{Prefix: "load", MaxPerUser: 3})

	seeded, err := seed(ctx, store, 2, 5)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(seeded) != 10 {
		t.Fatalf("seeded %d", len(seeded))
	}
	live, err := store.ListByUser(ctx, "user-0")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(live) != 3 {
		t.Fatalf("live sessions = %d, want 3", len(live))
	}
}
