// Command orgauth-loadtest measures session-store latency under concurrent
// validation and login churn against Redis (or an in-process miniredis).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/orgauth/permission"
	"github.com/MrEthical07/orgauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loadIP        = "10.0.0.1"
	loadUserAgent = "orgauth-loadtest"
)

type seededSession struct {
	userID    string
	sessionID string
}

func main() {
	var (
		users       = flag.Int("users", 20000, "number of users to seed")
		perUser     = flag.Int("sessions-per-user", session.DefaultMaxPerUser, "sessions seeded per user")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate, login)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sess-load", "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *perUser <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, sessions-per-user, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	var evictions int64
	store := session.NewStore(client, session.Config{Prefix: *prefix}).
		WithEvictionHook(func(_ context.Context, _, sessionID string, err error) {
			if err == nil && sessionID != "" {
				atomic.AddInt64(&evictions, 1)
			}
		})

	fmt.Printf("seeding %d users x %d sessions...\n", *users, *perUser)
	startSeed := time.Now()
	seeded, err := seed(ctx, store, *users, *perUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s (evicted %d)\n", time.Since(startSeed).Round(time.Millisecond), atomic.LoadInt64(&evictions))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		s := seeded[r.Intn(len(seeded))]
		if _, err := store.Validate(ctx, s.userID, s.sessionID, loadIP, loadUserAgent); err != nil {
			return err
		}
		return store.Touch(ctx, s.userID, s.sessionID)
	})

	atomic.StoreInt64(&evictions, 0)
	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := store.Create(ctx, newSession(fmt.Sprintf("user-%d", r.Intn(*users))))
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate+touch", validateStats)
	printStats("login", loginStats)
	fmt.Printf("login evictions: %d\n", atomic.LoadInt64(&evictions))
}

func newSession(userID string) *session.Session {
	return &session.Session{
		UserID:              userID,
		OrganizationID:      "org-load",
		Role:                string(permission.RoleManager),
		AssignedDepartments: []string{"dept-1"},
		IP:                  loadIP,
		UserAgent:           loadUserAgent,
	}
}

func seed(ctx context.Context, store *session.Store, users, perUser int) ([]seededSession, error) {
	out := make([]seededSession, 0, users*perUser)
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user-%d", u)
		for i := 0; i < perUser; i++ {
			id, err := store.Create(ctx, newSession(userID))
			if err != nil {
				return nil, err
			}
			out = append(out, seededSession{userID: userID, sessionID: id})
		}
	}
	return out, nil
}

// runPhase runs op ops times across concurrency workers and records the latency
// of every call.
func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
