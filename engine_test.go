package orgauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/orgauth/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const testPassword = "Correct#Horse9"

var testClient = Client{IP: "10.0.0.1", UserAgent: "test-agent"}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memUsers is an in-memory UserProvider returning copies, like a row store.
type memUsers struct {
	mu      sync.Mutex
	byID    map[string]*User
	failErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*User)}
}

func copyUser(u *User) *User {
	out := *u
	out.AssignedBranches = append([]string(nil), u.AssignedBranches...)
	out.AssignedDepartments = append([]string(nil), u.AssignedDepartments...)
	out.PasswordHistory = append([]string(nil), u.PasswordHistory...)
	return &out
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	for _, u := range m.byID {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) FindByID(_ context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (m *memUsers) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return ErrEmailExists
		}
	}
	m.byID[user.ID] = copyUser(user)
	return nil
}

func (m *memUsers) update(userID string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	return nil
}

func (m *memUsers) IncrementFailedAttempts(_ context.Context, userID string) (int, error) {
	var n int
	err := m.update(userID, func(u *User) {
		u.FailedLoginAttempts++
		n = u.FailedLoginAttempts
	})
	return n, err
}

func (m *memUsers) LockAccount(_ context.Context, userID string, until time.Time) error {
	return m.update(userID, func(u *User) { u.LockedUntil = until })
}

func (m *memUsers) ResetFailedAttempts(_ context.Context, userID string) error {
	return m.update(userID, func(u *User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = time.Time{}
	})
}

func (m *memUsers) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	return m.update(userID, func(u *User) { u.LastLoginAt = at })
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, hash string, history []string) error {
	return m.update(userID, func(u *User) {
		u.PasswordHash = hash
		u.PasswordHistory = append([]string(nil), history...)
	})
}

func (m *memUsers) get(userID string) *User {
	u, _ := m.FindByID(context.Background(), userID)
	return u
}

type memOrgs struct {
	mu   sync.Mutex
	orgs map[string]*Organization
}

func newMemOrgs() *memOrgs {
	return &memOrgs{orgs: make(map[string]*Organization)}
}

func (m *memOrgs) Create(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *memOrgs) FindByID(_ context.Context, id string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *memOrgs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orgs, id)
	return nil
}

func (m *memOrgs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orgs)
}

type sentReset struct {
	email     string
	token     string
	expiresAt time.Time
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentReset
	err  error
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, token string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{email: email, token: token, expiresAt: expiresAt})
	return n.err
}

func (n *recordingNotifier) last() (sentReset, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentReset{}, false
	}
	return n.sent[len(n.sent)-1], true
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, e AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

type engineFixture struct {
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	users    *memUsers
	orgs     *memOrgs
	notifier *recordingNotifier
	sink     *recordingSink
	clock    *fakeClock
	registry *prometheus.Registry
	logs     *test.Hook
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdef-access")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdef-refresh")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Parallelism = 1
	return cfg
}

func newEngineTest(t testing.TB, mutate ...func(*Config)) (*Engine, *engineFixture, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	fx := &engineFixture{
		mr:       mr,
		rdb:      rdb,
		users:    newMemUsers(),
		orgs:     newMemOrgs(),
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		registry: prometheus.NewRegistry(),
		logs:     hook,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(fx.users).
		WithOrganizationProvider(fx.orgs).
		WithResetNotifier(fx.notifier).
		WithAuditSink(fx.sink).
		WithLogger(logger).
		WithMetricsRegisterer(fx.registry).
		WithClock(fx.clock.now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var once sync.Once
	return engine, fx, func() {
		once.Do(func() {
			engine.Close()
			_ = rdb.Close()
			mr.Close()
		})
	}
}

// registerOwner creates an organization and returns the owner's login.
func registerOwner(t testing.TB, engine *Engine, email string) *RegisterResult {
	t.Helper()
	res, err := engine.Register(context.Background(), RegisterInput{
		OrganizationName: "Acme",
		Name:             "Owner",
		Email:            email,
		Password:         testPassword,
	}, testClient)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res
}

// addMember stores a non-owner user directly through the provider.
func addMember(t *testing.T, engine *Engine, fx *engineFixture, email string, role permission.Role, status AccountStatus) *User {
	t.Helper()
	hash, err := engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	u := &User{
		ID:             "user-" + strings.SplitN(email, "@", 2)[0],
		Email:          email,
		Name:           "Member",
		Role:           role,
		OrganizationID: "org-1",
		PasswordHash:   hash,
		Status:         status,
		CreatedAt:      fx.clock.now(),
	}
	if err := fx.users.Create(context.Background(), u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return u
}

func login(t testing.TB, engine *Engine, email string, client Client) *LoginResult {
	t.Helper()
	res, err := engine.Login(context.Background(), Credentials{Email: email, Password: testPassword}, client)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return res
}

func TestBuildRequiresCollaborators(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without user provider")
	}
	if _, err := New().WithRedis(rdb).WithUserProvider(newMemUsers()).WithOrganizationProvider(newMemOrgs()).Build(); err == nil {
		t.Fatal("expected error without secrets")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).
		WithUserProvider(newMemUsers()).WithOrganizationProvider(newMemOrgs())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
	if err := engine.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var engine *Engine
	if _, err := engine.Login(context.Background(), Credentials{}, Client{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := engine.Ping(context.Background()); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	engine.Close()
}
