package orgauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/internal/rate"
	"github.com/MrEthical07/orgauth/internal/stores"
	"github.com/MrEthical07/orgauth/jwt"
	"github.com/MrEthical07/orgauth/password"
	"github.com/MrEthical07/orgauth/permission"
	"github.com/MrEthical07/orgauth/refresh"
	"github.com/MrEthical07/orgauth/revocation"
	"github.com/MrEthical07/orgauth/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an Engine. Every dependency is passed explicitly; a Builder
// can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users        UserProvider
	orgs         OrganizationProvider
	refreshStore refresh.Store
	notifier     ResetNotifier
	resolver     permission.DepartmentBranchResolver

	auditSink  AuditSink
	logger     logrus.FieldLogger
	registerer prometheus.Registerer
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, revocations, reset tokens, rate
// limits and, unless WithRefreshStore is used, refresh records.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

func (b *Builder) WithOrganizationProvider(op OrganizationProvider) *Builder {
	b.orgs = op
	return b
}

// WithRefreshStore overrides the Redis refresh-record store, typically with
// refresh.NewSQLStore.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

func (b *Builder) WithResetNotifier(n ResetNotifier) *Builder {
	b.notifier = n
	return b
}

// WithDepartmentResolver makes LEADER access to a department depend on the
// department's branch.
func (b *Builder) WithDepartmentResolver(r permission.DepartmentBranchResolver) *Builder {
	b.resolver = r
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsRegisterer registers the engine's collectors on reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithClock replaces the time source of the engine and its stores.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user provider required")
	}
	if b.orgs == nil {
		return nil, errors.New("organization provider required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.InfoLevel)
		logger = l
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash("orgauth-unknown-user")
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	tokens.WithClock(now)

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics, err = NewMetrics(cfg.Metrics.Namespace, b.registerer)
		if err != nil {
			return nil, err
		}
	}

	engine := &Engine{
		config:    cfg,
		users:     b.users,
		orgs:      b.orgs,
		notifier:  b.notifier,
		hasher:    hasher,
		dummyHash: dummyHash,
		tokens:    tokens,
		evaluator: permission.NewEvaluator(b.resolver),
		metrics:   metrics,
		logger:    logger,
		now:       now,
	}

	engine.sessions = session.NewStore(b.redis, session.Config{
		Prefix:           cfg.Session.RedisPrefix,
		TTL:              cfg.Session.TTL,
		MaxPerUser:       cfg.Session.MaxPerUser,
		AbsoluteLifetime: cfg.Session.AbsoluteLifetime,
	}).WithClock(now).WithLogger(logger).WithEvictionHook(engine.onSessionEvicted)

	engine.revocations = revocation.NewStore(b.redis, cfg.Revocation.RedisPrefix)

	engine.refreshTokens = b.refreshStore
	if engine.refreshTokens == nil {
		engine.refreshTokens = refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix).WithClock(now)
	}

	engine.resets = stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix)

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:   cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:   cfg.RateLimit.MaxLoginAttempts,
			LoginWindow:        cfg.RateLimit.LoginWindow,
			MaxRefreshAttempts: cfg.RateLimit.MaxRefreshAttempts,
			RefreshWindow:      cfg.RateLimit.RefreshWindow,
		})
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
	}, b.auditSink)
	engine.audit.OnDrop(metrics.auditDropped)

	b.built = true

	return engine, nil
}
