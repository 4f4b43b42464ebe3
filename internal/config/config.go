// Package config loads server configuration from the environment and an optional
// .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/MrEthical07/orgauth"
	"github.com/spf13/viper"
)

// Config holds server configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// TrustProxy takes client IPs from X-Forwarded-For.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`
	// RedisAddr is the Redis server holding sessions, revocations and reset tokens.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// DatabaseURL is the Postgres DSN for users, organizations and refresh tokens.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AMQPURL enables publishing audit events to RabbitMQ when set.
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`

	JWTAccessSecret     string        `mapstructure:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret    string        `mapstructure:"JWT_REFRESH_SECRET"`
	JWTAccessTTL        time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL       time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	JWTIssuer           string        `mapstructure:"JWT_ISSUER"`
	RevokeFamilyOnReuse bool          `mapstructure:"REVOKE_FAMILY_ON_REUSE"`

	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`
	MaxSessionsPerUser int           `mapstructure:"MAX_SESSIONS_PER_USER"`
	LockoutAttempts    int           `mapstructure:"LOCKOUT_ATTEMPTS"`
	LockoutDuration    time.Duration `mapstructure:"LOCKOUT_DURATION"`
	ResetTokenTTL      time.Duration `mapstructure:"RESET_TOKEN_TTL"`
	RateLimitEnabled   bool          `mapstructure:"RATE_LIMIT_ENABLED"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Environment variables override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	defaults := orgauth.DefaultConfig()
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "orgauth.audit")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", defaults.JWT.AccessTTL.String())
	v.SetDefault("JWT_REFRESH_TTL", defaults.JWT.RefreshTTL.String())
	v.SetDefault("JWT_ISSUER", defaults.JWT.Issuer)
	v.SetDefault("REVOKE_FAMILY_ON_REUSE", false)
	v.SetDefault("SESSION_TTL", defaults.Session.TTL.String())
	v.SetDefault("MAX_SESSIONS_PER_USER", defaults.Session.MaxPerUser)
	v.SetDefault("LOCKOUT_ATTEMPTS", defaults.Lockout.MaxAttempts)
	v.SetDefault("LOCKOUT_DURATION", defaults.Lockout.Duration.String())
	v.SetDefault("RESET_TOKEN_TTL", defaults.PasswordReset.TTL.String())
	v.SetDefault("RATE_LIMIT_ENABLED", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("config: REDIS_ADDR must be set")
	}
	if len(cfg.JWTAccessSecret) < 32 || len(cfg.JWTRefreshSecret) < 32 {
		return nil, errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be at least 32 bytes")
	}
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	return &cfg, nil
}

// Engine maps the loaded settings onto the engine configuration and validates
// the result.
func (c *Config) Engine() (orgauth.Config, error) {
	cfg := orgauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(c.JWTAccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.JWTRefreshSecret)
	cfg.JWT.AccessTTL = c.JWTAccessTTL
	cfg.JWT.RefreshTTL = c.JWTRefreshTTL
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.RevokeFamilyOnReuse = c.RevokeFamilyOnReuse
	cfg.Session.TTL = c.SessionTTL
	cfg.Session.MaxPerUser = c.MaxSessionsPerUser
	cfg.Lockout.MaxAttempts = c.LockoutAttempts
	cfg.Lockout.Duration = c.LockoutDuration
	cfg.PasswordReset.TTL = c.ResetTokenTTL
	cfg.RateLimit.Enabled = c.RateLimitEnabled

	if err := cfg.Validate(); err != nil {
		return orgauth.Config{}, err
	}
	return cfg, nil
}
