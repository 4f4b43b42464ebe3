package orgauth

import (
	"errors"
	"time"
)

// Config holds every Engine setting. Obtain one with DefaultConfig and override
// fields; Build validates it.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Refresh       RefreshConfig
	Revocation    RevocationConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing. Both secrets are required, must be at least
// 32 bytes and must differ.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	// RevokeFamilyOnReuse revokes every refresh token and session of a user when
	// an already-rotated refresh token is presented again.
	RevokeFamilyOnReuse bool
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix      string
	TTL              time.Duration
	MaxPerUser       int
	AbsoluteLifetime time.Duration // 0 disables
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory         uint32 // KiB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

type PasswordResetConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

// RateLimitConfig configures optional Redis throttling in front of lockout.
type RateLimitConfig struct {
	Enabled            bool
	EnableIPThrottle   bool
	MaxLoginAttempts   int
	LoginWindow        time.Duration
	MaxRefreshAttempts int
	RefreshWindow      time.Duration
}

// RefreshConfig selects the key prefix used when refresh records live in Redis.
type RefreshConfig struct {
	RedisPrefix string
}

type RevocationConfig struct {
	RedisPrefix string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// DefaultConfig returns the production defaults. Secrets are left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  24 * time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "orgauth",
		},
		Session: SessionConfig{
			RedisPrefix: "sess",
			TTL:         24 * time.Hour,
			MaxPerUser:  3,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           1,
			Parallelism:    4,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    30 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			RedisPrefix: "pwr",
			TTL:         time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:            false,
			EnableIPThrottle:   true,
			MaxLoginAttempts:   20,
			LoginWindow:        15 * time.Minute,
			MaxRefreshAttempts: 60,
			RefreshWindow:      time.Minute,
		},
		Refresh: RefreshConfig{
			RedisPrefix: "rt",
		},
		Revocation: RevocationConfig{
			RedisPrefix: "revoked",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "orgauth",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.MaxPerUser <= 0 {
		return errors.New("Session MaxPerUser must be > 0")
	}
	if c.Session.AbsoluteLifetime < 0 {
		return errors.New("Session AbsoluteLifetime must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KiB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Password reset
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		// The account must lock before the identifier budget runs out.
		if c.RateLimit.MaxLoginAttempts <= c.Lockout.MaxAttempts {
			return errors.New("RateLimit MaxLoginAttempts must be > Lockout MaxAttempts")
		}
		if c.RateLimit.LoginWindow <= 0 {
			return errors.New("RateLimit LoginWindow must be > 0")
		}
		if c.RateLimit.MaxRefreshAttempts > 0 && c.RateLimit.RefreshWindow <= 0 {
			return errors.New("RateLimit RefreshWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
