package jwt

import (
	"errors"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

// Config configures a Manager. AccessSecret and RefreshSecret must differ so that a
// leaked access secret cannot mint refresh tokens and vice versa.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Manager issues and parses access and refresh tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case len(cfg.AccessSecret) < minSecretBytes:
		return nil, errors.New("access secret must be at least 32 bytes")
	case len(cfg.RefreshSecret) < minSecretBytes:
		return nil, errors.New("refresh secret must be at least 32 bytes")
	case string(cfg.AccessSecret) == string(cfg.RefreshSecret):
		return nil, errors.New("access and refresh secrets must differ")
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, errors.New("invalid TTL configuration")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// WithClock replaces the time source used for stamping and validation.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess signs claims with a fresh jti. The returned claims carry the
// stamped iat/exp.
func (m *Manager) IssueAccess(claims AccessClaims) (string, *AccessClaims, error) {
	claims.ID = uuid.NewString()
	claims.Issuer = m.config.Issuer
	token, err := signAt(&claims, m.config.AccessSecret, m.config.AccessTTL, m.now())
	if err != nil {
		return "", nil, err
	}
	return token, &claims, nil
}

// IssueRefresh signs a refresh token for userID.
func (m *Manager) IssueRefresh(userID string) (string, *RefreshClaims, error) {
	claims := RefreshClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject: userID,
		ID:      uuid.NewString(),
		Issuer:  m.config.Issuer,
	}}
	token, err := signAt(&claims, m.config.RefreshSecret, m.config.RefreshTTL, m.now())
	if err != nil {
		return "", nil, err
	}
	return token, &claims, nil
}

// ParseAccess verifies token with the access secret.
func (m *Manager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := Verify(token, m.config.AccessSecret, claims, m.parserOptions()...); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.ID == "" {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// ParseRefresh verifies token with the refresh secret.
func (m *Manager) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := Verify(token, m.config.RefreshSecret, claims, m.parserOptions()...); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

func (m *Manager) parserOptions() []gjwt.ParserOption {
	opts := []gjwt.ParserOption{gjwt.WithTimeFunc(m.now)}
	if m.config.Leeway > 0 {
		opts = append(opts, gjwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		opts = append(opts, gjwt.WithIssuer(m.config.Issuer))
	}
	return opts
}
