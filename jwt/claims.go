package jwt

import (
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// Stampable is a claims set whose issued-at and expiry can be set at signing time.
type Stampable interface {
	gjwt.Claims
	Stamp(issuedAt time.Time, ttl time.Duration)
}

// AccessClaims is the access-token claims schema:
// {sub, email, role, organizationId, assignedBranches, assignedDepartments, sessionId, iat, exp, jti}.
type AccessClaims struct {
	Email               string   `json:"email"`
	Role                string   `json:"role"`
	OrganizationID      string   `json:"organizationId"`
	AssignedBranches    []string `json:"assignedBranches"`
	AssignedDepartments []string `json:"assignedDepartments"`
	SessionID           string   `json:"sessionId"`
	gjwt.RegisteredClaims
}

// Stamp sets iat and exp.
func (c *AccessClaims) Stamp(issuedAt time.Time, ttl time.Duration) {
	c.IssuedAt = gjwt.NewNumericDate(issuedAt)
	c.ExpiresAt = gjwt.NewNumericDate(issuedAt.Add(ttl))
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// TokenID returns the jti claim used as the revocation key.
func (c *AccessClaims) TokenID() string {
	return c.ID
}

// Remaining returns how long the token stays valid after now. It is zero or
// negative for expired tokens.
func (c *AccessClaims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// RefreshClaims carries only the user id and expiry, plus a jti that makes every
// issued refresh token string unique.
type RefreshClaims struct {
	gjwt.RegisteredClaims
}

// Stamp sets iat and exp.
func (c *RefreshClaims) Stamp(issuedAt time.Time, ttl time.Duration) {
	c.IssuedAt = gjwt.NewNumericDate(issuedAt)
	c.ExpiresAt = gjwt.NewNumericDate(issuedAt.Add(ttl))
}
