package orgauth

import (
	"context"
	"time"

	"github.com/MrEthical07/orgauth/permission"
)

// AccountStatus is the lifecycle state of a user account.
type AccountStatus string

const (
	AccountActive   AccountStatus = "ACTIVE"
	AccountInactive AccountStatus = "INACTIVE"
)

// User is the identity record held by the user collaborator.
type User struct {
	ID                  string
	Email               string
	Name                string
	Role                permission.Role
	OrganizationID      string
	AssignedBranches    []string
	AssignedDepartments []string
	PasswordHash        string
	PasswordHistory     []string // previous hashes, most recent first
	Status              AccountStatus
	FailedLoginAttempts int
	LockedUntil         time.Time
	LastLoginAt         time.Time
	CreatedAt           time.Time
}

// IsLocked reports whether the account is locked at now.
func (u *User) IsLocked(now time.Time) bool {
	return !u.LockedUntil.IsZero() && now.Before(u.LockedUntil)
}

// Organization is the tenant root.
type Organization struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// UserProvider is the user-identity collaborator. Lookups of unknown users
// return ErrUserNotFound.
type UserProvider interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, userID string) (*User, error)
	// Create persists a new user. It returns ErrEmailExists for a duplicate email.
	Create(ctx context.Context, user *User) error
	// IncrementFailedAttempts increments the failure counter and returns the new
	// value.
	IncrementFailedAttempts(ctx context.Context, userID string) (int, error)
	LockAccount(ctx context.Context, userID string, until time.Time) error
	// ResetFailedAttempts zeroes the failure counter and clears any lock.
	ResetFailedAttempts(ctx context.Context, userID string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	UpdatePassword(ctx context.Context, userID, hash string, history []string) error
}

// OrganizationProvider is the organization collaborator. Lookups of unknown
// organizations return ErrOrganizationNotFound.
type OrganizationProvider interface {
	Create(ctx context.Context, org *Organization) error
	FindByID(ctx context.Context, organizationID string) (*Organization, error)
	Delete(ctx context.Context, organizationID string) error
}

// ResetNotifier delivers password-reset tokens to users.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// Client is the network fingerprint of the caller.
type Client struct {
	IP        string
	UserAgent string
}

// Credentials are the login inputs.
type Credentials struct {
	Email    string
	Password string
}

// RegisterInput creates an organization and its owner.
type RegisterInput struct {
	OrganizationName string
	Name             string
	Email            string
	Password         string
}

// ChangePasswordInput identifies the caller's own session so it survives the
// change.
type ChangePasswordInput struct {
	UserID          string
	SessionID       string
	CurrentPassword string
	NewPassword     string
}

// TokenPair is an access token and its refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
}

// LoginResult is returned by Login.
type LoginResult struct {
	User   *User
	Tokens *TokenPair
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	User         *User
	Organization *Organization
	Tokens       *TokenPair
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID              string
	Email               string
	Role                permission.Role
	OrganizationID      string
	AssignedBranches    []string
	AssignedDepartments []string
	SessionID           string
	TokenID             string
	ExpiresAt           time.Time
}

// Subject converts the identity for scope evaluation.
func (i *Identity) Subject() permission.Subject {
	return permission.Subject{
		UserID:              i.UserID,
		Role:                i.Role,
		OrganizationID:      i.OrganizationID,
		AssignedBranches:    i.AssignedBranches,
		AssignedDepartments: i.AssignedDepartments,
	}
}

// SessionInfo describes one live session for listing.
type SessionInfo struct {
	ID             string
	IP             string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
}
