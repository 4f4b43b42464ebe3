package orgauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/orgauth/password"
	"github.com/MrEthical07/orgauth/permission"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is the sentinel *AccountLockedError unwraps to.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned when the account status is not active.
	ErrAccountInactive = errors.New("account inactive")
	// ErrEmailExists is returned by Register for a duplicate email.
	ErrEmailExists = errors.New("conflict: email exists")
	// ErrWeakPassword is the sentinel *WeakPasswordError unwraps to.
	ErrWeakPassword = errors.New("weak password")
	// ErrPasswordReuse is returned when a new password matches the current or a
	// recent one.
	ErrPasswordReuse = errors.New("password was used recently")
	// ErrCurrentPasswordMismatch is returned by ChangePassword for a wrong current
	// password.
	ErrCurrentPasswordMismatch = errors.New("current password does not match")
	// ErrInvalidOrExpiredToken is returned for unknown, revoked, reused or expired
	// refresh and reset tokens.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTokenInvalid is returned when an access token fails verification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when an access token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when an access token is on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrSessionNotFound is returned when the token's session no longer exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrIPMismatch is returned when the caller's IP differs from the session's.
	ErrIPMismatch = errors.New("session ip mismatch")
	// ErrUserAgentMismatch is returned when the caller's user agent differs from
	// the session's.
	ErrUserAgentMismatch = errors.New("session user agent mismatch")

	// ErrLoginRateLimited is returned when login throttling rejects an attempt.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when refresh throttling rejects an attempt.
	ErrRefreshRateLimited = errors.New("refresh rate limited")

	// ErrUserNotFound is returned by UserProvider lookups.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrganizationNotFound is returned by OrganizationProvider lookups.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrBackendUnavailable wraps store failures surfaced to callers.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// WeakPasswordError lists every violated strength rule.
type WeakPasswordError struct {
	Violations []password.Violation
}

func (e *WeakPasswordError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message()
	}
	return "weak password: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrWeakPassword.
func (e *WeakPasswordError) Unwrap() error {
	return ErrWeakPassword
}

// AccountLockedError carries the unlock time.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Unwrap returns ErrAccountLocked.
func (e *AccountLockedError) Unwrap() error {
	return ErrAccountLocked
}

// ErrorClass groups errors by how a transport should present them.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassAuthentication
	ClassAuthorization
	ClassPolicy
	ClassConflict
	ClassRateLimited
)

// HTTPStatus returns the status code for the class.
func (c ErrorClass) HTTPStatus() int {
	switch c {
	case ClassAuthentication:
		return 401
	case ClassAuthorization:
		return 403
	case ClassPolicy:
		return 400
	case ClassConflict:
		return 409
	case ClassRateLimited:
		return 429
	default:
		return 500
	}
}

// Classify maps err onto the error taxonomy.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrIPMismatch),
		errors.Is(err, ErrUserAgentMismatch),
		errors.Is(err, ErrInvalidOrExpiredToken):
		return ClassAuthentication
	case errors.Is(err, permission.ErrForbidden):
		return ClassAuthorization
	case errors.Is(err, ErrEmailExists):
		return ClassConflict
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRefreshRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrCurrentPasswordMismatch),
		errors.Is(err, ErrInvalidInput):
		return ClassPolicy
	default:
		return ClassInternal
	}
}

// ClientMessage returns the message safe to show the caller. Authentication
// failures collapse to a generic message so the failing factor is not revealed.
func ClientMessage(err error) string {
	switch Classify(err) {
	case ClassAuthentication:
		if errors.Is(err, ErrInvalidCredentials) {
			return "Invalid credentials"
		}
		return "Invalid token"
	case ClassAuthorization:
		var fe *permission.ForbiddenError
		if errors.As(err, &fe) {
			return "Forbidden: " + fe.Reason
		}
		return "Forbidden"
	case ClassPolicy, ClassConflict:
		return err.Error()
	case ClassRateLimited:
		return "Too many requests"
	default:
		return "Internal error"
	}
}
