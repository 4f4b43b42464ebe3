package orgauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/internal/rate"
	"github.com/sirupsen/logrus"
)

// Login verifies credentials and opens a new session.
//
// An unknown email and a wrong password both fail with ErrInvalidCredentials.
// A locked account fails with *AccountLockedError even when the password is
// correct. Every failed password check increments the failure counter; reaching
// Lockout.MaxAttempts locks the account for Lockout.Duration.
func (e *Engine) Login(ctx context.Context, creds Credentials, client Client) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx = WithClient(ctx, client)

	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		e.metrics.login("invalid")
		return nil, ErrInvalidCredentials
	}

	if err := e.limiter.CheckLogin(ctx, email, client.IP); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metrics.login("rate_limited")
			e.emitAudit(ctx, audit.EventLoginFailure, false, "", "", "", ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
		return nil, backendError(err)
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			return nil, backendError(err)
		}
		// Burn the same hashing cost as a real check.
		_, _ = e.hasher.Verify(creds.Password, e.dummyHash)
		e.failLoginAttempt(ctx, email, client)
		e.metrics.login("invalid")
		e.emitAudit(ctx, audit.EventLoginFailure, false, "", "", "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	now := e.now()
	if user.IsLocked(now) {
		e.metrics.login("locked")
		lockErr := &AccountLockedError{Until: user.LockedUntil}
		e.emitAudit(ctx, audit.EventLoginFailure, false, user.ID, user.OrganizationID, "", lockErr, nil)
		return nil, lockErr
	}
	if !user.LockedUntil.IsZero() {
		// The lock window has elapsed; start a fresh counter.
		if err := e.users.ResetFailedAttempts(ctx, user.ID); err != nil {
			return nil, backendError(err)
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = time.Time{}
	}

	ok, err := e.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"op":      "login",
			"user_id": user.ID,
		}).WithError(err).Error("stored password hash is unusable")
		ok = false
	}
	if !ok {
		return nil, e.recordFailedPassword(ctx, user, email, client)
	}

	if user.Status != AccountActive {
		e.metrics.login("inactive")
		e.emitAudit(ctx, audit.EventLoginFailure, false, user.ID, user.OrganizationID, "", ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	if user.FailedLoginAttempts > 0 {
		if err := e.users.ResetFailedAttempts(ctx, user.ID); err != nil {
			return nil, backendError(err)
		}
		user.FailedLoginAttempts = 0
	}
	if err := e.limiter.ResetLogin(ctx, email); err != nil {
		e.warn("login_rate_reset", user.ID, err)
	}
	if err := e.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, backendError(err)
	}
	user.LastLoginAt = now

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, user, creds.Password)
	}

	tokens, err := e.issueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	e.metrics.login("success")
	e.emitAudit(ctx, audit.EventLoginSuccess, true, user.ID, user.OrganizationID, tokens.SessionID, nil, nil)

	return &LoginResult{User: user, Tokens: tokens}, nil
}

func (e *Engine) failLoginAttempt(ctx context.Context, email string, client Client) {
	if err := e.limiter.IncrementLogin(ctx, email, client.IP); err != nil {
		e.warn("login_rate_increment", "", err)
	}
}

// recordFailedPassword increments the user's failure counter and locks the
// account once the threshold is reached. The returned error is always
// ErrInvalidCredentials unless the counter itself cannot be written.
func (e *Engine) recordFailedPassword(ctx context.Context, user *User, email string, client Client) error {
	e.failLoginAttempt(ctx, email, client)

	attempts, err := e.users.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		return backendError(err)
	}

	if attempts >= e.config.Lockout.MaxAttempts {
		until := e.now().Add(e.config.Lockout.Duration)
		if err := e.users.LockAccount(ctx, user.ID, until); err != nil {
			return backendError(err)
		}
		e.emitAudit(ctx, audit.EventAccountLocked, true, user.ID, user.OrganizationID, "", nil, map[string]string{
			"until": until.UTC().Format(time.RFC3339),
		})
	}

	e.metrics.login("invalid")
	e.emitAudit(ctx, audit.EventLoginFailure, false, user.ID, user.OrganizationID, "", ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

func (e *Engine) upgradeHash(ctx context.Context, user *User, plain string) {
	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		e.warn("password_upgrade", user.ID, err)
		return
	}
	// Same secret, new encoding: history is left untouched.
	if err := e.users.UpdatePassword(ctx, user.ID, hash, user.PasswordHistory); err != nil {
		e.warn("password_upgrade", user.ID, err)
		return
	}
	user.PasswordHash = hash
}
