package orgauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/internal/stores"
	"github.com/MrEthical07/orgauth/password"
)

// ChangePassword replaces the caller's password. The current password must
// match and the new one must pass the strength policy and differ from the
// current and recent passwords. Every other session of the user is ended and
// every refresh token revoked; the caller's session survives and receives a
// fresh token pair.
func (e *Engine) ChangePassword(ctx context.Context, in ChangePasswordInput, client Client) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx = WithClient(ctx, client)

	user, err := e.users.FindByID(ctx, in.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, backendError(err)
	}

	ok, err := e.hasher.Verify(in.CurrentPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metrics.passwordChange("mismatch")
		e.emitAudit(ctx, audit.EventPasswordChange, false, user.ID, user.OrganizationID, in.SessionID, ErrCurrentPasswordMismatch, nil)
		return nil, ErrCurrentPasswordMismatch
	}
	if err := checkStrength(in.NewPassword); err != nil {
		e.metrics.passwordChange("weak")
		return nil, err
	}
	if e.reused(in.NewPassword, user) {
		e.metrics.passwordChange("reuse")
		return nil, ErrPasswordReuse
	}

	if err := e.setPassword(ctx, user, in.NewPassword); err != nil {
		return nil, err
	}
	if err := e.revokeUserCredentials(ctx, user.ID, in.SessionID); err != nil {
		return nil, err
	}

	tokens, err := e.issuePair(ctx, user, in.SessionID, client)
	if err != nil {
		return nil, err
	}

	e.metrics.passwordChange("success")
	e.emitAudit(ctx, audit.EventPasswordChange, true, user.ID, user.OrganizationID, in.SessionID, nil, nil)
	return tokens, nil
}

// setPassword hashes plain and pushes the previous hash onto the history.
func (e *Engine) setPassword(ctx context.Context, user *User, plain string) error {
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		return err
	}
	history := password.PushHistory(user.PasswordHistory, user.PasswordHash)
	if err := e.users.UpdatePassword(ctx, user.ID, hash, history); err != nil {
		return backendError(err)
	}
	user.PasswordHash = hash
	user.PasswordHistory = history
	return nil
}

// ForgotPassword issues a single-use reset token for email and hands it to the
// ResetNotifier. It returns nil whether or not the email belongs to an active
// account; delivery and storage failures are logged only.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			e.warn("password_reset_request", "", err)
		}
		e.metrics.passwordReset("request", "ignored")
		return nil
	}
	if user.Status != AccountActive {
		e.metrics.passwordReset("request", "ignored")
		return nil
	}

	token, err := password.GenerateOpaqueToken()
	if err != nil {
		e.warn("password_reset_request", user.ID, err)
		return nil
	}
	ttl := e.config.PasswordReset.TTL
	if err := e.resets.Save(ctx, password.HashToken(token), user.ID, ttl); err != nil {
		e.warn("password_reset_request", user.ID, err)
		e.metrics.passwordReset("request", "error")
		return nil
	}

	if e.notifier != nil {
		if err := e.notifier.SendPasswordReset(ctx, user.Email, token, e.now().Add(ttl)); err != nil {
			e.warn("password_reset_notify", user.ID, err)
		}
	} else {
		e.logger.WithField("user_id", user.ID).Warn("password reset requested without a notifier")
	}

	e.metrics.passwordReset("request", "success")
	e.emitAudit(ctx, audit.EventPasswordResetRequest, true, user.ID, user.OrganizationID, "", nil, nil)
	return nil
}

// ResetPassword redeems a reset token. The token is consumed only once the new
// password has passed the strength and history checks, so a rejected password
// can be retried with the same token. Every session and refresh token of the
// user is revoked and any lockout is cleared.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	if err := checkStrength(newPassword); err != nil {
		e.metrics.passwordReset("confirm", "weak")
		return err
	}

	digest := password.HashToken(token)
	userID, err := e.resets.Peek(ctx, digest)
	if err != nil {
		return e.resetLookupError(err)
	}
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrInvalidOrExpiredToken
		}
		return backendError(err)
	}
	if e.reused(newPassword, user) {
		e.metrics.passwordReset("confirm", "reuse")
		return ErrPasswordReuse
	}

	consumed, err := e.resets.Consume(ctx, digest)
	if err != nil {
		return e.resetLookupError(err)
	}
	if consumed != user.ID {
		return ErrInvalidOrExpiredToken
	}

	if err := e.setPassword(ctx, user, newPassword); err != nil {
		return err
	}
	if err := e.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		e.warn("password_reset_unlock", user.ID, err)
	}
	if err := e.revokeUserCredentials(ctx, user.ID, ""); err != nil {
		return err
	}

	e.metrics.passwordReset("confirm", "success")
	e.emitAudit(ctx, audit.EventPasswordResetConfirm, true, user.ID, user.OrganizationID, "", nil, nil)
	return nil
}

func (e *Engine) resetLookupError(err error) error {
	if errors.Is(err, stores.ErrResetNotFound) {
		e.metrics.passwordReset("confirm", "invalid")
		return ErrInvalidOrExpiredToken
	}
	return backendError(err)
}
