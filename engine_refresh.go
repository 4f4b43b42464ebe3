package orgauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/internal/rate"
	"github.com/MrEthical07/orgauth/password"
	"github.com/MrEthical07/orgauth/refresh"
)

// Refresh exchanges a refresh token for a new access and refresh pair bound to a
// new session that replaces the one the token was issued with. The presented token is revoked and chained to its successor in one
// conditional step, so of two concurrent exchanges of the same token exactly one
// succeeds. Unknown, revoked, reused and expired tokens all fail with
// ErrInvalidOrExpiredToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, client Client) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx = WithClient(ctx, client)

	if err := e.limiter.CheckRefresh(ctx, client.IP); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metrics.refresh("rate_limited")
			return nil, ErrRefreshRateLimited
		}
		return nil, backendError(err)
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, e.refreshInvalid(ctx, "", "signature")
	}

	rec, err := e.refreshTokens.FindByHash(ctx, password.HashToken(refreshToken))
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		return nil, e.refreshInvalid(ctx, claims.Subject, "unknown")
	case err != nil:
		return nil, backendError(err)
	}

	now := e.now()
	if rec.Revoked() {
		return nil, e.refreshReused(ctx, rec)
	}
	if rec.Expired(now) || rec.UserID != claims.Subject {
		return nil, e.refreshInvalid(ctx, claims.Subject, "expired")
	}

	user, err := e.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, e.refreshInvalid(ctx, rec.UserID, "user")
		}
		return nil, backendError(err)
	}
	if user.Status != AccountActive {
		return nil, e.refreshInvalid(ctx, user.ID, "inactive")
	}

	// The predecessor session is removed before its successor is counted
	// against the per-user cap.
	if rec.SessionID != "" {
		if err := e.sessions.Delete(ctx, user.ID, rec.SessionID); err != nil {
			return nil, backendError(err)
		}
	}

	sid, err := e.createSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	nextToken, next, err := e.mintRefresh(user, sid, client)
	if err != nil {
		e.dropSession(ctx, "refresh", user.ID, sid)
		return nil, err
	}
	if err := e.refreshTokens.Rotate(ctx, rec.TokenHash, next, now); err != nil {
		e.dropSession(ctx, "refresh", user.ID, sid)
		switch {
		case errors.Is(err, refresh.ErrAlreadyRevoked), errors.Is(err, refresh.ErrNotFound):
			return nil, e.refreshInvalid(ctx, user.ID, "lost_race")
		default:
			return nil, backendError(err)
		}
	}

	access, accessClaims, err := e.issueAccess(user, sid)
	if err != nil {
		return nil, err
	}

	e.metrics.refresh("success")
	e.emitAudit(ctx, audit.EventRefreshSuccess, true, user.ID, user.OrganizationID, sid, nil, nil)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     nextToken,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: next.ExpiresAt,
		SessionID:        sid,
	}, nil
}

func (e *Engine) refreshInvalid(ctx context.Context, userID, reason string) error {
	e.metrics.refresh("invalid")
	e.emitAudit(ctx, audit.EventRefreshInvalid, false, userID, "", "", ErrInvalidOrExpiredToken, map[string]string{
		"reason": reason,
	})
	return ErrInvalidOrExpiredToken
}

// refreshReused handles a token that was already exchanged or revoked. With
// RevokeFamilyOnReuse every credential of the owner is dropped.
func (e *Engine) refreshReused(ctx context.Context, rec *refresh.Record) error {
	e.metrics.refresh("reuse")
	e.emitAudit(ctx, audit.EventRefreshReuse, false, rec.UserID, rec.OrganizationID, "", ErrInvalidOrExpiredToken, map[string]string{
		"replaced_by": rec.ReplacedBy,
	})

	if e.config.JWT.RevokeFamilyOnReuse {
		if _, err := e.refreshTokens.RevokeAllForUser(ctx, rec.UserID, e.now()); err != nil {
			e.warn("refresh_reuse_revoke", rec.UserID, err)
		}
		if err := e.sessions.DeleteAll(ctx, rec.UserID); err != nil {
			e.warn("refresh_reuse_sessions", rec.UserID, err)
		}
	}
	return ErrInvalidOrExpiredToken
}
