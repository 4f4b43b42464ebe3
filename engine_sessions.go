package orgauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/session"
)

// ListSessions returns the user's live sessions, most recently active first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	sessions, err := e.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, backendError(err)
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ID:             s.ID,
			IP:             s.IP,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
		})
	}
	return out, nil
}

// RevokeSession ends one session of the user. Access tokens bound to it stop
// authenticating immediately because the session no longer exists.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.sessions.Get(ctx, userID, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return backendError(err)
	}
	if err := e.sessions.Delete(ctx, userID, sessionID); err != nil {
		return backendError(err)
	}
	e.emitAudit(ctx, audit.EventSessionRevoked, true, userID, "", sessionID, nil, nil)
	return nil
}

// LogoutAll ends every session and revokes every refresh token of the user.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.sessions.DeleteAll(ctx, userID); err != nil {
		return backendError(err)
	}
	if _, err := e.refreshTokens.RevokeAllForUser(ctx, userID, e.now()); err != nil {
		return backendError(err)
	}
	e.metrics.logout()
	e.emitAudit(ctx, audit.EventLogout, true, userID, "", "", nil, map[string]string{"scope": "all"})
	return nil
}
