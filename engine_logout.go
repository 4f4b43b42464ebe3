package orgauth

import (
	"context"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/revocation"
)

// Logout ends sessionID, revokes the presented access token for its remaining
// lifetime and revokes every refresh token of the user. An access token that is
// already expired or unparsable is not added to the revocation list.
func (e *Engine) Logout(ctx context.Context, userID, sessionID, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.sessions.Delete(ctx, userID, sessionID); err != nil {
		return backendError(err)
	}

	if claims, err := e.tokens.ParseAccess(accessToken); err == nil && claims.UserID() == userID {
		remaining := claims.Remaining(e.now())
		if remaining > 0 {
			if err := e.revocations.Revoke(ctx, claims.TokenID(), remaining, revocation.ReasonLogout); err != nil {
				return backendError(err)
			}
		}
	}

	if _, err := e.refreshTokens.RevokeAllForUser(ctx, userID, e.now()); err != nil {
		return backendError(err)
	}

	e.metrics.logout()
	e.emitAudit(ctx, audit.EventLogout, true, userID, "", sessionID, nil, nil)
	return nil
}
