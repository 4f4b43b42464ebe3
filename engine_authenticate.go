package orgauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/jwt"
	"github.com/MrEthical07/orgauth/permission"
	"github.com/MrEthical07/orgauth/session"
)

// Authenticate validates a bearer access token presented by client.
//
// Order: signature and expiry, revocation list, session existence, IP and
// user-agent fingerprint. On success the session's activity is refreshed and
// the identity carried by the token is returned.
func (e *Engine) Authenticate(ctx context.Context, token string, client Client) (*Identity, error) {
	started := time.Now()
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx = WithClient(ctx, client)

	identity, err := e.authenticate(ctx, token, client)
	if err != nil {
		e.metrics.authenticate(authenticateResult(err), started)
		userID := ""
		if identity != nil {
			userID = identity.UserID
		}
		e.emitAudit(ctx, audit.EventAuthenticateFailure, false, userID, "", "", err, nil)
		return nil, err
	}
	e.metrics.authenticate("success", started)
	return identity, nil
}

func (e *Engine) authenticate(ctx context.Context, token string, client Client) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	identity := &Identity{
		UserID:              claims.UserID(),
		Email:               claims.Email,
		Role:                permission.Role(claims.Role),
		OrganizationID:      claims.OrganizationID,
		AssignedBranches:    claims.AssignedBranches,
		AssignedDepartments: claims.AssignedDepartments,
		SessionID:           claims.SessionID,
		TokenID:             claims.TokenID(),
		ExpiresAt:           claims.ExpiresAt.Time,
	}
	if !identity.Role.Valid() {
		return identity, ErrTokenInvalid
	}

	reason, err := e.revocations.ReasonFor(ctx, identity.TokenID)
	if err != nil {
		return identity, backendError(err)
	}
	if reason != "" {
		return identity, fmt.Errorf("%w: %s", ErrTokenRevoked, reason)
	}

	if _, err := e.sessions.Validate(ctx, identity.UserID, identity.SessionID, client.IP, client.UserAgent); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return identity, ErrSessionNotFound
		case errors.Is(err, session.ErrIPMismatch):
			return identity, ErrIPMismatch
		case errors.Is(err, session.ErrUserAgentMismatch):
			return identity, ErrUserAgentMismatch
		default:
			return identity, backendError(err)
		}
	}

	if err := e.sessions.Touch(ctx, identity.UserID, identity.SessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return identity, ErrSessionNotFound
		}
		e.logger.WithField("session_id", identity.SessionID).WithError(err).Warn("session touch failed")
	}

	return identity, nil
}

func authenticateResult(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrSessionNotFound):
		return "no_session"
	case errors.Is(err, ErrIPMismatch), errors.Is(err, ErrUserAgentMismatch):
		return "mismatch"
	case errors.Is(err, ErrBackendUnavailable):
		return "error"
	default:
		return "invalid"
	}
}

// AuthorizeScope evaluates req against identity for the target scope id. It
// fails with a *permission.ForbiddenError.
func (e *Engine) AuthorizeScope(ctx context.Context, identity *Identity, req *permission.Requirement, targetID string) error {
	if identity == nil {
		return ErrTokenInvalid
	}
	if err := e.evaluator.Evaluate(ctx, identity.Subject(), req, targetID); err != nil {
		if errors.Is(err, permission.ErrForbidden) {
			e.metrics.scopeDenied(string(req.Kind))
		}
		return err
	}
	return nil
}

// Authorize applies a route policy: the role set first, then the scope
// requirement.
func (e *Engine) Authorize(ctx context.Context, identity *Identity, policy permission.Policy, targetID string) error {
	if identity == nil {
		return ErrTokenInvalid
	}
	if err := permission.CheckRoles(identity.Subject(), policy.Roles); err != nil {
		e.metrics.scopeDenied("role")
		return err
	}
	return e.AuthorizeScope(ctx, identity, policy.Scope, targetID)
}
