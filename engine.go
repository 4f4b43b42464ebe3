package orgauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/internal/rate"
	"github.com/MrEthical07/orgauth/internal/stores"
	"github.com/MrEthical07/orgauth/jwt"
	"github.com/MrEthical07/orgauth/password"
	"github.com/MrEthical07/orgauth/permission"
	"github.com/MrEthical07/orgauth/refresh"
	"github.com/MrEthical07/orgauth/revocation"
	"github.com/MrEthical07/orgauth/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine is the authentication orchestrator and the only writer of sessions,
// revocations and refresh records. It is safe for concurrent use.
type Engine struct {
	config Config

	users    UserProvider
	orgs     OrganizationProvider
	notifier ResetNotifier

	hasher    *password.Hasher
	dummyHash string
	tokens    *jwt.Manager

	sessions      *session.Store
	revocations   *revocation.Store
	refreshTokens refresh.Store
	resets        *stores.PasswordResetStore
	limiter       *rate.Limiter
	evaluator     *permission.Evaluator

	audit   *audit.Dispatcher
	metrics *Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

// Close drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics returns the engine's collectors, or nil when metrics are disabled.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// Ping reports Redis availability.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	_, err := e.sessions.Ping(ctx)
	return err
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.sessions == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

func backendError(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func checkStrength(pw string) error {
	res := password.Strength(pw)
	if !res.Valid {
		return &WeakPasswordError{Violations: res.Violations}
	}
	return nil
}

// reused reports whether candidate matches the current hash or any recent one.
func (e *Engine) reused(candidate string, user *User) bool {
	if user.PasswordHash != "" {
		if ok, err := e.hasher.Verify(candidate, user.PasswordHash); err == nil && ok {
			return true
		}
	}
	return e.hasher.InHistory(candidate, user.PasswordHistory)
}

func (e *Engine) onSessionEvicted(ctx context.Context, userID, sessionID string, err error) {
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"op":      "session_limit",
			"user_id": userID,
		}).WithError(err).Warn("session limit enforcement failed")
		return
	}
	e.metrics.evicted()
	e.emitAudit(ctx, audit.EventSessionEvicted, true, userID, "", sessionID, nil, nil)
}

// mintRefresh signs a refresh token bound to sessionID and prepares its record
// without persisting it.
func (e *Engine) mintRefresh(user *User, sessionID string, client Client) (string, *refresh.Record, error) {
	token, claims, err := e.tokens.IssueRefresh(user.ID)
	if err != nil {
		return "", nil, err
	}
	rec := &refresh.Record{
		ID:             uuid.NewString(),
		TokenHash:      password.HashToken(token),
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		SessionID:      sessionID,
		ExpiresAt:      claims.ExpiresAt.Time,
		CreatedAt:      e.now(),
		CreatedByIP:    client.IP,
	}
	return token, rec, nil
}

func (e *Engine) issueAccess(user *User, sessionID string) (string, *jwt.AccessClaims, error) {
	claims := jwt.AccessClaims{
		Email:               user.Email,
		Role:                string(user.Role),
		OrganizationID:      user.OrganizationID,
		AssignedBranches:    user.AssignedBranches,
		AssignedDepartments: user.AssignedDepartments,
		SessionID:           sessionID,
	}
	claims.Subject = user.ID
	return e.tokens.IssueAccess(claims)
}

func (e *Engine) createSession(ctx context.Context, user *User, client Client) (string, error) {
	sid, err := e.sessions.Create(ctx, &session.Session{
		UserID:              user.ID,
		OrganizationID:      user.OrganizationID,
		Role:                string(user.Role),
		AssignedBranches:    user.AssignedBranches,
		AssignedDepartments: user.AssignedDepartments,
		IP:                  client.IP,
		UserAgent:           client.UserAgent,
	})
	if err != nil {
		return "", backendError(err)
	}
	return sid, nil
}

// issueSession creates a session and a persisted token pair for it. The
// session is removed again if the pair cannot be issued.
func (e *Engine) issueSession(ctx context.Context, user *User, client Client) (*TokenPair, error) {
	sid, err := e.createSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	pair, err := e.issuePair(ctx, user, sid, client)
	if err != nil {
		e.dropSession(ctx, "issue_session", user.ID, sid)
		return nil, err
	}
	return pair, nil
}

// dropSession removes a session whose credentials could not be issued.
func (e *Engine) dropSession(ctx context.Context, op, userID, sessionID string) {
	if err := e.sessions.Delete(ctx, userID, sessionID); err != nil {
		e.logger.WithFields(logrus.Fields{
			"op":         op,
			"user_id":    userID,
			"session_id": sessionID,
		}).WithError(err).Warn("orphan session cleanup failed")
	}
}

func (e *Engine) issuePair(ctx context.Context, user *User, sessionID string, client Client) (*TokenPair, error) {
	access, accessClaims, err := e.issueAccess(user, sessionID)
	if err != nil {
		return nil, err
	}
	refreshToken, rec, err := e.mintRefresh(user, sessionID, client)
	if err != nil {
		return nil, err
	}
	if err := e.refreshTokens.Save(ctx, rec); err != nil {
		return nil, backendError(err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: rec.ExpiresAt,
		SessionID:        sessionID,
	}, nil
}

// revokeUserCredentials revokes every refresh record of userID and deletes
// every session except keepSessionID.
func (e *Engine) revokeUserCredentials(ctx context.Context, userID, keepSessionID string) error {
	if _, err := e.refreshTokens.RevokeAllForUser(ctx, userID, e.now()); err != nil {
		return backendError(err)
	}
	if _, err := e.sessions.DeleteAllExcept(ctx, userID, keepSessionID); err != nil {
		return backendError(err)
	}
	return nil
}

func (e *Engine) warn(op, userID string, err error) {
	e.logger.WithFields(logrus.Fields{
		"op":      op,
		"user_id": userID,
	}).WithError(err).Warn("best-effort step failed")
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
