package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/orgauth"
	"github.com/MrEthical07/orgauth/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	refreshCookieName = "refresh_token"
	maxBodyBytes      = 1 << 20
)

type handlers struct {
	engine *orgauth.Engine
	opts   middleware.Options
}

type tokenResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
	SessionID       string    `json:"sessionId"`
}

type userResponse struct {
	ID                  string   `json:"id"`
	Email               string   `json:"email"`
	Name                string   `json:"name"`
	Role                string   `json:"role"`
	OrganizationID      string   `json:"organizationId"`
	AssignedBranches    []string `json:"assignedBranches"`
	AssignedDepartments []string `json:"assignedDepartments"`
}

func newUserResponse(u *orgauth.User) userResponse {
	return userResponse{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		Role:                string(u.Role),
		OrganizationID:      u.OrganizationID,
		AssignedBranches:    u.AssignedBranches,
		AssignedDepartments: u.AssignedDepartments,
	}
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrganizationName string `json:"organizationName"`
		Name             string `json:"name"`
		Email            string `json:"email"`
		Password         string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.Register(r.Context(), orgauth.RegisterInput{
		OrganizationName: body.OrganizationName,
		Name:             body.Name,
		Email:            body.Email,
		Password:         body.Password,
	}, h.client(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setRefreshCookie(w, r, res.Tokens)
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":         newUserResponse(res.User),
		"organization": map[string]string{"id": res.Organization.ID, "name": res.Organization.Name},
		"tokens":       newTokenResponse(res.Tokens),
	})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.Login(r.Context(), orgauth.Credentials{Email: body.Email, Password: body.Password}, h.client(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setRefreshCookie(w, r, res.Tokens)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   newUserResponse(res.User),
		"tokens": newTokenResponse(res.Tokens),
	})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		token = cookie.Value
	}
	if token == "" && r.ContentLength != 0 {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if !decode(w, r, &body) {
			return
		}
		token = body.RefreshToken
	}
	if token == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	pair, err := h.engine.Refresh(r.Context(), token, h.client(r))
	if err != nil {
		clearRefreshCookie(w, r)
		h.fail(w, r, err)
		return
	}

	setRefreshCookie(w, r, pair)
	writeJSON(w, http.StatusOK, map[string]any{"tokens": newTokenResponse(pair)})
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := h.engine.ForgotPassword(r.Context(), body.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists for that email, a reset link has been sent",
	})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	identity, _ := orgauth.IdentityFromContext(r.Context())
	token, _ := middleware.BearerToken(r)
	if err := h.engine.Logout(r.Context(), identity.UserID, identity.SessionID, token); err != nil {
		h.fail(w, r, err)
		return
	}
	clearRefreshCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	identity, _ := orgauth.IdentityFromContext(r.Context())
	if err := h.engine.LogoutAll(r.Context(), identity.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	clearRefreshCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	identity, _ := orgauth.IdentityFromContext(r.Context())
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decode(w, r, &body) {
		return
	}

	pair, err := h.engine.ChangePassword(r.Context(), orgauth.ChangePasswordInput{
		UserID:          identity.UserID,
		SessionID:       identity.SessionID,
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.NewPassword,
	}, orgauth.ClientFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setRefreshCookie(w, r, pair)
	writeJSON(w, http.StatusOK, map[string]any{"tokens": newTokenResponse(pair)})
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	identity, _ := orgauth.IdentityFromContext(r.Context())
	sessions, err := h.engine.ListSessions(r.Context(), identity.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	type sessionResponse struct {
		ID             string    `json:"id"`
		IP             string    `json:"ip"`
		UserAgent      string    `json:"userAgent"`
		CreatedAt      time.Time `json:"createdAt"`
		LastActivityAt time.Time `json:"lastActivityAt"`
		Current        bool      `json:"current"`
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:             s.ID,
			IP:             s.IP,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			Current:        s.ID == identity.SessionID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *handlers) revokeSession(w http.ResponseWriter, r *http.Request) {
	identity, _ := orgauth.IdentityFromContext(r.Context())
	if err := h.engine.RevokeSession(r.Context(), identity.UserID, mux.Vars(r)["sessionId"]); err != nil {
		if errors.Is(err, orgauth.ErrSessionNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "session not found")
			return
		}
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	identity, _ := orgauth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                  identity.UserID,
		"email":               identity.Email,
		"role":                string(identity.Role),
		"organizationId":      identity.OrganizationID,
		"assignedBranches":    identity.AssignedBranches,
		"assignedDepartments": identity.AssignedDepartments,
		"sessionId":           identity.SessionID,
	})
}

// scopedResource stands in for application handlers behind the policy table.
func (h *handlers) scopedResource(w http.ResponseWriter, r *http.Request) {
	identity, _ := orgauth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"organizationId": identity.OrganizationID,
		"resource":       mux.Vars(r),
	})
}

func (h *handlers) client(r *http.Request) orgauth.Client {
	return middleware.ClientFromRequest(r, h.opts.TrustProxy)
}

// fail writes err using the engine's error taxonomy. Weak passwords carry the
// violated rules and lockouts carry the unlock time.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	class := orgauth.Classify(err)
	status := class.HTTPStatus()
	if class == orgauth.ClassInternal {
		h.logger().WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}

	body := map[string]any{"error": orgauth.ClientMessage(err)}
	var weak *orgauth.WeakPasswordError
	if errors.As(err, &weak) {
		violations := make([]string, len(weak.Violations))
		for i, v := range weak.Violations {
			violations[i] = v.Message()
		}
		body["violations"] = violations
	}
	var locked *orgauth.AccountLockedError
	if errors.As(err, &locked) {
		body["lockedUntil"] = locked.Until.UTC()
	}
	writeJSON(w, status, body)
}

func (h *handlers) logger() logrus.FieldLogger {
	if h.opts.Logger != nil {
		return h.opts.Logger
	}
	return logrus.StandardLogger()
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func newTokenResponse(p *orgauth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:     p.AccessToken,
		AccessExpiresAt: p.AccessExpiresAt,
		SessionID:       p.SessionID,
	}
}

// The refresh token travels only in an HttpOnly cookie scoped to /auth.
func setRefreshCookie(w http.ResponseWriter, r *http.Request, p *orgauth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    p.RefreshToken,
		Path:     "/auth",
		Expires:  p.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
