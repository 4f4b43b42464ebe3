package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/orgauth"
	"github.com/MrEthical07/orgauth/permission"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxScopeBodyBytes = 1 << 20

// Authorizer applies role and scope checks to an authenticated identity.
type Authorizer interface {
	AuthorizeScope(ctx context.Context, identity *orgauth.Identity, req *permission.Requirement, targetID string) error
	Authorize(ctx context.Context, identity *orgauth.Identity, policy permission.Policy, targetID string) error
}

// AuthorizeScope enforces req on every request. It must run after
// Authenticate.
func AuthorizeScope(authz Authorizer, req *permission.Requirement, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := orgauth.IdentityFromContext(r.Context())
			if !ok || authz == nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			target, err := targetID(r, req)
			if err != nil {
				deny(w, r, err, opts)
				return
			}
			if err := authz.AuthorizeScope(r.Context(), identity, req, target); err != nil {
				deny(w, r, err, opts)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authorize enforces the policy registered in table for the matched route
// template. Routes missing from the table pass through.
func Authorize(authz Authorizer, table *permission.Table, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := orgauth.IdentityFromContext(r.Context())
			if !ok || authz == nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			policy, found := lookupPolicy(r, table)
			if !found {
				next.ServeHTTP(w, r)
				return
			}

			target, err := targetID(r, policy.Scope)
			if err != nil {
				deny(w, r, err, opts)
				return
			}
			if err := authz.Authorize(r.Context(), identity, policy, target); err != nil {
				deny(w, r, err, opts)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func lookupPolicy(r *http.Request, table *permission.Table) (permission.Policy, bool) {
	if table == nil {
		return permission.Policy{}, false
	}
	route := mux.CurrentRoute(r)
	if route == nil {
		return permission.Policy{}, false
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		return permission.Policy{}, false
	}
	return table.Lookup(r.Method, template)
}

func deny(w http.ResponseWriter, r *http.Request, err error, opts Options) {
	opts.logger().WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"method": r.Method,
	}).WithError(err).Debug("authorization rejected")

	class := orgauth.Classify(err)
	writeError(w, class.HTTPStatus(), orgauth.ClientMessage(err))
}

// targetID reads the scope id from the path parameter, falling back to a
// top-level field of a JSON body. Body keys match the parameter
// case-insensitively, as struct decoding does. A body that cannot be checked
// (unparsable, oversized, ambiguous keys, non-string id) is forbidden so the
// handler never sees a target the guard did not. The body is restored for the
// handler.
func targetID(r *http.Request, req *permission.Requirement) (string, error) {
	if req == nil || req.Param == "" {
		return "", nil
	}
	if v, ok := mux.Vars(r)[req.Param]; ok && v != "" {
		return v, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxScopeBodyBytes+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return "", &permission.ForbiddenError{Reason: "request body unreadable"}
	}
	if len(data) > maxScopeBodyBytes {
		return "", &permission.ForbiddenError{Reason: "request body too large for scope check"}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", &permission.ForbiddenError{Reason: "request body is not a JSON object"}
	}

	var raw json.RawMessage
	matches := 0
	for key, value := range fields {
		if strings.EqualFold(key, req.Param) {
			raw = value
			matches++
		}
	}
	switch {
	case matches == 0:
		return "", nil
	case matches > 1:
		return "", &permission.ForbiddenError{Reason: "ambiguous " + req.Param + " in request body"}
	}

	if string(bytes.TrimSpace(raw)) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &permission.ForbiddenError{Reason: req.Param + " must be a string"}
	}
	return s, nil
}
