package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/orgauth"
	"github.com/sirupsen/logrus"
)

// Authenticator validates an access token for a client.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, client orgauth.Client) (*orgauth.Identity, error)
}

// Options tunes the guards.
type Options struct {
	Logger logrus.FieldLogger
	// TrustProxy takes the client IP from the first X-Forwarded-For entry.
	TrustProxy bool
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Authenticate rejects requests without a valid bearer access token with 401.
// On success the identity and client are available through
// orgauth.IdentityFromContext and orgauth.ClientFromContext.
func Authenticate(auth Authenticator, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				opts.logger().WithField("path", r.URL.Path).Debug("missing bearer token")
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			client := ClientFromRequest(r, opts.TrustProxy)
			identity, err := auth.Authenticate(r.Context(), token, client)
			if err != nil {
				class := orgauth.Classify(err)
				status := class.HTTPStatus()
				if class != orgauth.ClassInternal {
					status = http.StatusUnauthorized
				}
				opts.logger().WithFields(logrus.Fields{
					"path": r.URL.Path,
					"ip":   client.IP,
				}).WithError(err).Debug("authentication rejected")
				writeError(w, status, orgauth.ClientMessage(err))
				return
			}

			ctx := orgauth.WithClient(r.Context(), client)
			ctx = orgauth.WithIdentity(ctx, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the token from the request's Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// Chain composes middleware so the first argument runs first.
func Chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			final = mws[i](final)
		}
		return final
	}
}

// WriteError writes {"error": message} with status.
func WriteError(w http.ResponseWriter, status int, message string) {
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
