// Package middleware provides HTTP middleware for the control plane.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/maxpark/accessd/pkg/session"
)

type contextKey string

const usernameContextKey contextKey = "username"

// UsernameFromContext returns the authenticated username, or "" when
// the request was not authenticated through SessionAuth.
func UsernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameContextKey).(string)
	return username
}

// extractBearerToken pulls the token out of a Bearer Authorization
// header.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// SessionAuth authenticates requests against the session store. When
// basicEnabled reports true, HTTP Basic credentials checked against
// the admin credentials are accepted as a fallback so curl and legacy
// dashboard builds keep working.
func SessionAuth(sessions *session.Store, creds *session.Credentials, basicEnabled func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := extractBearerToken(r); ok {
				if sess, valid := sessions.Validate(token); valid {
					ctx := context.WithValue(r.Context(), usernameContextKey, sess.Username)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				unauthorized(w, "Invalid or expired session")
				return
			}

			if basicEnabled != nil && basicEnabled() {
				if username, password, ok := r.BasicAuth(); ok && creds.Verify(username, password) {
					ctx := context.WithValue(r.Context(), usernameContextKey, username)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			unauthorized(w, "Authentication required")
		})
	}
}

// RequireAPIKey enforces the shared-secret X-API-Key header. Applied
// to mutating routes only, and only when the deployment configures a
// key with require_api_key set.
func RequireAPIKey(creds *session.Credentials, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required || !creds.HasAPIKey() {
				next.ServeHTTP(w, r)
				return
			}
			if !creds.VerifyAPIKey(r.Header.Get("X-API-Key")) {
				forbidden(w, "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

func forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, message)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": message,
	})
}
