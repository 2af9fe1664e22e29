package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/riskguard/riskguard/internal/auth"
)

// Context keys for authenticated user data
const (
	UserIDKey contextKey = "user_id"
)

// TokenVerifier validates a session token
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// Auth resolves the caller from a verified session token. Identity headers
// such as X-User-ID are never consulted.
func (m *Middleware) Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				if cookie, err := r.Cookie(m.cfg.Cookie.SessionName); err == nil {
					tokenString = cookie.Value
				}
			}

			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				m.log.Debug().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("session token rejected")
				writeError(w, http.StatusUnauthorized, "invalid_token", "The session token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// GetUserID returns the authenticated user ID, or "" outside Auth
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
