package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// Recover turns panics into 500 responses. Outside production the panic
// value is included in the message.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				m.log.Error().
					Interface("error", err).
					Str("stack", string(debug.Stack())).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Str("request_id", GetRequestID(r.Context())).
					Msg("panic recovered")

				message := "An unexpected error occurred"
				if !m.cfg.Server.IsProduction() {
					message = fmt.Sprintf("panic: %v", err)
				}
				writeError(w, http.StatusInternalServerError, "internal_error", message)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
