package router

import (
	"net/http"

	"github.com/riskguard/riskguard/internal/config"
	"github.com/riskguard/riskguard/internal/handler"
	"github.com/riskguard/riskguard/internal/metrics"
	"github.com/riskguard/riskguard/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, verifier middleware.TokenVerifier, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Probes and metrics (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"riskguard API v1","version":"` + handler.Version + `"}`))
	})

	authMw := mw.Auth(verifier)
	evaluateRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Scope:  "evaluate",
		Limit:  cfg.Security.RateLimiting.EvaluateLimit,
		Window: cfg.Security.RateLimiting.EvaluateWindow,
		KeyFn:  mw.IPKey,
	})

	mux.Handle("POST /api/v1/risk/evaluate", evaluateRateLimit(authMw(http.HandlerFunc(h.Evaluate))))
	mux.Handle("GET /api/v1/risk/events", authMw(http.HandlerFunc(h.ListEvents)))
	mux.Handle("GET /api/v1/risk/events/{id}", authMw(http.HandlerFunc(h.GetEvent)))

	// Apply middleware stack
	var root http.Handler = mux

	root = mw.CORS(cfg.CORS.AllowedOrigins)(root)
	root = mw.SecurityHeaders(root)
	root = mw.Logger(root)
	root = mw.Timing(root)
	root = mw.RequestID(root)

	// Panic recovery (outermost)
	root = mw.Recover(root)

	return root
}
