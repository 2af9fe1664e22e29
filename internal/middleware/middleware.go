package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/riskguard/riskguard/internal/config"
	"github.com/riskguard/riskguard/internal/logger"
	"github.com/riskguard/riskguard/internal/reqsignal"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	limiter Limiter
	ips     *reqsignal.Extractor
	log     *logger.Logger
	cfg     *config.Config
}

// New creates a new Middleware instance. limiter may be nil, which disables
// rate limiting.
func New(limiter Limiter, log *logger.Logger, cfg *config.Config) *Middleware {
	return &Middleware{
		limiter: limiter,
		ips:     reqsignal.NewExtractor(cfg.Server.TrustProxyHeaders),
		log:     log.WithComponent("http"),
		cfg:     cfg,
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
