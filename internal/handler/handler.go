package handler

import (
	"context"

	"github.com/riskguard/riskguard/internal/config"
	"github.com/riskguard/riskguard/internal/deviceid"
	"github.com/riskguard/riskguard/internal/logger"
	"github.com/riskguard/riskguard/internal/reqsignal"
	"github.com/riskguard/riskguard/internal/service"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// HealthChecker is a dependency the service needs to be ready
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	riskSvc *service.RiskService
	devices *deviceid.Issuer
	signals *reqsignal.Extractor
	checks  map[string]HealthChecker
	log     *logger.Logger
	cfg     *config.Config
}

// New creates a new Handler instance
func New(
	riskSvc *service.RiskService,
	devices *deviceid.Issuer,
	signals *reqsignal.Extractor,
	checks map[string]HealthChecker,
	log *logger.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		riskSvc: riskSvc,
		devices: devices,
		signals: signals,
		checks:  checks,
		log:     log.WithComponent("handler"),
		cfg:     cfg,
	}
}
