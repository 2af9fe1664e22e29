package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskguard/riskguard/internal/alert"
	"github.com/riskguard/riskguard/internal/auth"
	"github.com/riskguard/riskguard/internal/config"
	"github.com/riskguard/riskguard/internal/database"
	"github.com/riskguard/riskguard/internal/deviceid"
	"github.com/riskguard/riskguard/internal/handler"
	"github.com/riskguard/riskguard/internal/logger"
	"github.com/riskguard/riskguard/internal/middleware"
	"github.com/riskguard/riskguard/internal/reqsignal"
	"github.com/riskguard/riskguard/internal/repository"
	"github.com/riskguard/riskguard/internal/risk"
	"github.com/riskguard/riskguard/internal/router"
	"github.com/riskguard/riskguard/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("version", handler.Version).
		Str("environment", cfg.Server.Environment).
		Str("ua_table", reqsignal.TableVersion).
		Msg("starting riskguard server")

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	verifier, err := auth.NewVerifier(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session token verifier")
	}

	// Stores
	devices := repository.NewDeviceRegistryRepository(db)
	ledger := repository.NewRiskEventRepository(db)
	features := repository.NewRiskFeatureRepository(db)

	engine := risk.NewEngine(devices, ledger, features, log).WithSignalTimeout(cfg.Risk.SignalTimeout)
	var notifier alert.Notifier = alert.NewLogNotifier(log)
	if cfg.Alert.Channel != "" {
		notifier = alert.NewRedisNotifier(rdb, cfg.Alert.Channel, log)
	} else {
		log.Warn().Msg("alert.channel is empty, persistence alerts go to the log only")
	}
	riskSvc := service.NewRiskService(devices, ledger, engine, notifier, cfg.Risk.AuditTimeout, log).
		WithRegistryTimeout(cfg.Risk.RegistryTimeout)

	h := handler.New(
		riskSvc,
		deviceid.NewIssuer(cfg.Cookie),
		reqsignal.NewExtractor(cfg.Server.TrustProxyHeaders),
		map[string]handler.HealthChecker{"postgres": db, "redis": rdb},
		log,
		cfg,
	)
	mw := middleware.New(middleware.NewRedisLimiter(rdb, "riskguard:ratelimit"), log, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.New(h, mw, verifier, cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Bool("tls", cfg.Server.TLS.Enabled).Msg("HTTP server listening")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// In-flight evaluations are done; wait for their ledger appends.
	if err := riskSvc.Drain(ctx); err != nil {
		log.Error().Err(err).Msg("risk events may have been lost")
	}

	log.Info().Msg("server stopped")
}
