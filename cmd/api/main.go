package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/background"
	"github.com/bastionhq/bastion/internal/cache"
	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/handlers"
	middlewareCustom "github.com/bastionhq/bastion/internal/middleware"
	"github.com/bastionhq/bastion/internal/notify"
	"github.com/bastionhq/bastion/internal/repositories"
	"github.com/bastionhq/bastion/internal/routes"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
	pkglogger "github.com/bastionhq/bastion/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	attemptRepo := repositories.NewAttemptRepository(db)
	lockRepo := repositories.NewLockRepository(db)
	blockRepo := repositories.NewBlockRepository(db)
	alertRepo := repositories.NewAlertRepository(db)
	overrideRepo := repositories.NewOverrideRepository(db)
	captchaRepo := repositories.NewCaptchaRepository(db)
	retentionRepo := repositories.NewRetentionRepository(db)

	// Optional failure-count cache; nil when disabled
	counts := cache.NewCountCache(cfg.Cache, logger)

	// Token manager signs challenge tokens and verifies admin tokens
	tokenManager := auth.NewTokenManager(cfg.Security.AdminTokenSecret, cfg.Security.AdminTokenExpiry)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Alert notification via SES, when configured
	var notifier notify.AlertNotifier
	if cfg.Notify.Enabled {
		sesNotifier, err := notify.NewSESAlertNotifier(cfg.Notify.AWSRegion, cfg.Notify.FromAddress, cfg.Notify.ToAddress, logger)
		if err != nil {
			logger.Error("failed to initialize alert notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	attemptTracker := services.NewAttemptTracker(attemptRepo, counts, logger)
	lockoutService := services.NewLockoutService(lockRepo, attemptTracker, &cfg.Security, auditLogger, logger)
	blockService := services.NewBlockService(blockRepo, auditLogger, logger)
	delayCalculator := services.NewDelayCalculator(attemptTracker, &cfg.Security, logger)
	detector := services.NewActivityDetector(attemptRepo, alertRepo, blockService, notifier, &cfg.Security, auditLogger, logger)
	captchaService := services.NewCaptchaService(captchaRepo, tokenManager, &cfg.Security, auditLogger, logger)
	overrideService := services.NewOverrideService(overrideRepo, auditLogger, logger)
	sweeper := services.NewSweeper(retentionRepo, lockRepo, blockRepo, &cfg.Security, logger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	gateHandler := handlers.NewGateHandler(lockoutService, blockService, delayCalculator, attemptTracker, detector, ipConfig)
	captchaHandler := handlers.NewCaptchaHandler(captchaService)
	adminHandler := handlers.NewAdminHandler(lockoutService, blockService, detector, overrideService, sweeper)

	// Setup router. RemoteAddr is left untouched; every consumer of the
	// client IP goes through the trusted-proxy extraction so forwarding
	// headers from arbitrary clients cannot steer security decisions.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	rateLimitConfig := middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Security.GateRequestsPerMinute,
		IPConfig:          ipConfig,
	}
	routes.RegisterRoutes(router, gateHandler, captchaHandler, adminHandler, tokenManager, rateLimitConfig)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start retention sweeper
	sweeperRunner := background.NewSweeperRunner(sweeper, logger, cfg.Security.SweepInterval)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweeperRunner.Start(sweepCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweeperRunner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
