package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/handlers"
	middlewareCustom "github.com/bastionhq/bastion/internal/middleware"
	"github.com/bastionhq/bastion/internal/routes"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
	pkglogger "github.com/bastionhq/bastion/pkg/logger"
)

// TestServer wraps httptest.Server with a real database and the full
// service stack. Alert notification is disabled; the count cache is off.
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	Config       *config.Config
	TokenManager *auth.TokenManager
}

// NewTestServer initializes a complete HTTP server over the given database
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			TrustedProxies: []string{},
		},
		Security: config.SecurityConfig{
			AdminTokenSecret: "test-secret-32-characters-long!!",
			AdminTokenExpiry: 1 * time.Hour,

			MaxLoginAttempts: 5,
			LockoutWindow:    30 * time.Minute,
			LockoutDuration:  30 * time.Minute,

			DelayBase:   1 * time.Second,
			DelayFactor: 2.0,
			DelayMax:    30 * time.Second,
			DelayWindow: 15 * time.Minute,

			DetectionWindow:      5 * time.Minute,
			FanOutIPThreshold:    3,
			FanOutCountThreshold: 10,
			AutomationInterval:   1 * time.Second,

			OriginWindow:           1 * time.Hour,
			OriginFailureThreshold: 20,
			OriginAccountThreshold: 5,
			OriginBlockDuration:    24 * time.Hour,

			ChallengeTTL:         10 * time.Minute,
			ChallengeMaxAttempts: 5,

			SweepInterval:        15 * time.Minute,
			ArchiveAfter:         30 * 24 * time.Hour,
			DeleteAfter:          90 * 24 * time.Hour,
			ClusterAlertMinCount: 50,

			GateRequestsPerMinute: 10000,
		},
	}

	attemptRepo, lockRepo, blockRepo, alertRepo, overrideRepo, captchaRepo, retentionRepo :=
		InitializeRepositories(db)

	tokenManager := auth.NewTokenManager(cfg.Security.AdminTokenSecret, cfg.Security.AdminTokenExpiry)
	auditLogger := pkglogger.NewAuditLogger(logger)

	attemptTracker := services.NewAttemptTracker(attemptRepo, nil, logger)
	lockoutService := services.NewLockoutService(lockRepo, attemptTracker, &cfg.Security, auditLogger, logger)
	blockService := services.NewBlockService(blockRepo, auditLogger, logger)
	delayCalculator := services.NewDelayCalculator(attemptTracker, &cfg.Security, logger)
	detector := services.NewActivityDetector(attemptRepo, alertRepo, blockService, nil, &cfg.Security, auditLogger, logger)
	captchaService := services.NewCaptchaService(captchaRepo, tokenManager, &cfg.Security, auditLogger, logger)
	overrideService := services.NewOverrideService(overrideRepo, auditLogger, logger)
	sweeper := services.NewSweeper(retentionRepo, lockRepo, blockRepo, &cfg.Security, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	gateHandler := handlers.NewGateHandler(lockoutService, blockService, delayCalculator, attemptTracker, detector, ipConfig)
	captchaHandler := handlers.NewCaptchaHandler(captchaService)
	adminHandler := handlers.NewAdminHandler(lockoutService, blockService, detector, overrideService, sweeper)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	rateLimitConfig := middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Security.GateRequestsPerMinute,
		IPConfig:          ipConfig,
	}
	routes.RegisterRoutes(r, gateHandler, captchaHandler, adminHandler, tokenManager, rateLimitConfig)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		Config:       cfg,
		TokenManager: tokenManager,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestAsAdmin makes an HTTP request carrying a freshly signed admin token
func (ts *TestServer) RequestAsAdmin(method, path string, body interface{}) (*http.Response, error) {
	token, err := ts.TokenManager.GenerateAdminToken("integration-admin")
	if err != nil {
		return nil, err
	}

	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// DecodeResponse decodes a JSON response body into target and closes the body
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
