package routes

import (
	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/handlers"
	"github.com/bastionhq/bastion/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	gateHandler *handlers.GateHandler,
	captchaHandler *handlers.CaptchaHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	rateLimitConfig middleware.RateLimitConfig,
) {
	// Public routes - called by authentication services on the hot path
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/v1/gate/check", gateHandler.Check)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/v1/gate/attempts", gateHandler.RecordAttempt)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/v1/captcha/challenges", captchaHandler.IssueChallenge)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/v1/captcha/verify", captchaHandler.VerifyChallenge)

	// Ops routes - admin token required
	router.Group(func(r chi.Router) {
		r.Use(auth.AdminMiddleware(tokenManager))

		r.Post("/v1/admin/locks", adminHandler.CreateLock)
		r.Delete("/v1/admin/locks", adminHandler.RemoveLock)
		r.Get("/v1/admin/locks", adminHandler.ListLocks)

		r.Post("/v1/admin/blocks", adminHandler.CreateBlock)
		r.Delete("/v1/admin/blocks", adminHandler.RemoveBlock)
		r.Get("/v1/admin/blocks", adminHandler.ListBlocks)

		r.Get("/v1/admin/alerts", adminHandler.ListAlerts)
		r.Post("/v1/admin/alerts/{id}/review", adminHandler.ReviewAlert)

		r.Post("/v1/admin/overrides", adminHandler.SetOverride)
		r.Delete("/v1/admin/overrides/{id}", adminHandler.RemoveOverride)
		r.Get("/v1/admin/overrides", adminHandler.ListOverrides)
		r.Get("/v1/admin/overrides/resolve", adminHandler.ResolveOverride)

		r.Post("/v1/admin/sweep", adminHandler.TriggerSweep)
	})
}
