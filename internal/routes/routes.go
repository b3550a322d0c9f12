package routes

import (
	"github.com/forgeapps/licensing-backend/internal/config"
	"github.com/forgeapps/licensing-backend/internal/handlers"
	"github.com/forgeapps/licensing-backend/internal/middleware"
	"github.com/forgeapps/licensing-backend/internal/token"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	limiterStorage fiber.Storage,
	sessions *token.SessionSigner,
	licenseHandler *handlers.LicenseHandler,
	inviteHandler *handlers.InviteHandler,
	webhookHandler *handlers.WebhookHandler,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
) {
	app.Get("/health", healthHandler.Check)

	// Webhooks are authenticated by signature and retried by the provider;
	// they bypass the per-IP limiter.
	app.Post("/stripe/webhook", webhookHandler.HandleStripe)

	general := middleware.RateLimit(middleware.RateLimitConfig{
		Window:    cfg.RateLimitWindow,
		Max:       cfg.RateLimitMax,
		KeyPrefix: "api",
	}, limiterStorage)
	strict := middleware.RateLimit(middleware.RateLimitConfig{
		Window:    cfg.LicenseLimitWindow,
		Max:       cfg.LicenseLimitMax,
		KeyPrefix: "license",
	}, limiterStorage)

	// Public activation surface, strictly limited.
	license := app.Group("/license", strict)
	license.Post("/activate", licenseHandler.Activate)
	license.Post("/deactivate", licenseHandler.Deactivate)

	app.Post("/auth/login", strict, authHandler.Login)

	// Portal surface (customer session required).
	keys := app.Group("/license-keys", general, middleware.SessionProtected(cfg))
	keys.Get("/", licenseHandler.List)
	keys.Post("/:id/generate-activation-code", licenseHandler.GenerateActivationCode)

	invites := app.Group("/invites", general)
	invites.Get("/validate", inviteHandler.Validate)
	invites.Post("/redeem", inviteHandler.Redeem)
	invites.Post("/issue", middleware.StaffRequired(db, cfg, sessions), inviteHandler.Issue)
}
