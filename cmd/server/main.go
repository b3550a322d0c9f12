package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/stripe/stripe-go/v76"

	"github.com/forgeapps/licensing-backend/internal/config"
	"github.com/forgeapps/licensing-backend/internal/database"
	"github.com/forgeapps/licensing-backend/internal/dto"
	"github.com/forgeapps/licensing-backend/internal/handlers"
	"github.com/forgeapps/licensing-backend/internal/logging"
	"github.com/forgeapps/licensing-backend/internal/middleware"
	"github.com/forgeapps/licensing-backend/internal/routes"
	"github.com/forgeapps/licensing-backend/internal/services"
	"github.com/forgeapps/licensing-backend/internal/token"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	redisstorage "github.com/gofiber/storage/redis"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.SessionSecret == "" {
		slog.Error("SESSION_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logging.Level()}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	stripe.Key = cfg.StripeSecretKey

	// Token signers. A missing activation key does not stop the server:
	// activation requests fail closed instead of issuing unsigned tokens.
	signer, err := token.NewSigner(cfg.ActivationPrivateKey, cfg.TokenIssuer)
	if err != nil {
		slog.Error("invalid activation signing key", "error", err)
		os.Exit(1)
	}
	if !signer.Ready() {
		slog.Warn("no activation signing key configured; license activation will be refused")
	}
	sessions := token.NewSessionSigner(cfg.SessionSecret, cfg.SessionExpiry)

	// Services
	prices := services.NewPriceResolver(cfg.PriceTierMap, cfg.PriceCacheTTL)
	licenseService := services.NewLicenseService(database.DB, signer)
	entitlementService := services.NewEntitlementService(database.DB, prices, cfg.FoundersCutoff)
	inviteService := services.NewInviteService(database.DB, sessions)
	authService := services.NewAuthService(database.DB, sessions)

	// Handlers
	licenseHandler := handlers.NewLicenseHandler(licenseService)
	inviteHandler := handlers.NewInviteHandler(inviteService, cfg.JoinURLBase)
	webhookHandler := handlers.NewWebhookHandler(entitlementService, cfg.StripeWebhookSecret)
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler()

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	// Shared limiter store for multi-instance deployments.
	var limiterStorage fiber.Storage
	if cfg.RedisURL != "" {
		limiterStorage = redisstorage.New(redisstorage.Config{URL: cfg.RedisURL})
	}

	routes.Setup(app, cfg, database.DB, limiterStorage, sessions,
		licenseHandler, inviteHandler, webhookHandler, authHandler, healthHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Error:   true,
		Message: message,
	})
}
