package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig is the injected policy for one limiter bucket.
type RateLimitConfig struct {
	Window    time.Duration
	Max       int
	KeyPrefix string
}

// RateLimit builds a sliding-window per-IP limiter. With a nil storage it
// keeps counters in process; a shared store (e.g. Redis) makes the window
// hold across instances.
func RateLimit(cfg RateLimitConfig, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               cfg.Max,
		Expiration:        cfg.Window,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return cfg.KeyPrefix + ":" + c.IP()
		},
	})
}
