package http

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"

	"github.com/samirrijal/sarpipe/internal/pkg/metrics"
)

// SetupRoutes registers the catalog browsing API, health checks, metrics and
// the static catalog tree.
func SetupRoutes(app *fiber.App, deps *Dependencies, log *slog.Logger) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware(log))
	app.Use(AccessLogMiddleware(log))

	// Rate limiting: 240 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        240,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if deps.Version != "" {
			c.Set("X-API-Version", deps.Version)
		}
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/catalog", timeout.NewWithContext(CatalogHandler(deps), 15*time.Second))
	v1.Get("/items", timeout.NewWithContext(ListItemsHandler(deps), 15*time.Second))
	v1.Get("/items/:id", timeout.NewWithContext(GetItemHandler(deps), 15*time.Second))
	v1.Get("/runs", timeout.NewWithContext(ListRunsHandler(deps), 15*time.Second))
	v1.Get("/runs/:id", timeout.NewWithContext(GetRunHandler(deps), 15*time.Second))

	// Relative hrefs in the documents resolve against this tree.
	app.Static("/stac", filepath.Dir(deps.CatalogPath), fiber.Static{
		Browse:        false,
		ByteRange:     true,
		CacheDuration: 10 * time.Second,
	})
}
