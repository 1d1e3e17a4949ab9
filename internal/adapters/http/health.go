package http

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

var errDisconnected = errors.New("disconnected")

// HealthHandler reports liveness and the running version.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": version,
		})
	}
}

type readinessProbe struct {
	name string
	// probe is nil when the backend is not configured.
	probe func(ctx context.Context) error
}

func readinessProbes(deps *Dependencies) []readinessProbe {
	probes := []readinessProbe{{name: "catalog", probe: func(context.Context) error {
		_, err := os.Stat(deps.CatalogPath)
		return err
	}}}

	db := readinessProbe{name: "database"}
	if deps.DB != nil {
		db.probe = deps.DB.Ping
	}
	bus := readinessProbe{name: "nats"}
	if deps.NATS != nil {
		bus.probe = func(context.Context) error {
			if !deps.NATS.IsConnected() {
				return errDisconnected
			}
			return nil
		}
	}
	cache := readinessProbe{name: "cache"}
	if deps.Cache != nil {
		cache.probe = deps.Cache.Ping
	}
	return append(probes, db, bus, cache)
}

// ReadyHandler answers 200 when the served catalog exists and every
// configured backend responds, 503 otherwise.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	probes := readinessProbes(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string, len(probes))
		ready := true
		for _, p := range probes {
			if p.probe == nil {
				checks[p.name] = "not configured"
				continue
			}
			if err := p.probe(ctx); err != nil {
				checks[p.name] = "error: " + err.Error()
				ready = false
				continue
			}
			checks[p.name] = "ok"
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
