package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/pflag"

	"github.com/samirrijal/sarpipe/internal/adapters/http"
	natsadapter "github.com/samirrijal/sarpipe/internal/adapters/nats"
	"github.com/samirrijal/sarpipe/internal/adapters/postgres"
	"github.com/samirrijal/sarpipe/internal/adapters/valkey"
	"github.com/samirrijal/sarpipe/internal/core/usecases"
	"github.com/samirrijal/sarpipe/internal/pkg/config"
	"github.com/samirrijal/sarpipe/internal/pkg/logging"
	"github.com/samirrijal/sarpipe/internal/pkg/telemetry"
)

const version = "1.0.0"

func main() {
	fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
	fs.String("config", "", "path to a config file")
	fs.String("log_level", "", "log level")
	fs.String("log_format", "", "log format: text or json")
	fs.String("catalog_dir", "", "directory containing the catalog.json to serve")
	fs.Int("port", 0, "listen port")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load("sarpipe-serve", fs)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	catalogPath, err := filepath.Abs(filepath.Join(cfg.Server.CatalogDir, usecases.CatalogFileName))
	if err != nil {
		log.Fatalf("catalog path: %v", err)
	}

	deps := &http.Dependencies{
		Reader:      usecases.NewCatalogReader(logger),
		CatalogPath: catalogPath,
		Version:     version,
	}

	// Run ledger
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		deps.DB = db
		deps.Runs = postgres.NewRunRepo(db)
	}

	// Cache
	if cfg.Valkey.Addr != "" {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			logger.Warn("valkey unavailable", "error", err)
		} else {
			defer cache.Close()
			deps.Cache = cache
		}
	}

	// NATS
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			deps.NATS = pub.Conn()
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "sarpipe catalog server",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,HEAD,OPTIONS",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("catalog server starting", "addr", addr, "catalog", catalogPath)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	logger.Info("server stopped")
}
