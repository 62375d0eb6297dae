package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"staleview/internal/adapters/http"
	"staleview/internal/adapters/memory"
	natsadapter "staleview/internal/adapters/nats"
	"staleview/internal/adapters/openaerial"
	"staleview/internal/adapters/postgres"
	"staleview/internal/adapters/tasking"
	"staleview/internal/adapters/valkey"
	"staleview/internal/adapters/wayback"
	"staleview/internal/core/ports"
	"staleview/internal/core/usecases"
	"staleview/internal/pkg/config"
	"staleview/internal/pkg/logging"
	"staleview/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("staleview-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database (optional; backs staleness history)
	var db *postgres.DB
	if cfg.Database.Enabled {
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
	}

	// Cache
	var cache ports.CacheService
	if cfg.Cache.Backend == "valkey" {
		vk, err := valkey.New(cfg.Cache.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, falling back to in-process cache", "error", err)
		} else {
			defer vk.Close()
			cache = vk
		}
	}
	if cache == nil {
		mem, err := memory.New(cfg.Cache.MaxEntries)
		if err != nil {
			log.Fatalf("cache: %v", err)
		}
		cache = mem
	}

	// NATS (optional; backs refresh events and the WebSocket relay)
	var publisher ports.EventPublisher
	var rawConn *nats.Conn
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}
		if nc, err := natsadapter.RawConn(cfg.NATS.URL); err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
		} else {
			rawConn = nc
		}
	}

	// Imagery providers
	waybackClient := wayback.New(wayback.Config{
		BaseURL:       cfg.Wayback.BaseURL,
		SampleTimeout: time.Duration(cfg.Wayback.SampleTimeoutSeconds) * time.Second,
	})
	openaerialClient := openaerial.New(openaerial.Config{
		CatalogURL:       cfg.OpenAerial.CatalogURL,
		MaxImageAreaDeg2: cfg.OpenAerial.MaxImageAreaDeg2,
		LoadTimeout:      time.Duration(cfg.OpenAerial.LoadTimeoutSeconds) * time.Second,
	})

	// Project catalog
	catalog := tasking.New(tasking.Config{
		Bases:       cfg.Catalog.Bases,
		SnapshotURL: cfg.Catalog.SnapshotURL,
	})

	// Repos
	var snapshotRepo ports.SnapshotRepository
	if db != nil {
		snapshotRepo = postgres.NewSnapshotRepo(db)
	}

	// Use cases
	imagerySvc := usecases.NewImageryService(
		[]ports.ImageryProvider{waybackClient, openaerialClient},
		cache, publisher, cfg.Cache.TTLSeconds,
	)
	projectSvc := usecases.NewProjectService(catalog, cache)
	snapshotSvc := usecases.NewSnapshotService(snapshotRepo, publisher)

	deps := &http.Dependencies{
		Imagery:   imagerySvc,
		Projects:  projectSvc,
		Snapshots: snapshotSvc,
		NATS:      rawConn,
		DB:        db,
		Cache:     cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "StaleView API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.staleview.example.org",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps, cfg.Dashboard.BaseURL)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
