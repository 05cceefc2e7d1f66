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
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/placedesk/internal/adapters/gemini"
	"github.com/samirrijal/placedesk/internal/adapters/http"
	natsadapter "github.com/samirrijal/placedesk/internal/adapters/nats"
	"github.com/samirrijal/placedesk/internal/adapters/nominatim"
	"github.com/samirrijal/placedesk/internal/adapters/postgres"
	"github.com/samirrijal/placedesk/internal/adapters/valkey"
	"github.com/samirrijal/placedesk/internal/core/ports"
	"github.com/samirrijal/placedesk/internal/core/usecases"
	"github.com/samirrijal/placedesk/internal/pkg/config"
	"github.com/samirrijal/placedesk/internal/pkg/logging"
	"github.com/samirrijal/placedesk/internal/pkg/metrics"
	"github.com/samirrijal/placedesk/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("placedesk-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Server.LogLevel, cfg.Server.LogFormat)

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

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Cache (read cache, geocode cache, drafts). A nil *valkey.Cache must not
	// reach the services as a non-nil interface.
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, running without cache and drafts", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	// Reverse geocoder
	var geocoder ports.ReverseGeocoder = nominatim.New(nominatim.Config{
		BaseURL:         cfg.Geocoder.BaseURL,
		UserAgent:       cfg.Geocoder.UserAgent,
		DomesticCountry: cfg.Geocoder.DomesticCountry,
		Timeout:         cfg.Geocoder.Timeout,
	})
	if cacheSvc != nil {
		geocoder = nominatim.NewCached(geocoder, cacheSvc, cfg.Geocoder.CacheTTL)
	}

	// Text generation
	var generator ports.TextGenerator
	if cfg.Model.APIKey != "" {
		gen, err := gemini.NewGenerator(ctx, cfg.Model.APIKey, cfg.Model.Name, cfg.Model.Temperature)
		if err != nil {
			slog.Warn("model client unavailable", "error", err)
		} else {
			generator = gen
		}
	} else {
		slog.Warn("model.api_key not set, assist endpoint disabled")
	}

	// Use cases
	placeRepo := postgres.NewPlaceRepo(db)
	placeSvc := usecases.NewPlaceService(placeRepo, cacheSvc)
	draftSvc := usecases.NewDraftService(cacheSvc, cfg.Reconcile.DraftTTL)
	reconcileSvc := usecases.NewReconcileService(placeSvc, geocoder, generator, publisher, usecases.ReconcileOptions{
		Language:       cfg.Geocoder.Language,
		GeocodeTimeout: cfg.Geocoder.Timeout,
		PageSize:       cfg.Reconcile.PageSize,
	})
	auditSvc := usecases.NewAuditService(placeRepo, geocoder, publisher, cfg.Geocoder.Language, cfg.Geocoder.Timeout)

	deps := &http.Dependencies{
		Places:     placeSvc,
		Drafts:     draftSvc,
		Reconciler: reconcileSvc,
		Audits:     auditSvc,
		Geocoder:   geocoder,
		Language:   cfg.Geocoder.Language,
		NATS:       natsConn,
		DB:         db,
		Cache:      cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Placedesk API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		ExposeHeaders:    "Link, ETag, X-Request-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	// SIGHUP re-reads the log level from config
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			reloaded, err := config.Load("placedesk-api")
			if err != nil {
				slog.Warn("reload config", "error", err)
				continue
			}
			if err := logging.SetLevel(reloaded.Server.LogLevel); err != nil {
				slog.Warn("reload log level", "error", err)
				continue
			}
			slog.Info("log level changed", "level", logging.Level().String())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
