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

	"github.com/samirrijal/fleetmap/internal/adapters/http"
	natsadapter "github.com/samirrijal/fleetmap/internal/adapters/nats"
	"github.com/samirrijal/fleetmap/internal/adapters/postgres"
	"github.com/samirrijal/fleetmap/internal/adapters/valkey"
	"github.com/samirrijal/fleetmap/internal/core/clustering"
	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/core/positions"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
	"github.com/samirrijal/fleetmap/internal/core/viewport"
	"github.com/samirrijal/fleetmap/internal/pkg/config"
	"github.com/samirrijal/fleetmap/internal/pkg/logging"
	"github.com/samirrijal/fleetmap/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("fleetmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

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
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	db.StartPoolMetrics(ctx, 15*time.Second)

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, caching disabled", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS, or an in-process hub when the broker is down
	var (
		publisher ports.EventPublisher
		sources   usecases.PositionSourceFactory
	)
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, live positions stay in-process", "error", err)
		hub := positions.NewHub(0)
		defer hub.Close()
		publisher = hub
		sources = hub.Source
		pub = nil
	} else {
		defer pub.Close()
		publisher = pub
		sources = natsadapter.SourceFactory(pub.Conn())
	}

	// Repos
	entityRepo := postgres.NewEntityRepo(db)
	positionRepo := postgres.NewPositionRepo(db)
	trailRepo := postgres.NewTrailRepo(db)

	// Use cases
	engine := clustering.NewEngine(clustering.Options{
		MaxZoom:      cfg.Map.MaxClusterZoom,
		RadiusPixels: cfg.Map.ClusterRadiusPx,
	}, slog.Default())
	mapSvc := usecases.NewMapService(entityRepo, cacheSvc, engine)
	trailSvc := usecases.NewTrailService(positionRepo, trailRepo, cacheSvc, cfg.Map.PathTolerance)
	ingestSvc := usecases.NewIngestService(entityRepo, positionRepo, publisher)
	sessionSvc := usecases.NewSessionService(viewportConfig(cfg.Map), entityRepo, sources)
	defer sessionSvc.CloseAll()

	deps := &http.Dependencies{
		Map:      mapSvc,
		Trails:   trailSvc,
		Ingest:   ingestSvc,
		Sessions: sessionSvc,
		DB:       db,
		Cache:    cache,
		Version:  version,
	}
	if pub != nil {
		deps.NATS = pub.Conn()
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // paths to simplify can be long
		AppName:      "FleetMap API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
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

	slog.Info("server stopped", "sessions", sessionSvc.Active())
}

// viewportConfig maps the map section onto session camera defaults.
func viewportConfig(m config.MapConfig) viewport.Config {
	vc := viewport.DefaultConfig()
	vc.InitialCenter = domain.Point{Lat: m.InitialLat, Lng: m.InitialLng}
	vc.InitialZoom = m.InitialZoom
	vc.FollowZoom = m.FollowZoom
	vc.MinZoom = m.MinZoom
	vc.MaxZoom = m.MaxZoom
	vc.FollowInterval = m.FollowInterval()
	vc.FollowThreshold = m.FollowThresholdDeg
	vc.ViewportWidth = m.ViewportWidth
	vc.ViewportHeight = m.ViewportHeight
	return vc
}
