package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/openlews/ews/internal/api"
	"github.com/openlews/ews/internal/config"
	"github.com/openlews/ews/internal/enrich"
	"github.com/openlews/ews/internal/eventbus"
	"github.com/openlews/ews/internal/hazardzone"
	"github.com/openlews/ews/internal/ingest"
	"github.com/openlews/ews/internal/logging"
	"github.com/openlews/ews/internal/metrics"
	"github.com/openlews/ews/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, "openlews-ingest")

	slog.Info("server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := store.Open(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	zoneIndex := hazardzone.NewIndex(db)
	enricher := enrich.NewEnricher(zoneIndex, cfg.Ingest.EnableEnrichment, cfg.RAG.HazardDefaults)

	var publisher *eventbus.Publisher
	if cfg.EventBus.Enabled {
		publisher = eventbus.NewPublisher(cfg.EventBus.Brokers, cfg.EventBus.Topic, slog.Default())
		defer publisher.Close()
	}

	m := metrics.New()

	ingestCfg := ingest.Config{
		EnableEnrichment:    cfg.Ingest.EnableEnrichment,
		EnableEventPublish:  cfg.EventBus.Enabled,
		TTL:                 time.Duration(cfg.Alert.TTLSeconds) * time.Second,
		EnrichmentPrecision: cfg.Geohash.EnrichmentPrecision,
	}
	var eventPublisher ingest.EventPublisher
	if publisher != nil {
		eventPublisher = publisher
	}
	ingestHandler := ingest.NewHandler(db, enricher, eventPublisher, ingestCfg, m, slog.Default())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"POST", "GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(ingestHandler)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
