package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/openlews/ews/internal/alert"
	"github.com/openlews/ews/internal/config"
	"github.com/openlews/ews/internal/detect"
	"github.com/openlews/ews/internal/fusion"
	"github.com/openlews/ews/internal/geocode"
	"github.com/openlews/ews/internal/hazardzone"
	"github.com/openlews/ews/internal/llm"
	"github.com/openlews/ews/internal/logging"
	"github.com/openlews/ews/internal/metrics"
	"github.com/openlews/ews/internal/notify"
	"github.com/openlews/ews/internal/store"
)

// main runs one detection pass and exits. Invoked periodically by an
// external scheduler (cron, a managed job runner) rather than looping
// itself.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, "openlews-detect")

	db, err := store.Open(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	zoneIndex := hazardzone.NewIndex(db)

	var resolver geocode.Resolver
	if cfg.Geocoder.Enabled {
		client := geocode.NewClient(cfg.Geocoder.MapboxToken, 5*time.Second, slog.Default())
		resolver = geocode.NewCachedResolver(client, cfg.Geocoder.CacheSize)
	} else {
		resolver = geocode.NewClient("", 5*time.Second, slog.Default())
	}

	transport := llm.NewHTTPTransport(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.CallTimeout, slog.Default())
	retryPolicy := llm.NewRetryPolicy(cfg.LLM.MaxAttempts, cfg.LLM.BackoffBaseS, cfg.LLM.BackoffCapS)
	llmClient := llm.NewClient(transport, retryPolicy, cfg.LLM.ModelID, cfg.LLM.MaxTokens, cfg.LLM.Temperature, cfg.LLM.TopP, slog.Default())

	var publisher alert.Publisher
	if cfg.EventBus.Enabled {
		publisher = notify.NewKafkaNotifier(cfg.EventBus.Brokers, cfg.EventBus.AlertTopic, slog.Default())
	}
	alertManager := alert.NewManager(
		db, publisher, nil,
		time.Duration(cfg.Alert.DedupWindowS)*time.Second,
		time.Duration(cfg.Alert.TTLSeconds)*time.Second,
		slog.Default(),
	)

	m := metrics.New()

	fusionCfg := fusion.Config{
		CorrelationRadiusM: cfg.Detection.CorrelationRadiusM,
		ClusterRadiusM:     cfg.Detection.ClusterRadiusM,
		MinClusterSize:     cfg.Detection.MinClusterSize,
		RiskThreshold:      cfg.Detection.RiskThreshold,
	}

	engine := detect.NewEngine(db, zoneIndex, resolver, llmClient, alertManager, fusionCfg, detect.Config{
		WindowSeconds:  int64(cfg.Detection.WindowSeconds),
		FanOut:         cfg.Detection.FanOut,
		ZoneMaxDistKM:  cfg.RAG.MaxDistanceKM,
		HazardDefaults: cfg.RAG.HazardDefaults,
	}, m, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Detection.DetectTimeout)
	defer cancel()

	summary, err := engine.Run(ctx)
	if err != nil {
		logging.Fatalf("detection run failed: %v", err)
	}

	slog.Info("detection run complete",
		"sensors_analyzed", summary.SensorsAnalyzed,
		"clusters_detected", summary.ClustersDetected,
		"alerts_created", summary.AlertsCreated,
		"alerts_escalated", summary.AlertsEscalated,
		"execution_time_s", summary.ExecutionTimeS,
	)

	expireActiveAlerts(ctx, db, alertManager, time.Duration(cfg.Alert.ExpireGraceHours)*time.Hour)
}

// expireActiveAlerts runs the active --(expire)--> expired sweep: list every
// active alert, hand them to the manager's grace-period check, and persist
// whichever ones it flags. Runs once per invocation of this binary, which
// an external scheduler already invokes periodically alongside the
// detection pass itself.
func expireActiveAlerts(ctx context.Context, db *store.DB, mgr *alert.Manager, grace time.Duration) {
	active, err := db.ListActive(ctx)
	if err != nil {
		slog.Error("expire sweep: list active alerts failed", "error", err)
		return
	}

	expired := mgr.Expire(ctx, active, grace)
	for _, a := range expired {
		if err := db.UpsertAlert(ctx, a); err != nil {
			slog.Error("expire sweep: failed to persist expired alert", "alert_id", a.AlertID, "error", err)
		}
	}
	if len(expired) > 0 {
		slog.Info("expire sweep complete", "alerts_expired", len(expired))
	}
}
