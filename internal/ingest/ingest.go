// Package ingest implements the telemetry ingest orchestrator: validate,
// enrich, classify high-risk, persist, and publish, per the ingest
// endpoint's handler design.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/openlews/ews/internal/enrich"
	"github.com/openlews/ews/internal/geohash"
	"github.com/openlews/ews/internal/metrics"
	"github.com/openlews/ews/internal/models"
	"github.com/openlews/ews/internal/openlewserr"
	"github.com/openlews/ews/internal/store"
	"github.com/openlews/ews/internal/validate"
)

type Writer interface {
	PutBatch(ctx context.Context, readings []models.Reading) (store.ReadingWriteResult, error)
}

type Enricher interface {
	Enrich(ctx context.Context, run *enrich.RunContext, reading models.Reading) (models.Reading, error)
}

type EventPublisher interface {
	PublishHighRiskTelemetry(ctx context.Context, readings []models.Reading) int
}

type Config struct {
	EnableEnrichment   bool
	EnableEventPublish bool
	TTL                time.Duration
	EnrichmentPrecision int
}

type Handler struct {
	writer    Writer
	enricher  Enricher
	publisher EventPublisher
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewHandler(writer Writer, enricher Enricher, publisher EventPublisher, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{writer: writer, enricher: enricher, publisher: publisher, cfg: cfg, metrics: m, logger: logger}
}

// ValidationFailure describes one batch item's rejection, in ingest-batch
// order.
type ValidationFailure struct {
	Index    int
	SensorID string
	Error    string
}

// Statistics is the response payload's statistics block.
type Statistics struct {
	TotalReceived     int
	Validated         int
	ValidationErrors  int
	Written           int
	WriteFailures     int
	HighRiskEvents    int
}

type Result struct {
	Statistics        Statistics
	ValidationFailures []ValidationFailure
}

// HandleBatch validates every raw reading, best-effort enriches it against
// the hazard zone index, classifies high-risk readings for event
// publication, and persists the validated batch. A failure in one stage
// (enrichment, event publish) never blocks the others: only storage write
// failures are reported as write_failures.
func (h *Handler) HandleBatch(ctx context.Context, raw []validate.RawReading) (Result, error) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.IngestDuration.Observe(time.Since(start).Seconds())
		}
	}()

	stats := Statistics{TotalReceived: len(raw)}
	var failures []ValidationFailure
	readings := make([]models.Reading, 0, len(raw))

	now := time.Now()
	runCtx := enrich.NewRunContext()

	for i, r := range raw {
		reading, err := validate.Validate(r)
		if err != nil {
			failures = append(failures, ValidationFailure{Index: i, SensorID: r.SensorID, Error: err.Error()})
			if h.metrics != nil {
				h.metrics.ReadingsRejected.WithLabelValues(string(openlewserr.KindOf(err))).Inc()
			}
			continue
		}

		if reading.Geohash == "" {
			reading.Geohash = geohash.Encode(reading.Latitude, reading.Longitude, h.cfg.EnrichmentPrecision)
		}
		reading.IngestedAt = now
		reading.ExpiresAt = now.Add(h.cfg.TTL)

		if h.cfg.EnableEnrichment && h.enricher != nil {
			enriched, err := h.enricher.Enrich(ctx, runCtx, reading)
			if err != nil {
				h.logger.Warn("enrichment failed, continuing unenriched", "sensor_id", reading.SensorID, "error", err)
			} else {
				reading = enriched
			}
		}

		readings = append(readings, reading)
		stats.Validated++
	}
	stats.ValidationErrors = len(failures)

	if h.metrics != nil {
		h.metrics.ReadingsReceived.Add(float64(len(raw)))
		h.metrics.ReadingsValidated.Add(float64(stats.Validated))
	}

	if h.cfg.EnableEventPublish && h.publisher != nil && len(readings) > 0 {
		stats.HighRiskEvents = h.publisher.PublishHighRiskTelemetry(ctx, readings)
		if h.metrics != nil {
			h.metrics.HighRiskEvents.Add(float64(stats.HighRiskEvents))
		}
	}

	if len(readings) > 0 {
		writeResult, err := h.writer.PutBatch(ctx, readings)
		if err != nil {
			return Result{}, openlewserr.Wrap(openlewserr.KindStorageTransient, "put batch failed", err)
		}
		stats.Written = writeResult.Written
		stats.WriteFailures = len(writeResult.Failed)
		if h.metrics != nil {
			h.metrics.ReadingsWritten.Add(float64(writeResult.Written))
			h.metrics.WriteFailures.Add(float64(len(writeResult.Failed)))
		}
	}

	return Result{Statistics: stats, ValidationFailures: failures}, nil
}
