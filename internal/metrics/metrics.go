// Package metrics exposes the Prometheus counters and histograms for
// the ingest and detect pipelines, grounded on the same namespace-prefixed
// registration pattern used for the storm-data ETL pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ReadingsReceived   prometheus.Counter
	ReadingsValidated  prometheus.Counter
	ReadingsRejected   *prometheus.CounterVec // labels: reason
	ReadingsWritten    prometheus.Counter
	WriteFailures      prometheus.Counter
	HighRiskEvents     prometheus.Counter
	IngestDuration     prometheus.Histogram

	SensorsAnalyzed    prometheus.Counter
	ClustersDetected   prometheus.Counter
	AlertsCreated      prometheus.Counter
	AlertsEscalated    prometheus.Counter
	DetectRunDuration  prometheus.Histogram

	LLMCallDuration *prometheus.HistogramVec // labels: operation={assess_risk,narrative}
	LLMCallErrors   *prometheus.CounterVec   // labels: kind

	GeocodeRequests *prometheus.CounterVec // labels: outcome={geocoder,coordinates_only,geocoder_error}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
}

func New() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReadingsReceived, m.ReadingsValidated, m.ReadingsRejected, m.ReadingsWritten,
		m.WriteFailures, m.HighRiskEvents, m.IngestDuration,
		m.SensorsAnalyzed, m.ClustersDetected, m.AlertsCreated, m.AlertsEscalated, m.DetectRunDuration,
		m.LLMCallDuration, m.LLMCallErrors,
		m.GeocodeRequests, m.GeocodeCache,
	)
	return m
}

// NewForTesting builds the same metric set without registering it with the
// default registry, so package tests can construct a Metrics value
// repeatedly without "duplicate metrics collector registration" panics.
func NewForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "readings_received_total",
			Help: "Total telemetry readings received by the ingest endpoint.",
		}),
		ReadingsValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "readings_validated_total",
			Help: "Total readings that passed schema validation.",
		}),
		ReadingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openlews", Name: "readings_rejected_total",
			Help: "Total readings rejected, by error kind.",
		}, []string{"reason"}),
		ReadingsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "readings_written_total",
			Help: "Total readings persisted to the store.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "write_failures_total",
			Help: "Total reading persistence failures.",
		}),
		HighRiskEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "high_risk_events_total",
			Help: "Total HighRiskTelemetry events published.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "openlews", Name: "ingest_batch_duration_seconds",
			Help:    "Duration of a full ingest batch handling cycle.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		SensorsAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "sensors_analyzed_total",
			Help: "Total sensors scored in detection runs.",
		}),
		ClustersDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "clusters_detected_total",
			Help: "Total spatial clusters detected across detection runs.",
		}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "alerts_created_total",
			Help: "Total new alerts created.",
		}),
		AlertsEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openlews", Name: "alerts_escalated_total",
			Help: "Total existing alerts escalated to a higher risk level.",
		}),
		DetectRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "openlews", Name: "detect_run_duration_seconds",
			Help:    "Duration of a full detection run.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LLMCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "openlews", Name: "llm_call_duration_seconds",
			Help:    "LLM call latency by operation.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"operation"}),
		LLMCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openlews", Name: "llm_call_errors_total",
			Help: "LLM call failures by error kind.",
		}, []string{"kind"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openlews", Name: "geocode_requests_total",
			Help: "Reverse-geocode requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openlews", Name: "geocode_cache_total",
			Help: "Reverse-geocode cache lookups by result.",
		}, []string{"result"}),
	}
}
