// Package detect implements the periodic detection engine: fetch the
// telemetry window, score and fuse it, identify high-risk
// clusters/sensors, resolve their location and geological context, call
// the LLM for a risk assessment and (for Orange/Red) a narrative, then
// hand off to the alert manager.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openlews/ews/internal/alert"
	"github.com/openlews/ews/internal/fusion"
	"github.com/openlews/ews/internal/geocode"
	"github.com/openlews/ews/internal/hazardzone"
	"github.com/openlews/ews/internal/llm"
	"github.com/openlews/ews/internal/metrics"
	"github.com/openlews/ews/internal/models"
	"github.com/openlews/ews/internal/openlewserr"
	"github.com/openlews/ews/internal/scorer"
	"github.com/openlews/ews/internal/worker"
)

type TelemetryStore interface {
	LatestPerSensor(ctx context.Context, since, until int64) ([]models.Reading, error)
}

type Config struct {
	WindowSeconds  int64
	FanOut         int
	ZoneMaxDistKM  float64
	HazardDefaults map[string]float64
}

type Engine struct {
	telemetry TelemetryStore
	zones     *hazardzone.Index
	resolver  geocode.Resolver
	llmClient *llm.Client
	alerts    *alert.Manager
	fusionCfg fusion.Config
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewEngine(telemetry TelemetryStore, zones *hazardzone.Index, resolver geocode.Resolver, llmClient *llm.Client, alerts *alert.Manager, fusionCfg fusion.Config, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		telemetry: telemetry, zones: zones, resolver: resolver, llmClient: llmClient, alerts: alerts,
		fusionCfg: fusionCfg, cfg: cfg, metrics: m, logger: logger,
	}
}

// Summary is the detection run's response payload.
type Summary struct {
	SensorsAnalyzed  int
	ClustersDetected int
	AlertsCreated    int
	AlertsEscalated  int
	ExecutionTimeS   float64
}

// target is one unit of high-risk work: either a cluster or an unclustered
// high-risk sensor, normalised to the fields AssessRisk and EnsureAlert
// both need.
type target struct {
	detectionType models.DetectionType
	repID         string
	members       []string
	centerLat     float64
	centerLon     float64
	avgRisk       float64
	maxRisk       float64
	analysis      *models.SensorAnalysis // set for individual detections
}

// Run executes one detection pass over [now-window, now].
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.DetectRunDuration.Observe(time.Since(start).Seconds())
		}
	}()

	now := start.Unix()
	since := now - e.cfg.WindowSeconds

	readings, err := e.telemetry.LatestPerSensor(ctx, since, now)
	if err != nil {
		return Summary{}, openlewserr.Wrap(openlewserr.KindStorageTransient, "fetch telemetry window failed", err)
	}

	analyses := make([]models.SensorAnalysis, len(readings))
	for i, r := range readings {
		critical := 40.0
		if r.ZoneRef != nil {
			critical = r.ZoneRef.CriticalMoisturePercent
		}
		analyses[i] = models.SensorAnalysis{
			SensorID:                r.SensorID,
			Reading:                 r,
			BaseRisk:                scorer.BaseRisk(r),
			ZoneContext:             r.ZoneRef,
			CriticalMoisturePercent: critical,
		}
	}

	fusion.Correlate(analyses, e.fusionCfg)
	clusters := fusion.DetectClusters(analyses, e.fusionCfg)

	targets := e.buildTargets(clusters, analyses)

	if e.metrics != nil {
		e.metrics.SensorsAnalyzed.Add(float64(len(analyses)))
		e.metrics.ClustersDetected.Add(float64(len(clusters)))
	}

	results, errs := worker.RunBatch(ctx, e.cfg.FanOut, targets, e.processTarget)

	summary := Summary{SensorsAnalyzed: len(analyses), ClustersDetected: len(clusters)}
	for i, ref := range results {
		if errs[i] != nil {
			e.logger.Warn("target processing failed", "error", errs[i])
			continue
		}
		switch ref.Action {
		case "created":
			summary.AlertsCreated++
		case "escalated":
			summary.AlertsEscalated++
		}
	}
	if e.metrics != nil {
		e.metrics.AlertsCreated.Add(float64(summary.AlertsCreated))
		e.metrics.AlertsEscalated.Add(float64(summary.AlertsEscalated))
	}

	summary.ExecutionTimeS = time.Since(start).Seconds()
	return summary, nil
}

// buildTargets builds the clustered and unclustered-high-risk work set:
// every sensor that's a cluster member is excluded from the individual
// pass so it's assessed once, as part of its cluster.
func (e *Engine) buildTargets(clusters []models.Cluster, analyses []models.SensorAnalysis) []target {
	inCluster := make(map[string]bool)
	var targets []target

	for _, c := range clusters {
		if len(c.MemberIDs) == 0 {
			continue
		}
		for _, id := range c.MemberIDs {
			inCluster[id] = true
		}
		targets = append(targets, target{
			detectionType: models.DetectionTypeCluster,
			repID:         c.MemberIDs[0], // highest composite_risk member, per fusion's sort
			members:       c.MemberIDs,
			centerLat:     c.CentroidLat,
			centerLon:     c.CentroidLon,
			avgRisk:       c.AvgCompositeRisk,
			maxRisk:       c.MaxCompositeRisk,
		})
	}

	for i := range analyses {
		a := &analyses[i]
		if inCluster[a.SensorID] || a.CompositeRisk < e.fusionCfg.RiskThreshold {
			continue
		}
		targets = append(targets, target{
			detectionType: models.DetectionTypeIndividual,
			repID:         a.SensorID,
			members:       []string{a.SensorID},
			centerLat:     a.Reading.Latitude,
			centerLon:     a.Reading.Longitude,
			avgRisk:       a.CompositeRisk,
			maxRisk:       a.CompositeRisk,
			analysis:      a,
		})
	}

	return targets
}

func (e *Engine) processTarget(ctx context.Context, t target) (alert.AlertRef, error) {
	zone, err := e.zones.Nearest(ctx, t.centerLat, t.centerLon, e.cfg.ZoneMaxDistKM)
	if err != nil {
		e.logger.Warn("hazard zone lookup failed, continuing without zone context", "error", err)
	}

	var zoneHazard, zoneSoil string
	criticalMoisture := 40.0
	var zoneSnapshot *models.HazardZoneSnapshot
	if zone != nil {
		zoneHazard = zone.HazardLevel.String()
		zoneSoil = zone.SoilType
		criticalMoisture = hazardzone.CriticalMoisture(*zone, e.cfg.HazardDefaults)
		zoneSnapshot = &models.HazardZoneSnapshot{
			ZoneID: zone.ZoneID, HazardLevel: zone.HazardLevel, SoilType: zone.SoilType,
			CriticalMoisturePercent: criticalMoisture,
		}
	}

	var resolvedLocation models.ResolvedLocation
	if e.resolver != nil {
		resolvedLocation = e.resolver.Resolve(ctx, t.centerLat, t.centerLon)
	}

	assessmentCtx := llm.AssessmentContext{
		IsCluster:               t.detectionType == models.DetectionTypeCluster,
		ClusterSize:             len(t.members),
		CenterSensor:            t.repID,
		Members:                 t.members,
		AvgRisk:                 t.avgRisk,
		SensorID:                t.repID,
		RiskScore:               t.maxRisk,
		TelemetrySummary:        telemetrySummary(t),
		SpatialCorrelation:      spatialCorrelation(t),
		ZoneHazardLevel:         orUnknown(zoneHazard),
		ZoneSoilType:            orUnknown(zoneSoil),
		CriticalMoisturePercent: criticalMoisture,
	}

	assessStart := time.Now()
	assessment, err := e.llmClient.AssessRisk(ctx, assessmentCtx)
	if e.metrics != nil {
		e.metrics.LLMCallDuration.WithLabelValues("assess_risk").Observe(time.Since(assessStart).Seconds())
		if err != nil {
			e.metrics.LLMCallErrors.WithLabelValues(string(openlewserr.KindOf(err))).Inc()
		}
	}
	if err != nil {
		return alert.AlertRef{}, err
	}

	narrative := ""
	if assessment.RiskLevel >= models.RiskLevelOrange {
		narrativeStart := time.Now()
		narrative, err = e.llmClient.GenerateNarrative(ctx, llm.NarrativeContext{
			RiskLevel:     assessment.RiskLevel.String(),
			Confidence:    assessment.Confidence,
			Reasoning:     assessment.Reasoning,
			LocationLabel: resolvedLocation.Label,
			TimeToFailure: string(assessment.TimeToFailureEstimate),
		})
		if e.metrics != nil {
			e.metrics.LLMCallDuration.WithLabelValues("narrative").Observe(time.Since(narrativeStart).Seconds())
		}
		if err != nil {
			e.logger.Warn("narrative generation failed, proceeding without it", "error", err)
			narrative = ""
		}
	}

	detection := alert.Detection{
		Type:             t.detectionType,
		RepresentativeID: t.repID,
		SensorsAffected:  t.members,
		CenterLocation:   models.Coordinates{Lat: t.centerLat, Lon: t.centerLon},
		ZoneSnapshot:     zoneSnapshot,
		ResolvedLocation: &resolvedLocation,
	}
	alertAssessment := alert.Assessment{
		RiskLevel:         assessment.RiskLevel,
		Confidence:        assessment.Confidence,
		Reasoning:         assessment.Reasoning,
		TriggerFactors:    assessment.TriggerFactors,
		RecommendedAction: assessment.RecommendedAction,
		TimeToFailure:     assessment.TimeToFailureEstimate,
		References:        assessment.References,
		Narrative:         narrative,
	}

	return e.alerts.EnsureAlert(ctx, detection, alertAssessment)
}

func telemetrySummary(t target) string {
	if t.detectionType == models.DetectionTypeCluster {
		return fmt.Sprintf("%d correlated sensors, average composite risk %.2f, peak %.2f", len(t.members), t.avgRisk, t.maxRisk)
	}
	a := t.analysis
	return fmt.Sprintf(
		"moisture=%.1f%% tilt_rate=%.2fmm/hr vibration=%.0f pore_pressure=%.1fkPa safety_factor=%.2f",
		a.Reading.MoisturePercent, a.Reading.TiltRateMMHr, a.Reading.VibrationCount, a.Reading.PorePressureKPa, a.Reading.SafetyFactor,
	)
}

func spatialCorrelation(t target) float64 {
	if t.analysis != nil {
		return t.analysis.SpatialCorrelation
	}
	return 1.0 // a cluster is spatial correlation by construction
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
