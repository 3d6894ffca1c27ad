package detect

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openlews/ews/internal/alert"
	"github.com/openlews/ews/internal/fusion"
	"github.com/openlews/ews/internal/hazardzone"
	"github.com/openlews/ews/internal/llm"
	"github.com/openlews/ews/internal/models"
)

type fakeTelemetryStore struct {
	readings []models.Reading
}

func (f *fakeTelemetryStore) LatestPerSensor(ctx context.Context, since, until int64) ([]models.Reading, error) {
	return f.readings, nil
}

type fakeZoneStore struct{}

func (f *fakeZoneStore) FindByGeohash4(ctx context.Context, cell string) ([]models.HazardZone, error) {
	return nil, nil
}

type fakeResolver struct{ calls int }

func (r *fakeResolver) Resolve(ctx context.Context, lat, lon float64) models.ResolvedLocation {
	r.calls++
	return models.ResolvedLocation{Label: "6.90000, 79.90000", ResolvedBy: "coordinates_only"}
}

type fakeAlertStore struct {
	alerts map[string]models.Alert
}

func newFakeAlertStore() *fakeAlertStore { return &fakeAlertStore{alerts: make(map[string]models.Alert)} }

func (f *fakeAlertStore) GetActiveByPrefix(ctx context.Context, dedupKey string, within time.Duration) (*models.Alert, error) {
	for _, a := range f.alerts {
		if len(a.AlertID) >= len(dedupKey) && a.AlertID[len(a.AlertID)-len(dedupKey):] == dedupKey {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAlertStore) UpsertAlert(ctx context.Context, a models.Alert) error {
	f.alerts[a.AlertID] = a
	return nil
}

// scriptedTransport returns one canned assessment JSON response per call,
// cycling if exhausted, and a fixed narrative text.
type scriptedTransport struct {
	assessments []string
	calls       int
}

func (t *scriptedTransport) Chat(ctx context.Context, system, user string, maxTokens int, temperature, topP float64) (string, bool, error) {
	i := t.calls
	t.calls++
	if i < len(t.assessments) {
		return t.assessments[i], false, nil
	}
	return "narrative text", false, nil
}

func assessmentJSON(level string, confidence float64) string {
	b, _ := json.Marshal(map[string]any{
		"risk_level":               level,
		"confidence":               confidence,
		"reasoning":                "moisture and tilt rate exceed site thresholds",
		"trigger_factors":          []string{"moisture_exceeds_critical"},
		"recommended_action":       "Monitor closely",
		"time_to_failure_estimate": "days",
		"references":               []string{},
	})
	return string(b)
}

func baseReading(sensorID string, lat, lon float64) models.Reading {
	return models.Reading{
		SensorID: sensorID, Timestamp: time.Now().Unix(), Latitude: lat, Longitude: lon,
		MoisturePercent: 50, TiltRateMMHr: 0.5, PorePressureKPa: 3, SafetyFactor: 1.8,
		BatteryPercent: 90, TemperatureC: 25,
	}
}

func newEngine(t *testing.T, telemetry TelemetryStore, transport *scriptedTransport) (*Engine, *fakeAlertStore) {
	t.Helper()
	zones := hazardzone.NewIndex(&fakeZoneStore{})
	resolver := &fakeResolver{}
	client := llm.NewClient(transport, llm.NewRetryPolicy(1, 0.001, 0.002), "test-model", 512, 0.2, 0.9, nil)
	alertStore := newFakeAlertStore()
	mgr := alert.NewManager(alertStore, nil, clockwork.NewFakeClock(), 6*time.Hour, 30*24*time.Hour, nil)

	engine := NewEngine(telemetry, zones, resolver, client, mgr, fusion.DefaultConfig(), Config{
		WindowSeconds: 3600, FanOut: 4, ZoneMaxDistKM: 2,
	}, nil, nil)
	return engine, alertStore
}

func TestRunCreatesAlertForHighRiskIndividualSensor(t *testing.T) {
	telemetry := &fakeTelemetryStore{readings: []models.Reading{
		{
			SensorID: "SENSOR_001", Timestamp: time.Now().Unix(), Latitude: 6.9, Longitude: 79.9,
			MoisturePercent: 95, TiltRateMMHr: 8, PorePressureKPa: 15, SafetyFactor: 0.8,
			BatteryPercent: 80, TemperatureC: 25,
		},
	}}
	transport := &scriptedTransport{assessments: []string{assessmentJSON("Red", 0.9)}}
	engine, store := newEngine(t, telemetry, transport)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.SensorsAnalyzed != 1 {
		t.Errorf("SensorsAnalyzed = %d, want 1", summary.SensorsAnalyzed)
	}
	if summary.AlertsCreated != 1 {
		t.Errorf("AlertsCreated = %d, want 1", summary.AlertsCreated)
	}
	if len(store.alerts) != 1 {
		t.Fatalf("expected 1 stored alert, got %d", len(store.alerts))
	}
	for _, a := range store.alerts {
		if a.RiskLevel != models.RiskLevelRed {
			t.Errorf("stored alert RiskLevel = %v, want Red", a.RiskLevel)
		}
		if a.Narrative == "" {
			t.Error("expected narrative to be generated for a Red assessment")
		}
	}
}

func TestRunSkipsLowRiskReadings(t *testing.T) {
	telemetry := &fakeTelemetryStore{readings: []models.Reading{
		baseReading("SENSOR_010", 6.9, 79.9),
		baseReading("SENSOR_011", 6.91, 79.91),
	}}
	transport := &scriptedTransport{}
	engine, store := newEngine(t, telemetry, transport)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.AlertsCreated != 0 {
		t.Errorf("AlertsCreated = %d, want 0 for nominal telemetry", summary.AlertsCreated)
	}
	if len(store.alerts) != 0 {
		t.Errorf("expected no alerts stored, got %d", len(store.alerts))
	}
	if transport.calls != 0 {
		t.Errorf("expected no LLM calls for low-risk telemetry, got %d", transport.calls)
	}
}

func TestRunGroupsCorrelatedClusterIntoOneAssessment(t *testing.T) {
	var readings []models.Reading
	for i := 0; i < 3; i++ {
		r := models.Reading{
			SensorID:  []string{"SENSOR_020", "SENSOR_021", "SENSOR_022"}[i],
			Timestamp: time.Now().Unix(),
			Latitude:  6.9000 + float64(i)*0.00005, Longitude: 79.9000,
			MoisturePercent: 92, TiltRateMMHr: 7, PorePressureKPa: 14, SafetyFactor: 0.9,
			BatteryPercent: 75, TemperatureC: 24,
		}
		readings = append(readings, r)
	}
	telemetry := &fakeTelemetryStore{readings: readings}
	transport := &scriptedTransport{assessments: []string{assessmentJSON("Red", 0.85)}}
	engine, store := newEngine(t, telemetry, transport)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ClustersDetected != 1 {
		t.Errorf("ClustersDetected = %d, want 1", summary.ClustersDetected)
	}
	if summary.AlertsCreated != 1 {
		t.Errorf("AlertsCreated = %d, want 1 (one alert for the whole cluster, not per-sensor)", summary.AlertsCreated)
	}
	if len(store.alerts) != 1 {
		t.Fatalf("expected exactly 1 stored alert for the cluster, got %d", len(store.alerts))
	}
	for _, a := range store.alerts {
		if len(a.SensorsAffected) != 3 {
			t.Errorf("SensorsAffected = %v, want all 3 cluster members", a.SensorsAffected)
		}
	}
}

func TestRunEscalatesExistingAlertOnSubsequentRun(t *testing.T) {
	telemetry := &fakeTelemetryStore{readings: []models.Reading{
		{
			SensorID: "SENSOR_030", Timestamp: time.Now().Unix(), Latitude: 6.9, Longitude: 79.9,
			MoisturePercent: 86, TiltRateMMHr: 5.5, PorePressureKPa: 10.5, SafetyFactor: 1.1,
			BatteryPercent: 80, TemperatureC: 25,
		},
	}}
	transport := &scriptedTransport{assessments: []string{assessmentJSON("Yellow", 0.6), assessmentJSON("Red", 0.9)}}
	engine, store := newEngine(t, telemetry, transport)

	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("first run: unexpected error: %v", err)
	}
	summary2, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: unexpected error: %v", err)
	}
	if summary2.AlertsEscalated != 1 {
		t.Errorf("AlertsEscalated = %d, want 1", summary2.AlertsEscalated)
	}
	if len(store.alerts) != 1 {
		t.Fatalf("expected the same alert to be escalated in place, got %d distinct alerts", len(store.alerts))
	}
	for _, a := range store.alerts {
		if a.RiskLevel != models.RiskLevelRed {
			t.Errorf("RiskLevel = %v, want Red after escalation", a.RiskLevel)
		}
	}
}
