package eventbus

import (
	"testing"

	"github.com/openlews/ews/internal/models"
)

func baseReading() models.Reading {
	return models.Reading{
		SensorID:        "SENSOR_001",
		MoisturePercent: 40,
		PorePressureKPa: 2,
		TiltRateMMHr:    1,
		SafetyFactor:    1.8,
	}
}

func TestIsHighRiskMoistureThreshold(t *testing.T) {
	r := baseReading()
	r.MoisturePercent = 85
	if !IsHighRisk(r) {
		t.Error("expected moisture_percent >= 85 to be high risk")
	}
}

func TestIsHighRiskSafetyFactorZeroIsNotFlagged(t *testing.T) {
	r := baseReading()
	r.SafetyFactor = 0 // "not measured", not "0 == collapsed"
	if IsHighRisk(r) {
		t.Error("safety_factor == 0 (missing) must not trigger high risk")
	}
}

func TestIsHighRiskSafetyFactorBelowThreshold(t *testing.T) {
	r := baseReading()
	r.SafetyFactor = 1.1
	if !IsHighRisk(r) {
		t.Error("expected 0 < safety_factor < 1.2 to be high risk")
	}
}

func TestIsHighRiskHazardZoneAmplifiesModerateHighMoisture(t *testing.T) {
	r := baseReading()
	r.MoisturePercent = 75
	r.ZoneRef = &models.HazardZoneSnapshot{HazardLevel: models.HazardVeryHigh}
	if !IsHighRisk(r) {
		t.Error("expected moisture > 70 in a VeryHigh zone to be high risk")
	}
}

func TestIsHighRiskNormalReadingNotFlagged(t *testing.T) {
	if IsHighRisk(baseReading()) {
		t.Error("expected a nominal reading to not be high risk")
	}
}
