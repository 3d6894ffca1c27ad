package validate

import (
	"strings"
	"testing"

	"github.com/openlews/ews/internal/openlewserr"
)

func f(v float64) *float64 { return &v }

func validReading() RawReading {
	return RawReading{
		SensorID:          "SENSOR_001",
		Timestamp:         float64(1735430400),
		Latitude:          6.85,
		Longitude:         80.93,
		Geohash:           "tc1xyz",
		MoisturePercent:   f(75.5),
		TiltXDegrees:      f(1),
		TiltYDegrees:      f(1),
		TiltRateMMHr:      f(2),
		PorePressureKPa:   f(1),
		VibrationCount:    f(10),
		SafetyFactor:      f(1.5),
		BatteryPercent:    f(90),
		TemperatureC:      f(25),
	}
}

func TestValidateAccepts(t *testing.T) {
	r, err := Validate(validReading())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.SensorID != "SENSOR_001" || r.Timestamp != 1735430400 {
		t.Errorf("unexpected reading: %+v", r)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	raw := validReading()
	raw.MoisturePercent = f(105)
	_, err := Validate(raw)
	if err == nil {
		t.Fatal("expected error for out-of-range moisture")
	}
	if !openlewserr.Is(err, openlewserr.KindValidation) {
		t.Errorf("expected ValidationError kind, got %v", openlewserr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("error message %q does not contain 'out of range'", err.Error())
	}
}

func TestValidateRejectsShortSensorID(t *testing.T) {
	raw := validReading()
	raw.SensorID = "AB"
	_, err := Validate(raw)
	if err == nil || !strings.Contains(err.Error(), "ShortIdentifier") {
		t.Fatalf("expected ShortIdentifier error, got %v", err)
	}
}

func TestValidateRejectsMissingField(t *testing.T) {
	raw := validReading()
	raw.MoisturePercent = nil
	_, err := Validate(raw)
	if err == nil || !strings.Contains(err.Error(), "MissingField") {
		t.Fatalf("expected MissingField error, got %v", err)
	}
}

// TestValidateAcceptsMinimalRequiredOnlyPayload mirrors spec.md's scenario
// of a reading carrying only the six mandatory fields (sensor_id, timestamp,
// latitude, longitude, geohash, moisture_percent): every other measurement
// is optional and must not be rejected as missing.
func TestValidateAcceptsMinimalRequiredOnlyPayload(t *testing.T) {
	raw := RawReading{
		SensorID:        "SENSOR_001",
		Timestamp:       float64(1735430400),
		Latitude:        6.85,
		Longitude:       80.93,
		Geohash:         "tc1xyz",
		MoisturePercent: f(75.5),
	}
	r, err := Validate(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.MoisturePercent != 75.5 {
		t.Errorf("MoisturePercent = %v, want 75.5", r.MoisturePercent)
	}
	if r.TiltXDegrees != 0 || r.SafetyFactor != 0 || r.BatteryPercent != 0 {
		t.Errorf("expected omitted optional fields to default to zero, got %+v", r)
	}
}

func TestValidateRangeChecksOptionalFieldOnlyWhenPresent(t *testing.T) {
	raw := RawReading{
		SensorID:        "SENSOR_001",
		Timestamp:       float64(1735430400),
		Latitude:        6.85,
		Longitude:       80.93,
		Geohash:         "tc1xyz",
		MoisturePercent: f(75.5),
		SafetyFactor:    f(999),
	}
	_, err := Validate(raw)
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected out-of-range error for supplied safety_factor, got %v", err)
	}
}

func TestValidateAcceptsISO8601Timestamp(t *testing.T) {
	raw := validReading()
	raw.Timestamp = "2025-01-01T00:00:00Z"
	r, err := Validate(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Timestamp != 1735689600 {
		t.Errorf("Timestamp = %d, want 1735689600", r.Timestamp)
	}
}

func TestValidateRejectsTimestampOutOfEra(t *testing.T) {
	raw := validReading()
	raw.Timestamp = float64(1000000000) // 2001, before 2020-01-01
	_, err := Validate(raw)
	if err == nil || !strings.Contains(err.Error(), "InvalidTimestamp") {
		t.Fatalf("expected InvalidTimestamp error, got %v", err)
	}
}
