// Package validate implements shape, range, and timestamp checks on
// inbound Readings, per the telemetry validator design.
package validate

import (
	"fmt"
	"time"

	"github.com/openlews/ews/internal/models"
	"github.com/openlews/ews/internal/openlewserr"
)

type rangeRule struct {
	min, max float64
}

var ranges = map[string]rangeRule{
	"moisture_percent":   {0, 100},
	"tilt_x_degrees":     {-30, 30},
	"tilt_y_degrees":     {-30, 30},
	"tilt_rate_mm_hr":    {0, 50},
	"pore_pressure_kpa":  {-100, 50},
	"vibration_count":    {0, 1000},
	"safety_factor":      {0, 10},
	"battery_percent":    {0, 100},
	"temperature_c":      {-10, 50},
	"latitude":           {-90, 90},
	"longitude":          {-180, 180},
}

const (
	minTimestamp = 1577836800 // 2020-01-01T00:00:00Z
	maxTimestamp = 2147483647 // 2038-01-19T03:14:07Z
)

// RawReading is the wire shape of an inbound telemetry packet: numeric
// fields may be absent (nil), and timestamp may be an epoch number or an
// ISO-8601 string, per the ingest HTTP interface.
type RawReading struct {
	SensorID  string
	Timestamp any // float64 (epoch seconds) or string (ISO-8601)
	Latitude  float64
	Longitude float64
	Geohash   string

	MoisturePercent   *float64
	TiltXDegrees      *float64
	TiltYDegrees      *float64
	TiltRateMMHr      *float64
	PorePressureKPa   *float64
	VibrationCount    *float64
	VibrationBaseline *float64
	SafetyFactor      *float64
	Rainfall24hMM     *float64
	BatteryPercent    *float64
	TemperatureC      *float64
}

func rangeCheck(field string, v float64) error {
	r, ok := ranges[field]
	if !ok {
		return nil
	}
	if v < r.min || v > r.max {
		return openlewserr.New(openlewserr.KindValidation,
			fmt.Sprintf("%s value %v out of range [%v,%v]", field, v, r.min, r.max))
	}
	return nil
}

// normaliseTimestamp accepts either a numeric epoch-seconds value or an
// ISO-8601 string (with or without timezone) and returns epoch seconds.
func normaliseTimestamp(ts any) (int64, error) {
	switch v := ts.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.Unix(), nil
		}
		if t, err := time.Parse("2006-01-02T15:04:05", v); err == nil {
			return t.Unix(), nil
		}
		return 0, openlewserr.New(openlewserr.KindValidation, "InvalidTimestamp: unparseable string "+v)
	default:
		return 0, openlewserr.New(openlewserr.KindValidation, "InvalidTimestamp: unsupported type")
	}
}

// Validate checks shape, range, and timestamp rules and returns a fully
// typed Reading on success (with optional fields defaulted to zero), or a
// tagged ValidationError identifying the first rule that failed.
func Validate(raw RawReading) (models.Reading, error) {
	if len(raw.SensorID) < 3 {
		return models.Reading{}, openlewserr.New(openlewserr.KindValidation, "ShortIdentifier: sensor_id must be >= 3 chars")
	}
	if len(raw.Geohash) < 4 {
		return models.Reading{}, openlewserr.New(openlewserr.KindValidation, "ShortIdentifier: geohash must be >= 4 chars")
	}
	if raw.Timestamp == nil {
		return models.Reading{}, openlewserr.New(openlewserr.KindValidation, "MissingField: timestamp")
	}

	ts, err := normaliseTimestamp(raw.Timestamp)
	if err != nil {
		return models.Reading{}, err
	}
	if ts < minTimestamp || ts > maxTimestamp {
		return models.Reading{}, openlewserr.New(openlewserr.KindValidation,
			fmt.Sprintf("InvalidTimestamp: %d out of range [%d,%d]", ts, minTimestamp, maxTimestamp))
	}

	if err := rangeCheck("latitude", raw.Latitude); err != nil {
		return models.Reading{}, err
	}
	if err := rangeCheck("longitude", raw.Longitude); err != nil {
		return models.Reading{}, err
	}
	if raw.MoisturePercent == nil {
		return models.Reading{}, openlewserr.New(openlewserr.KindValidation, "MissingField: moisture_percent")
	}
	if err := rangeCheck("moisture_percent", *raw.MoisturePercent); err != nil {
		return models.Reading{}, err
	}

	r := models.Reading{
		SensorID:        raw.SensorID,
		Timestamp:       ts,
		Latitude:        raw.Latitude,
		Longitude:       raw.Longitude,
		Geohash:         raw.Geohash,
		MoisturePercent: *raw.MoisturePercent,
	}

	// The remaining measurement fields are optional: range-checked only
	// when supplied, left at their zero value otherwise.
	optional := map[string]*float64{
		"tilt_x_degrees":    raw.TiltXDegrees,
		"tilt_y_degrees":    raw.TiltYDegrees,
		"tilt_rate_mm_hr":   raw.TiltRateMMHr,
		"pore_pressure_kpa": raw.PorePressureKPa,
		"vibration_count":   raw.VibrationCount,
		"safety_factor":     raw.SafetyFactor,
		"battery_percent":   raw.BatteryPercent,
		"temperature_c":     raw.TemperatureC,
	}
	for field, v := range optional {
		if v == nil {
			continue
		}
		if err := rangeCheck(field, *v); err != nil {
			return models.Reading{}, err
		}
	}

	if raw.TiltXDegrees != nil {
		r.TiltXDegrees = *raw.TiltXDegrees
	}
	if raw.TiltYDegrees != nil {
		r.TiltYDegrees = *raw.TiltYDegrees
	}
	if raw.TiltRateMMHr != nil {
		r.TiltRateMMHr = *raw.TiltRateMMHr
	}
	if raw.PorePressureKPa != nil {
		r.PorePressureKPa = *raw.PorePressureKPa
	}
	if raw.VibrationCount != nil {
		r.VibrationCount = *raw.VibrationCount
	}
	if raw.SafetyFactor != nil {
		r.SafetyFactor = *raw.SafetyFactor
	}
	if raw.BatteryPercent != nil {
		r.BatteryPercent = *raw.BatteryPercent
	}
	if raw.TemperatureC != nil {
		r.TemperatureC = *raw.TemperatureC
	}

	if raw.VibrationBaseline != nil {
		if *raw.VibrationBaseline < 0 {
			return models.Reading{}, openlewserr.New(openlewserr.KindValidation, "OutOfRange: vibration_baseline must be >= 0")
		}
		r.VibrationBaseline = raw.VibrationBaseline
	}
	if raw.Rainfall24hMM != nil {
		if *raw.Rainfall24hMM < 0 {
			return models.Reading{}, openlewserr.New(openlewserr.KindValidation, "OutOfRange: rainfall_24h_mm must be >= 0")
		}
		r.Rainfall24hMM = raw.Rainfall24hMM
	}

	return r, nil
}
