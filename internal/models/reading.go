// Package models holds the OpenLEWS data model: Reading, HazardZone,
// SensorAnalysis, Cluster, and Alert.
package models

import "time"

// Reading is a single sensor observation. Immutable once stored.
type Reading struct {
	SensorID string
	// Timestamp is epoch seconds, normalised by the validator from either
	// a numeric epoch or an ISO-8601 string.
	Timestamp int64
	Latitude  float64
	Longitude float64
	Geohash   string

	MoisturePercent   float64
	TiltXDegrees      float64
	TiltYDegrees      float64
	TiltRateMMHr      float64
	PorePressureKPa   float64
	VibrationCount    float64
	VibrationBaseline *float64
	SafetyFactor      float64
	Rainfall24hMM     *float64
	BatteryPercent    float64
	TemperatureC      float64

	// Set by the enricher.
	ZoneRef  *HazardZoneSnapshot
	Enriched bool

	// Set by the writer at persistence time.
	IngestedAt time.Time
	ExpiresAt  time.Time
}

// HazardZoneSnapshot is the subset of a HazardZone a Reading or Alert
// carries forward once enrichment/RAG lookup has happened, so that later
// readers don't need a live zone-index round trip to see what informed a
// score.
type HazardZoneSnapshot struct {
	ZoneID       string
	HazardLevel  HazardLevel
	SoilType     string
	CriticalMoisturePercent float64
}
