// Package api hosts the Ingest HTTP endpoint: request decoding, the
// ingest handler call, and the response shape the front door returns.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlews/ews/internal/ingest"
	"github.com/openlews/ews/internal/validate"
)

type Handler struct {
	ingest *ingest.Handler
}

func NewHandler(ingestHandler *ingest.Handler) *Handler {
	return &Handler{ingest: ingestHandler}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/telemetry", h.ingestTelemetry)
	r.GET("/health", h.health)
}

// telemetryRequest is the wire shape: {telemetry: [Reading, ...]}. Each
// reading's optional numeric fields arrive as *float64 so a genuinely
// absent field can be told apart from a zero value, per the validator's
// MissingField rule. Timestamp is `any` since it may be a numeric epoch
// or an ISO-8601 string.
type telemetryRequest struct {
	Telemetry []rawReadingJSON `json:"telemetry"`
}

type rawReadingJSON struct {
	SensorID          string   `json:"sensor_id"`
	Timestamp         any      `json:"timestamp"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	Geohash           string   `json:"geohash"`
	MoisturePercent   *float64 `json:"moisture_percent"`
	TiltXDegrees      *float64 `json:"tilt_x_degrees"`
	TiltYDegrees      *float64 `json:"tilt_y_degrees"`
	TiltRateMMHr      *float64 `json:"tilt_rate_mm_hr"`
	PorePressureKPa   *float64 `json:"pore_pressure_kpa"`
	VibrationCount    *float64 `json:"vibration_count"`
	VibrationBaseline *float64 `json:"vibration_baseline"`
	SafetyFactor      *float64 `json:"safety_factor"`
	Rainfall24hMM     *float64 `json:"rainfall_24h_mm"`
	BatteryPercent    *float64 `json:"battery_percent"`
	TemperatureC      *float64 `json:"temperature_c"`
}

func toRawReadings(in []rawReadingJSON) []validate.RawReading {
	out := make([]validate.RawReading, len(in))
	for i, r := range in {
		out[i] = validate.RawReading{
			SensorID: r.SensorID, Timestamp: r.Timestamp, Latitude: r.Latitude, Longitude: r.Longitude, Geohash: r.Geohash,
			MoisturePercent: r.MoisturePercent, TiltXDegrees: r.TiltXDegrees, TiltYDegrees: r.TiltYDegrees,
			TiltRateMMHr: r.TiltRateMMHr, PorePressureKPa: r.PorePressureKPa, VibrationCount: r.VibrationCount,
			VibrationBaseline: r.VibrationBaseline, SafetyFactor: r.SafetyFactor, Rainfall24hMM: r.Rainfall24hMM,
			BatteryPercent: r.BatteryPercent, TemperatureC: r.TemperatureC,
		}
	}
	return out
}

// ingestTelemetry validates and persists the batch, returning 200 with per
// item statistics if at least one reading validated, or 400 if the whole
// batch was rejected.
func (h *Handler) ingestTelemetry(c *gin.Context) {
	var req telemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body", "detail": err.Error()})
		return
	}

	result, err := h.ingest.HandleBatch(c.Request.Context(), toRawReadings(req.Telemetry))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed", "detail": err.Error()})
		return
	}

	status := http.StatusOK
	if result.Statistics.Validated == 0 && result.Statistics.TotalReceived > 0 {
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{
		"message":             "telemetry processed",
		"statistics":          result.Statistics,
		"validation_errors":   result.ValidationFailures,
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
