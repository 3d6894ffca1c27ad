// Package eventbus publishes high-risk telemetry events onto a Kafka topic,
// using an EventBridge-shaped envelope (Source/DetailType/Detail) so the
// envelope format survives the move from a managed event bus to a
// self-hosted broker.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/openlews/ews/internal/models"
)

// HighRiskThresholds mirrors the ingestor's classification rule: any single
// breach is sufficient, independent of the continuous risk score.
const (
	MoisturePercentThreshold = 85.0
	PorePressureKPaThreshold = 10.0
	TiltRateMMHrThreshold    = 5.0
	SafetyFactorThreshold    = 1.2
)

// IsHighRisk reports whether a single reading crosses any hard threshold,
// independent of scorer.BaseRisk, per the ingestor's fast-path escalation.
func IsHighRisk(r models.Reading) bool {
	if r.MoisturePercent >= MoisturePercentThreshold {
		return true
	}
	if r.PorePressureKPa >= PorePressureKPaThreshold {
		return true
	}
	if r.TiltRateMMHr >= TiltRateMMHrThreshold {
		return true
	}
	if r.SafetyFactor > 0 && r.SafetyFactor < SafetyFactorThreshold {
		return true
	}
	if r.ZoneRef != nil {
		highHazard := r.ZoneRef.HazardLevel == models.HazardHigh || r.ZoneRef.HazardLevel == models.HazardVeryHigh
		if highHazard && r.MoisturePercent > 70 {
			return true
		}
	}
	return false
}

type envelope struct {
	Source       string          `json:"source"`
	DetailType   string          `json:"detail_type"`
	Detail       json.RawMessage `json:"detail"`
	EventBusName string          `json:"event_bus_name,omitempty"`
}

type highRiskDetail struct {
	SensorID        string  `json:"sensor_id"`
	Timestamp       int64   `json:"timestamp"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	MoisturePercent float64 `json:"moisture_percent"`
	PorePressureKPa float64 `json:"pore_pressure_kpa"`
	SafetyFactor    float64 `json:"safety_factor"`
	HazardLevel     string  `json:"hazard_level,omitempty"`
	AlertReason     string  `json:"alert_reason"`
}

// Publisher produces HighRiskTelemetry events to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	topic  string
	logger *slog.Logger
}

func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &Publisher{writer: w, topic: topic, logger: logger}
}

// PublishHighRiskTelemetry emits one envelope per flagged reading. Failures
// are logged and swallowed: the event bus is best-effort and must never
// block ingest writes.
func (p *Publisher) PublishHighRiskTelemetry(ctx context.Context, readings []models.Reading) int {
	var msgs []kafkago.Message
	for _, r := range readings {
		if !IsHighRisk(r) {
			continue
		}
		hazardLevel := ""
		if r.ZoneRef != nil {
			hazardLevel = r.ZoneRef.HazardLevel.String()
		}
		detail, err := json.Marshal(highRiskDetail{
			SensorID:        r.SensorID,
			Timestamp:       r.Timestamp,
			Latitude:        r.Latitude,
			Longitude:       r.Longitude,
			MoisturePercent: r.MoisturePercent,
			PorePressureKPa: r.PorePressureKPa,
			SafetyFactor:    r.SafetyFactor,
			HazardLevel:     hazardLevel,
			AlertReason:     "Critical thresholds exceeded",
		})
		if err != nil {
			p.logger.Warn("marshal high-risk detail failed", "sensor_id", r.SensorID, "error", err)
			continue
		}
		body, err := json.Marshal(envelope{Source: "openlews.ingestor", DetailType: "HighRiskTelemetry", Detail: detail})
		if err != nil {
			continue
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(r.SensorID),
			Value: body,
			Time:  time.Unix(r.Timestamp, 0),
			Headers: []kafkago.Header{
				{Key: "detail_type", Value: []byte("HighRiskTelemetry")},
			},
		})
	}
	if len(msgs) == 0 {
		return 0
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Warn("high-risk event publish failed", "error", err, "count", len(msgs))
		return 0
	}
	return len(msgs)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
