// Package notify publishes alert lifecycle events (created/escalated) to a
// Kafka topic, implementing alert.Publisher for the alert manager's
// best-effort notification channel.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/openlews/ews/internal/models"
)

type KafkaNotifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &KafkaNotifier{writer: w, logger: logger}
}

type alertPayload struct {
	AlertID     string `json:"alert_id"`
	RiskLevel   string `json:"risk_level"`
	Confidence  float64 `json:"confidence"`
	DetectionType string `json:"detection_type"`
	CenterSensor  string `json:"center_sensor"`
	Narrative     string `json:"narrative,omitempty"`
}

func marshalAlertPayload(a models.Alert) ([]byte, error) {
	return json.Marshal(alertPayload{
		AlertID:       a.AlertID,
		RiskLevel:     a.RiskLevel.String(),
		Confidence:    a.Confidence,
		DetectionType: string(a.DetectionType),
		CenterSensor:  a.CenterSensor,
		Narrative:     a.Narrative,
	})
}

// Publish implements alert.Publisher.
func (n *KafkaNotifier) Publish(ctx context.Context, subject string, payload models.Alert) error {
	body, err := marshalAlertPayload(payload)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(payload.AlertID),
		Value: body,
		Headers: []kafkago.Header{
			{Key: "subject", Value: []byte(subject)},
		},
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
