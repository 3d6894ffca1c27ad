package notify

import (
	"encoding/json"
	"testing"

	"github.com/openlews/ews/internal/models"
)

func TestMarshalAlertPayloadShape(t *testing.T) {
	a := models.Alert{
		AlertID:       "ALERT_20260101_120000_CLUSTER:SENSOR_001",
		RiskLevel:     models.RiskLevelRed,
		Confidence:    0.92,
		DetectionType: models.DetectionTypeCluster,
		CenterSensor:  "SENSOR_001",
		Narrative:     "evacuate the area",
	}

	body, err := marshalAlertPayload(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["risk_level"] != "Red" {
		t.Errorf("risk_level = %v, want Red", decoded["risk_level"])
	}
	if decoded["detection_type"] != "cluster" {
		t.Errorf("detection_type = %v, want cluster", decoded["detection_type"])
	}
	if decoded["alert_id"] != a.AlertID {
		t.Errorf("alert_id = %v, want %v", decoded["alert_id"], a.AlertID)
	}
}

func TestMarshalAlertPayloadOmitsEmptyNarrative(t *testing.T) {
	a := models.Alert{AlertID: "ALERT_X", RiskLevel: models.RiskLevelYellow, DetectionType: models.DetectionTypeIndividual}

	body, err := marshalAlertPayload(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, present := decoded["narrative"]; present {
		t.Error("expected narrative key to be omitted when empty")
	}
}

func TestNewKafkaNotifierClosesCleanly(t *testing.T) {
	n := NewKafkaNotifier([]string{"localhost:9092"}, "openlews.alerts", nil)
	if err := n.Close(); err != nil {
		t.Errorf("unexpected error closing an unused writer: %v", err)
	}
}
