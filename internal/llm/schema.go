package llm

import (
	"encoding/json"
	"fmt"

	"github.com/openlews/ews/internal/models"
)

// Assessment is the schema-validated response of assess_risk.
type Assessment struct {
	RiskLevel             models.RiskLevel
	Confidence             float64
	Reasoning              string
	TriggerFactors         []string
	RecommendedAction      models.RecommendedAction
	TimeToFailureEstimate  models.TimeToFailure
	References             []string
}

type rawAssessment struct {
	RiskLevel             string   `json:"risk_level"`
	Confidence             float64  `json:"confidence"`
	Reasoning              string   `json:"reasoning"`
	TriggerFactors         []string `json:"trigger_factors"`
	RecommendedAction      string   `json:"recommended_action"`
	TimeToFailureEstimate  string   `json:"time_to_failure_estimate"`
	References             []string `json:"references"`
}

var validRiskLevels = map[string]bool{"Yellow": true, "Orange": true, "Red": true}
var validActions = map[string]bool{
	string(models.ActionMonitorClosely):      true,
	string(models.ActionPrepareEvacuation):   true,
	string(models.ActionEvacuateImmediately): true,
}
var validTTF = map[string]bool{"hours": true, "days": true, "unknown": true}

// parseAssessment validates the model's JSON text against the risk
// assessment schema: required fields, enum membership, confidence in
// [0,1]. Returns a descriptive error on any mismatch so the caller can
// retry with a "return only valid JSON" nudge.
func parseAssessment(text string) (Assessment, error) {
	var raw rawAssessment
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Assessment{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if !validRiskLevels[raw.RiskLevel] {
		return Assessment{}, fmt.Errorf("risk_level %q is not one of Yellow|Orange|Red", raw.RiskLevel)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return Assessment{}, fmt.Errorf("confidence %v out of range [0,1]", raw.Confidence)
	}
	if raw.Reasoning == "" {
		return Assessment{}, fmt.Errorf("reasoning is required")
	}
	if !validActions[raw.RecommendedAction] {
		return Assessment{}, fmt.Errorf("recommended_action %q is not a recognised phrase", raw.RecommendedAction)
	}
	if raw.TimeToFailureEstimate != "" && !validTTF[raw.TimeToFailureEstimate] {
		return Assessment{}, fmt.Errorf("time_to_failure_estimate %q is not hours|days|unknown", raw.TimeToFailureEstimate)
	}

	ttf := models.TimeToFailure(raw.TimeToFailureEstimate)
	if ttf == "" {
		ttf = models.TimeToFailureUnknown
	}

	return Assessment{
		RiskLevel:            models.ParseRiskLevel(raw.RiskLevel),
		Confidence:           raw.Confidence,
		Reasoning:            raw.Reasoning,
		TriggerFactors:       raw.TriggerFactors,
		RecommendedAction:    models.RecommendedAction(raw.RecommendedAction),
		TimeToFailureEstimate: ttf,
		References:           raw.References,
	}, nil
}
