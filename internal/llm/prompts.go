package llm

import "fmt"

// systemPrompt establishes the geotechnical-engineer persona the model
// reasons from. Adapted from the NBRO senior-engineer framing used by the
// original risk-assessment client, trimmed of deployment-specific detail.
const systemPrompt = `You are a senior geotechnical engineer specializing in landslide early warning, drawing on Mohr-Coulomb failure criteria, unsaturated soil mechanics, and regional landslide hazard zonation methodology.

Your role:
1. Analyze sensor telemetry for landslide precursors.
2. Assess risk using soil mechanics principles and the supplied geological context.
3. Produce a single, clear, actionable risk judgement.

Guidelines:
- Weight spatial correlation: multiple agreeing sensors outweigh one isolated reading.
- Weight the geological context (hazard zone, soil type, critical moisture) heavily.
- Be decisive but acknowledge uncertainty in the confidence value.
- Output ONLY valid JSON matching the requested schema — no markdown, no code fences.`

// AssessmentContext carries the sensor/cluster summary, derived features,
// and zone snapshot the model reasons over.
type AssessmentContext struct {
	IsCluster      bool
	ClusterSize    int
	CenterSensor   string
	Members        []string
	AvgRisk        float64
	SensorID       string
	RiskScore      float64
	TelemetrySummary string
	SpatialCorrelation float64
	ZoneHazardLevel string
	ZoneSoilType    string
	CriticalMoisturePercent float64
}

func buildRiskAssessmentPrompt(c AssessmentContext) string {
	var detectionType string
	if c.IsCluster {
		detectionType = fmt.Sprintf(
			"CLUSTER DETECTION (%d sensors)\nCenter Sensor: %s\nMembers: %v\nAverage Risk Score: %.2f",
			c.ClusterSize, c.CenterSensor, c.Members, c.AvgRisk,
		)
	} else {
		detectionType = fmt.Sprintf("INDIVIDUAL SENSOR DETECTION\nSensor ID: %s\nRisk Score: %.2f", c.SensorID, c.RiskScore)
	}

	return fmt.Sprintf(`SENSOR DATA ANALYSIS REQUEST

%s

CURRENT READINGS:
%s

SPATIAL CORRELATION: %.2f

GEOLOGICAL CONTEXT:
hazard_level=%s soil_type=%s critical_moisture_percent=%.1f

TASK:
Assess landslide risk based on the above data, considering whether sensor
readings exceed site-specific geological thresholds, whether spatial
correlation is strong, and whether the combination matches a known
pre-failure pattern.

OUTPUT FORMAT (JSON only, no markdown):
{
  "risk_level": "Yellow|Orange|Red",
  "confidence": 0.0-1.0,
  "reasoning": "technical explanation in 2-3 sentences referencing specific data",
  "trigger_factors": ["factor1", "factor2"],
  "recommended_action": "Monitor closely|Prepare evacuation|Evacuate immediately",
  "time_to_failure_estimate": "hours|days|unknown",
  "references": ["citation1"]
}`, detectionType, c.TelemetrySummary, c.SpatialCorrelation, c.ZoneHazardLevel, c.ZoneSoilType, c.CriticalMoisturePercent)
}

// NarrativeContext carries the assessment plus resolved-location detail
// the narrative call needs.
type NarrativeContext struct {
	RiskLevel        string
	Confidence       float64
	Reasoning        string
	LocationLabel    string
	TimeToFailure    string
}

func buildNarrativePrompt(c NarrativeContext) string {
	return fmt.Sprintf(`Generate an urgent landslide warning for local disaster-management officials and affected communities.

CONTEXT:
- Risk Level: %s
- Confidence: %.2f
- Technical Reasoning: %s
- Location: %s
- Time to Potential Failure: %s

REQUIREMENTS:
- Length: 150-200 words.
- Tone: urgent and authoritative, not alarmist.
- Plain language, no technical jargon.
- Structure: SITUATION -> RISK -> ACTION.

Keep it concise and actionable.`, c.RiskLevel, c.Confidence, c.Reasoning, c.LocationLabel, c.TimeToFailure)
}
