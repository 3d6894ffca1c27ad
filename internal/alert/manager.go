// Package alert implements the alert lifecycle: dedup, escalate, persist
// and publish, per the alert manager design.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openlews/ews/internal/models"
	"github.com/openlews/ews/internal/openlewserr"
)

// Store is the alert store interface expected from the KV layer.
type Store interface {
	// GetActiveByPrefix returns the most recent active alert whose dedup
	// key (the suffix of its AlertID) is dedupKey and was last updated
	// within the window, or nil if none exists.
	GetActiveByPrefix(ctx context.Context, dedupKey string, within time.Duration) (*models.Alert, error)
	// UpsertAlert writes alert conditionally: the write must fail (and
	// the caller must retry read-modify-write) if the stored risk_level
	// ordinal for this AlertID is already higher than alert.RiskLevel,
	// enforcing the cross-run monotonicity invariant even if two
	// DetectRuns overlap.
	UpsertAlert(ctx context.Context, alert models.Alert) error
}

// Publisher is the best-effort notification channel: publish(subject,
// payload) never rolls back the alert write on failure.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload models.Alert) error
}

// Detection is the input ensure_alert needs, abstracting over a cluster or
// an individual sensor.
type Detection struct {
	Type              models.DetectionType
	RepresentativeID  string // highest-risk member for a cluster, sensor_id for an individual
	SensorsAffected   []string
	CenterLocation    models.Coordinates
	ZoneSnapshot      *models.HazardZoneSnapshot
	ResolvedLocation  *models.ResolvedLocation
}

type Assessment struct {
	RiskLevel         models.RiskLevel
	Confidence        float64
	Reasoning         string
	TriggerFactors    []string
	RecommendedAction models.RecommendedAction
	TimeToFailure     models.TimeToFailure
	References        []string
	Narrative         string
}

type Manager struct {
	store       Store
	publisher   Publisher
	clock       clockwork.Clock
	dedupWindow time.Duration
	ttl         time.Duration
	logger      *slog.Logger
}

func NewManager(store Store, publisher Publisher, clock clockwork.Clock, dedupWindow, ttl time.Duration, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, publisher: publisher, clock: clock, dedupWindow: dedupWindow, ttl: ttl, logger: logger}
}

// AlertRef is the outcome of ensure_alert.
type AlertRef struct {
	Action    string // "created" | "escalated" | "unchanged"
	AlertID   string
	RiskLevel models.RiskLevel
}

// maxEnsureAlertAttempts bounds the read-modify-write retry loop when
// UpsertAlert reports a conflict: another run committed a higher
// risk_level between our read and our write.
const maxEnsureAlertAttempts = 5

// EnsureAlert computes dedup_key, looks up the most recent active alert
// with that prefix within the dedup window, and either creates, escalates,
// or leaves the existing alert untouched (aside from updated_at). The
// read-modify-write cycle retries against a fresh read whenever the store
// reports the write lost a race against an overlapping detection run,
// keeping risk_level monotonic across concurrent callers.
func (m *Manager) EnsureAlert(ctx context.Context, detection Detection, assessment Assessment) (AlertRef, error) {
	dedupKey := models.DedupKey(detection.Type, detection.RepresentativeID)

	for attempt := 0; attempt < maxEnsureAlertAttempts; attempt++ {
		ref, err := m.ensureAlertOnce(ctx, dedupKey, detection, assessment)
		if err == nil {
			return ref, nil
		}
		if !openlewserr.Is(err, openlewserr.KindStorageConflict) {
			return AlertRef{}, err
		}
		m.logger.Warn("ensure_alert lost a race with a concurrent run, retrying with a fresh read",
			"dedup_key", dedupKey, "attempt", attempt+1)
	}
	return AlertRef{}, openlewserr.New(openlewserr.KindStorageConflict,
		"ensure_alert exhausted retries racing another detection run for "+dedupKey)
}

func (m *Manager) ensureAlertOnce(ctx context.Context, dedupKey string, detection Detection, assessment Assessment) (AlertRef, error) {
	existing, err := m.store.GetActiveByPrefix(ctx, dedupKey, m.dedupWindow)
	if err != nil {
		return AlertRef{}, openlewserr.Wrap(openlewserr.KindStorageTransient, "get_active_by_prefix failed", err)
	}

	now := m.clock.Now()

	if existing == nil {
		a := m.newAlert(dedupKey, detection, assessment, now)
		if err := m.store.UpsertAlert(ctx, a); err != nil {
			return AlertRef{}, err
		}
		m.publish(ctx, a)
		return AlertRef{Action: "created", AlertID: a.AlertID, RiskLevel: a.RiskLevel}, nil
	}

	if shouldEscalate(*existing, assessment) {
		updated := escalate(*existing, assessment, now)
		if err := m.store.UpsertAlert(ctx, updated); err != nil {
			return AlertRef{}, err
		}
		m.publish(ctx, updated)
		return AlertRef{Action: "escalated", AlertID: updated.AlertID, RiskLevel: updated.RiskLevel}, nil
	}

	unchanged := *existing
	unchanged.UpdatedAt = now
	if err := m.store.UpsertAlert(ctx, unchanged); err != nil {
		return AlertRef{}, err
	}
	return AlertRef{Action: "unchanged", AlertID: unchanged.AlertID, RiskLevel: unchanged.RiskLevel}, nil
}

func (m *Manager) newAlert(dedupKey string, detection Detection, assessment Assessment, now time.Time) models.Alert {
	a := models.Alert{
		AlertID:           generateAlertID(dedupKey, now),
		CreatedAt:         now,
		UpdatedAt:         now,
		Status:            models.AlertStatusActive,
		RiskLevel:         assessment.RiskLevel,
		Confidence:        assessment.Confidence,
		LLMReasoning:      assessment.Reasoning,
		TriggerFactors:    assessment.TriggerFactors,
		RecommendedAction: assessment.RecommendedAction,
		TimeToFailure:     assessment.TimeToFailure,
		References:        assessment.References,
		Narrative:         assessment.Narrative,
		DetectionType:     detection.Type,
		SensorsAffected:   detection.SensorsAffected,
		CenterSensor:      detection.RepresentativeID,
		CenterLocation:    detection.CenterLocation,
		ResolvedLocation:  detection.ResolvedLocation,
		ZoneSnapshot:      detection.ZoneSnapshot,
		EscalationHistory: []models.EscalationEntry{
			{Timestamp: now, FromLevel: models.RiskLevelUnknown, ToLevel: assessment.RiskLevel, Reason: "Initial alert"},
		},
		ExpiresAt: now.Add(m.ttl),
	}
	return a
}

// shouldEscalate is true when new.risk_level ordinal > existing.risk_level
// ordinal, OR same level and new.confidence >= existing.confidence + 0.15.
func shouldEscalate(existing models.Alert, incoming Assessment) bool {
	if incoming.RiskLevel > existing.RiskLevel {
		return true
	}
	return incoming.RiskLevel == existing.RiskLevel && incoming.Confidence >= existing.Confidence+0.15
}

func escalate(existing models.Alert, incoming Assessment, now time.Time) models.Alert {
	updated := existing
	updated.UpdatedAt = now
	updated.RiskLevel = incoming.RiskLevel
	updated.Confidence = incoming.Confidence
	updated.LLMReasoning = incoming.Reasoning
	updated.RecommendedAction = incoming.RecommendedAction
	if incoming.Narrative != "" {
		updated.Narrative = incoming.Narrative
	}
	reason := fmt.Sprintf("Risk level increased. New confidence: %.2f", incoming.Confidence)
	if incoming.RiskLevel == existing.RiskLevel {
		reason = fmt.Sprintf("Confidence increased at the same risk level. New confidence: %.2f", incoming.Confidence)
	}
	updated.EscalationHistory = append(append([]models.EscalationEntry{}, existing.EscalationHistory...), models.EscalationEntry{
		Timestamp: now,
		FromLevel: existing.RiskLevel,
		ToLevel:   incoming.RiskLevel,
		Reason:    reason,
	})
	return updated
}

func generateAlertID(dedupKey string, now time.Time) string {
	return fmt.Sprintf("ALERT_%s_%s", now.UTC().Format("20060102_150405"), dedupKey)
}

func (m *Manager) publish(ctx context.Context, a models.Alert) {
	if m.publisher == nil {
		return
	}
	subject := fmt.Sprintf("OpenLEWS %s - %s", a.RiskLevel, a.AlertID)
	if err := m.publisher.Publish(ctx, subject, a); err != nil {
		// Publication is best-effort: logged but never rolls back the
		// alert write.
		m.logger.Warn("alert publish failed", "alert_id", a.AlertID, "error", err)
	}
}

// Expire marks alerts with updated_at + grace < now as expired. Intended
// to be called periodically by an external scheduler.
func (m *Manager) Expire(ctx context.Context, alerts []models.Alert, grace time.Duration) []models.Alert {
	now := m.clock.Now()
	var expired []models.Alert
	for _, a := range alerts {
		if a.Status == models.AlertStatusActive && a.UpdatedAt.Add(grace).Before(now) {
			a.Status = models.AlertStatusExpired
			a.UpdatedAt = now
			expired = append(expired, a)
		}
	}
	return expired
}
