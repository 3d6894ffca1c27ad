package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/openlews/ews/internal/models"
	"github.com/openlews/ews/internal/openlewserr"
)

// GetActiveByPrefix implements alert.Store: the most recently updated
// active alert whose dedup_key matches and which was updated within the
// window, or nil.
func (db *DB) GetActiveByPrefix(ctx context.Context, dedupKey string, within time.Duration) (*models.Alert, error) {
	cutoff := time.Now().Add(-within)
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE dedup_key = ? AND status = ? AND updated_at >= ?
		ORDER BY updated_at DESC LIMIT 1
	`, dedupKey, string(models.AlertStatusActive), cutoff)

	a, err := scanAlertRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "get active alert by prefix", err)
	}
	return &a, nil
}

const alertColumns = `alert_id, dedup_key, created_at, updated_at, status, risk_level, confidence,
	llm_reasoning, trigger_factors, recommended_action, time_to_failure, "references", narrative,
	detection_type, sensors_affected, center_sensor, center_lat, center_lon,
	resolved_location, zone_snapshot, escalation_history, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlertRow(row rowScanner) (models.Alert, error) {
	var a models.Alert
	var status, detectionType, recommendedAction, timeToFailure string
	var triggerFactors, references, sensorsAffected, resolvedLocation, zoneSnapshot, escalationHistory []byte
	var centerLat, centerLon sql.NullFloat64

	err := row.Scan(
		&a.AlertID, new(string), &a.CreatedAt, &a.UpdatedAt, &status, &a.RiskLevel, &a.Confidence,
		&a.LLMReasoning, &triggerFactors, &recommendedAction, &timeToFailure, &references, &a.Narrative,
		&detectionType, &sensorsAffected, &a.CenterSensor, &centerLat, &centerLon,
		&resolvedLocation, &zoneSnapshot, &escalationHistory, &a.ExpiresAt,
	)
	if err != nil {
		return models.Alert{}, err
	}

	a.Status = models.AlertStatus(status)
	a.DetectionType = models.DetectionType(detectionType)
	a.RecommendedAction = models.RecommendedAction(recommendedAction)
	a.TimeToFailure = models.TimeToFailure(timeToFailure)
	a.CenterLocation = models.Coordinates{Lat: centerLat.Float64, Lon: centerLon.Float64}

	_ = json.Unmarshal(triggerFactors, &a.TriggerFactors)
	_ = json.Unmarshal(references, &a.References)
	_ = json.Unmarshal(sensorsAffected, &a.SensorsAffected)
	_ = json.Unmarshal(escalationHistory, &a.EscalationHistory)
	if len(resolvedLocation) > 0 {
		var rl models.ResolvedLocation
		if json.Unmarshal(resolvedLocation, &rl) == nil {
			a.ResolvedLocation = &rl
		}
	}
	if len(zoneSnapshot) > 0 {
		var zs models.HazardZoneSnapshot
		if json.Unmarshal(zoneSnapshot, &zs) == nil {
			a.ZoneSnapshot = &zs
		}
	}
	return a, nil
}

// UpsertAlert writes an alert conditionally: a fresh alert_id inserts
// unconditionally, but an update against an existing alert_id only takes
// effect when the stored risk_level ordinal is <= the incoming one, so two
// overlapping detection runs racing on a read-modify-write cycle can never
// regress an alert's risk_level. When the condition fails, RowsAffected is
// 0 and the write is reported back as a StorageConflict for the caller
// (alert.Manager) to retry with a fresh read.
func (db *DB) UpsertAlert(ctx context.Context, a models.Alert) error {
	triggerFactors, _ := json.Marshal(a.TriggerFactors)
	references, _ := json.Marshal(a.References)
	sensorsAffected, _ := json.Marshal(a.SensorsAffected)
	escalationHistory, _ := json.Marshal(a.EscalationHistory)

	var resolvedLocation, zoneSnapshot []byte
	if a.ResolvedLocation != nil {
		resolvedLocation, _ = json.Marshal(a.ResolvedLocation)
	}
	if a.ZoneSnapshot != nil {
		zoneSnapshot, _ = json.Marshal(a.ZoneSnapshot)
	}

	dedupKey := models.DedupKey(a.DetectionType, a.CenterSensor)

	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?,?,?,?,?,?,?, ?,?,?,?,?,?, ?,?,?,?,?, ?,?,?,?)
		ON CONFLICT(alert_id) DO UPDATE SET
			dedup_key = excluded.dedup_key,
			updated_at = excluded.updated_at,
			status = excluded.status,
			risk_level = excluded.risk_level,
			confidence = excluded.confidence,
			llm_reasoning = excluded.llm_reasoning,
			trigger_factors = excluded.trigger_factors,
			recommended_action = excluded.recommended_action,
			time_to_failure = excluded.time_to_failure,
			"references" = excluded."references",
			narrative = excluded.narrative,
			detection_type = excluded.detection_type,
			sensors_affected = excluded.sensors_affected,
			center_sensor = excluded.center_sensor,
			center_lat = excluded.center_lat,
			center_lon = excluded.center_lon,
			resolved_location = excluded.resolved_location,
			zone_snapshot = excluded.zone_snapshot,
			escalation_history = excluded.escalation_history,
			expires_at = excluded.expires_at
		WHERE alerts.risk_level <= excluded.risk_level
	`,
		a.AlertID, dedupKey, a.CreatedAt, a.UpdatedAt, string(a.Status), a.RiskLevel, a.Confidence,
		a.LLMReasoning, triggerFactors, string(a.RecommendedAction), string(a.TimeToFailure), references, a.Narrative,
		string(a.DetectionType), sensorsAffected, a.CenterSensor, a.CenterLocation.Lat, a.CenterLocation.Lon,
		resolvedLocation, zoneSnapshot, escalationHistory, a.ExpiresAt,
	)
	if err != nil {
		return openlewserr.Wrap(openlewserr.KindStorageTransient, "upsert alert", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return openlewserr.Wrap(openlewserr.KindStorageTransient, "upsert alert: read rows affected", err)
	}
	if affected == 0 {
		return openlewserr.New(openlewserr.KindStorageConflict,
			"upsert alert "+a.AlertID+" rejected: stored risk_level already exceeds the incoming write")
	}
	return nil
}

// ListActive returns every alert currently marked active, for the
// expiration sweep.
func (db *DB) ListActive(ctx context.Context) ([]models.Alert, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE status = ?`, string(models.AlertStatusActive))
	if err != nil {
		return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "list active alerts", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "scan alert", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
