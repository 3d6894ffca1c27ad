package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/openlews/ews/internal/models"
	"github.com/openlews/ews/internal/openlewserr"
)

// ReadingWriteResult reports per-batch outcome so the ingest handler can
// build its statistics payload without a second round trip.
type ReadingWriteResult struct {
	Written int
	Failed  []IndexedError
}

type IndexedError struct {
	Index int
	Error error
}

// PutBatch persists readings one at a time inside a single transaction,
// collecting per-row failures instead of aborting the whole batch: a
// failing row must not drop the rest of the batch. A reading whose
// (sensor_id, ts) is already stored replaces the stored row.
func (db *DB) PutBatch(ctx context.Context, readings []models.Reading) (ReadingWriteResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return ReadingWriteResult{}, openlewserr.Wrap(openlewserr.KindStorageTransient, "begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO readings (
			sensor_id, ts, latitude, longitude, geohash,
			moisture_percent, tilt_x_degrees, tilt_y_degrees, tilt_rate_mm_hr,
			pore_pressure_kpa, vibration_count, vibration_baseline, safety_factor,
			rainfall_24h_mm, battery_percent, temperature_c, zone_ref, enriched,
			ingested_at, expires_at
		) VALUES (?,?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?,?,?, ?,?)
	`)
	if err != nil {
		return ReadingWriteResult{}, openlewserr.Wrap(openlewserr.KindStorageTransient, "prepare insert", err)
	}
	defer stmt.Close()

	var result ReadingWriteResult
	for i, r := range readings {
		var zoneRef []byte
		if r.ZoneRef != nil {
			zoneRef, _ = json.Marshal(r.ZoneRef)
		}
		_, err := stmt.ExecContext(ctx,
			r.SensorID, r.Timestamp, r.Latitude, r.Longitude, r.Geohash,
			r.MoisturePercent, r.TiltXDegrees, r.TiltYDegrees, r.TiltRateMMHr,
			r.PorePressureKPa, r.VibrationCount, r.VibrationBaseline, r.SafetyFactor,
			r.Rainfall24hMM, r.BatteryPercent, r.TemperatureC, zoneRef, r.Enriched,
			r.IngestedAt, r.ExpiresAt,
		)
		if err != nil {
			result.Failed = append(result.Failed, IndexedError{Index: i, Error: err})
			continue
		}
		result.Written++
	}

	if err := tx.Commit(); err != nil {
		return ReadingWriteResult{}, openlewserr.Wrap(openlewserr.KindStorageTransient, "commit tx", err)
	}
	return result, nil
}

const readingColumns = `sensor_id, ts, latitude, longitude, geohash,
	moisture_percent, tilt_x_degrees, tilt_y_degrees, tilt_rate_mm_hr,
	pore_pressure_kpa, vibration_count, vibration_baseline, safety_factor,
	rainfall_24h_mm, battery_percent, temperature_c, zone_ref, enriched,
	ingested_at, expires_at`

func scanReading(rows *sql.Rows) (models.Reading, error) {
	var r models.Reading
	var zoneRef []byte
	if err := rows.Scan(
		&r.SensorID, &r.Timestamp, &r.Latitude, &r.Longitude, &r.Geohash,
		&r.MoisturePercent, &r.TiltXDegrees, &r.TiltYDegrees, &r.TiltRateMMHr,
		&r.PorePressureKPa, &r.VibrationCount, &r.VibrationBaseline, &r.SafetyFactor,
		&r.Rainfall24hMM, &r.BatteryPercent, &r.TemperatureC, &zoneRef, &r.Enriched,
		&r.IngestedAt, &r.ExpiresAt,
	); err != nil {
		return models.Reading{}, err
	}
	if len(zoneRef) > 0 {
		var zr models.HazardZoneSnapshot
		if err := json.Unmarshal(zoneRef, &zr); err == nil {
			r.ZoneRef = &zr
		}
	}
	return r, nil
}

// QueryByTime returns every reading with ts in [since, until], per the
// detection window fetch.
func (db *DB) QueryByTime(ctx context.Context, since, until int64) ([]models.Reading, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+readingColumns+` FROM readings WHERE ts >= ? AND ts <= ? ORDER BY sensor_id, ts`, since, until)
	if err != nil {
		return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "query by time", err)
	}
	defer rows.Close()

	var out []models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "scan reading", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestPerSensor collapses the window to one reading per sensor_id, taking
// the highest ts per sensor, matching the detection orchestrator's
// collapse-to-latest step.
func (db *DB) LatestPerSensor(ctx context.Context, since, until int64) ([]models.Reading, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM readings r
		WHERE ts >= ? AND ts <= ?
		AND ts = (SELECT MAX(ts) FROM readings WHERE sensor_id = r.sensor_id AND ts >= ? AND ts <= ?)
		ORDER BY sensor_id
	`, since, until, since, until)
	if err != nil {
		return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "query latest per sensor", err)
	}
	defer rows.Close()

	var out []models.Reading
	seen := make(map[string]bool)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "scan reading", err)
		}
		if seen[r.SensorID] {
			continue // duplicate ts ties: first row wins, deterministic by scan order
		}
		seen[r.SensorID] = true
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) PurgeExpired(ctx context.Context, now int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM readings WHERE expires_at < datetime(?, 'unixepoch')`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired readings: %w", err)
	}
	return res.RowsAffected()
}
