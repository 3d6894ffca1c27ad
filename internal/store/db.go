// Package store is the SQLite-backed persistence layer: readings, hazard
// zones and alerts, each behind a narrow interface so the domain packages
// never import database/sql directly.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS readings (
			sensor_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			geohash TEXT NOT NULL,
			moisture_percent REAL NOT NULL,
			tilt_x_degrees REAL NOT NULL,
			tilt_y_degrees REAL NOT NULL,
			tilt_rate_mm_hr REAL NOT NULL,
			pore_pressure_kpa REAL NOT NULL,
			vibration_count REAL NOT NULL,
			vibration_baseline REAL,
			safety_factor REAL NOT NULL,
			rainfall_24h_mm REAL,
			battery_percent REAL NOT NULL,
			temperature_c REAL NOT NULL,
			zone_ref BLOB,
			enriched INTEGER NOT NULL DEFAULT 0,
			ingested_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			PRIMARY KEY (sensor_id, ts)
		);
		CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts ON readings(sensor_id, ts);
		CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);
		CREATE INDEX IF NOT EXISTS idx_readings_expires ON readings(expires_at);

		CREATE TABLE IF NOT EXISTS hazard_zones (
			zone_id TEXT PRIMARY KEY,
			hazard_level TEXT NOT NULL,
			centroid_lat REAL NOT NULL,
			centroid_lon REAL NOT NULL,
			geohash4 TEXT NOT NULL,
			geohash6 TEXT NOT NULL,
			min_lat REAL NOT NULL,
			min_lon REAL NOT NULL,
			max_lat REAL NOT NULL,
			max_lon REAL NOT NULL,
			district TEXT,
			ds_division TEXT,
			gn_division TEXT,
			soil_type TEXT,
			land_use TEXT,
			landslide_type TEXT,
			area_sq_m REAL,
			version INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_hazard_zones_geohash4 ON hazard_zones(geohash4);

		CREATE TABLE IF NOT EXISTS alerts (
			alert_id TEXT PRIMARY KEY,
			dedup_key TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			status TEXT NOT NULL,
			risk_level INTEGER NOT NULL,
			confidence REAL NOT NULL,
			llm_reasoning TEXT,
			trigger_factors BLOB,
			recommended_action TEXT,
			time_to_failure TEXT,
			"references" BLOB,
			narrative TEXT,
			detection_type TEXT NOT NULL,
			sensors_affected BLOB,
			center_sensor TEXT,
			center_lat REAL,
			center_lon REAL,
			resolved_location BLOB,
			zone_snapshot BLOB,
			escalation_history BLOB,
			expires_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_dedup_key ON alerts(dedup_key, status, updated_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}
