package store

import (
	"context"
	"database/sql"

	"github.com/openlews/ews/internal/models"
	"github.com/openlews/ews/internal/openlewserr"
)

const hazardZoneColumns = `zone_id, hazard_level, centroid_lat, centroid_lon, geohash4, geohash6,
	min_lat, min_lon, max_lat, max_lon, district, ds_division, gn_division,
	soil_type, land_use, landslide_type, area_sq_m, version`

func scanHazardZone(rows *sql.Rows) (models.HazardZone, error) {
	var z models.HazardZone
	var hazardLevel string
	if err := rows.Scan(
		&z.ZoneID, &hazardLevel, &z.CentroidLat, &z.CentroidLon, &z.Geohash4, &z.Geohash6,
		&z.BoundingBox.MinLat, &z.BoundingBox.MinLon, &z.BoundingBox.MaxLat, &z.BoundingBox.MaxLon,
		&z.District, &z.DSDivision, &z.GNDivision,
		&z.SoilType, &z.LandUse, &z.LandslideType, &z.AreaSqM, &z.Version,
	); err != nil {
		return models.HazardZone{}, err
	}
	z.HazardLevel = models.ParseHazardLevel(hazardLevel)
	return z, nil
}

// FindByGeohash4 implements hazardzone.Store: every zone whose geohash4
// prefix matches cell, the candidate set the index expands with neighbours.
func (db *DB) FindByGeohash4(ctx context.Context, cell string) ([]models.HazardZone, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+hazardZoneColumns+` FROM hazard_zones WHERE geohash4 = ?`, cell)
	if err != nil {
		return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "find zones by geohash4", err)
	}
	defer rows.Close()

	var out []models.HazardZone
	for rows.Next() {
		z, err := scanHazardZone(rows)
		if err != nil {
			return nil, openlewserr.Wrap(openlewserr.KindStorageTransient, "scan hazard zone", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// LoadZones bulk-upserts the hazard zone polygons' index projection; called
// by an external loader job, never by the detection or ingest path.
func (db *DB) LoadZones(ctx context.Context, zones []models.HazardZone) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return openlewserr.Wrap(openlewserr.KindStorageTransient, "begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO hazard_zones (`+hazardZoneColumns+`)
		VALUES (?,?,?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?,?,?)
	`)
	if err != nil {
		return openlewserr.Wrap(openlewserr.KindStorageTransient, "prepare insert", err)
	}
	defer stmt.Close()

	for _, z := range zones {
		_, err := stmt.ExecContext(ctx,
			z.ZoneID, z.HazardLevel.String(), z.CentroidLat, z.CentroidLon, z.Geohash4, z.Geohash6,
			z.BoundingBox.MinLat, z.BoundingBox.MinLon, z.BoundingBox.MaxLat, z.BoundingBox.MaxLon,
			z.District, z.DSDivision, z.GNDivision,
			z.SoilType, z.LandUse, z.LandslideType, z.AreaSqM, z.Version,
		)
		if err != nil {
			return openlewserr.Wrap(openlewserr.KindStorageTransient, "upsert hazard zone "+z.ZoneID, err)
		}
	}
	return tx.Commit()
}
