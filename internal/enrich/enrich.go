// Package enrich attaches the highest-severity containing (or nearest)
// hazard zone's metadata to a Reading, coalescing per-cell lookups within a
// single run via RunContext.
package enrich

import (
	"context"

	"github.com/openlews/ews/internal/geomath"
	"github.com/openlews/ews/internal/hazardzone"
	"github.com/openlews/ews/internal/models"
)

// RunContext carries the per-run geohash4 -> []Zone cache. It is discarded
// at run end; there is no process-level memoisation. Enrich reads and
// writes the map directly without locking, so a RunContext must not be
// shared by goroutines running concurrently.
type RunContext struct {
	cache map[string][]models.HazardZone
}

func NewRunContext() *RunContext {
	return &RunContext{cache: make(map[string][]models.HazardZone)}
}

// ZoneLookup is the neighbourhood-expanding lookup the enricher needs: the
// geohash4 cell around a point plus its 8 neighbours, so a zone registered
// just across a cell boundary is still found. Satisfied by
// *hazardzone.Index.
type ZoneLookup interface {
	ZonesNear(ctx context.Context, lat, lon float64) ([]models.HazardZone, error)
}

type Enricher struct {
	zones          ZoneLookup
	enabled        bool
	hazardDefaults map[string]float64
}

// NewEnricher builds an Enricher against zones, the neighbourhood-expanding
// zone lookup. hazardDefaults is the operator-configured soil-type baseline
// table passed straight through to hazardzone.CriticalMoisture, matching
// what internal/detect threads through for the same zone at detect time —
// ingest-time CriticalMoisturePercent and detect-time CriticalMoisture must
// agree on the same baseline table.
func NewEnricher(zones ZoneLookup, enabled bool, hazardDefaults map[string]float64) *Enricher {
	return &Enricher{zones: zones, enabled: enabled, hazardDefaults: hazardDefaults}
}

var hazardRank = map[models.HazardLevel]int{
	models.HazardUnknown:  0,
	models.HazardLow:      1,
	models.HazardModerate: 2,
	models.HazardHigh:     3,
	models.HazardVeryHigh: 4,
}

// Enrich computes geohash4 = reading.Geohash[:4], fetches (and caches per
// run) the candidate zone list for that cell, and attaches the zone with
// the highest hazard_level among those whose bounding box contains the
// reading's coordinates; if none contain it, falls back to the closest by
// centroid. If enrichment is disabled, returns the reading unchanged.
func (e *Enricher) Enrich(ctx context.Context, run *RunContext, reading models.Reading) (models.Reading, error) {
	if !e.enabled {
		return reading, nil
	}

	geohash4 := reading.Geohash
	if len(geohash4) > 4 {
		geohash4 = geohash4[:4]
	}

	zones, ok := run.cache[geohash4]
	if !ok {
		var err error
		zones, err = e.zones.ZonesNear(ctx, reading.Latitude, reading.Longitude)
		if err != nil {
			// Best-effort: a storage error skips enrichment but keeps the
			// reading, per the ingest orchestrator's failure-isolation rule.
			return reading, err
		}
		run.cache[geohash4] = zones
	}

	if len(zones) == 0 {
		return reading, nil
	}

	var containing []models.HazardZone
	for _, z := range zones {
		if geomath.Contains(geomath.BBox(z.BoundingBox), reading.Latitude, reading.Longitude) {
			containing = append(containing, z)
		}
	}

	pool := containing
	if len(pool) == 0 {
		pool = zones
	}

	best := pickBest(pool, reading.Latitude, reading.Longitude, len(containing) == 0)
	if best == nil {
		return reading, nil
	}

	reading.ZoneRef = &models.HazardZoneSnapshot{
		ZoneID:                  best.ZoneID,
		HazardLevel:             best.HazardLevel,
		SoilType:                best.SoilType,
		CriticalMoisturePercent: hazardzone.CriticalMoisture(*best, e.hazardDefaults),
	}
	reading.Enriched = true
	return reading, nil
}

// pickBest selects the highest hazard_level zone in pool; ties broken by
// smallest Haversine distance to (lat, lon). When byDistance is true (no
// containing zone found), the selection is distance-first: nearest wins,
// ties broken by hazard_level, matching the "fall back to the closest by
// centroid" rule.
func pickBest(pool []models.HazardZone, lat, lon float64, byDistance bool) *models.HazardZone {
	if len(pool) == 0 {
		return nil
	}

	var best *models.HazardZone
	bestDist := 0.0
	for i := range pool {
		z := &pool[i]
		d := 0.0
		if !geomath.Contains(geomath.BBox(z.BoundingBox), lat, lon) {
			d = geomath.HaversineM(lat, lon, z.CentroidLat, z.CentroidLon)
		}

		if best == nil {
			best = z
			bestDist = d
			continue
		}

		if byDistance {
			if d < bestDist || (d == bestDist && hazardRank[z.HazardLevel] > hazardRank[best.HazardLevel]) {
				best = z
				bestDist = d
			}
		} else {
			if hazardRank[z.HazardLevel] > hazardRank[best.HazardLevel] ||
				(hazardRank[z.HazardLevel] == hazardRank[best.HazardLevel] && d < bestDist) {
				best = z
				bestDist = d
			}
		}
	}
	return best
}
