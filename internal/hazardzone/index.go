// Package hazardzone implements the RAG (hazard-zone) query service: a
// geohash-indexed nearest-zone and radius lookup with polygon-neighbour
// expansion and Haversine ranking, plus critical-moisture derivation.
package hazardzone

import (
	"context"
	"sort"

	"github.com/openlews/ews/internal/geohash"
	"github.com/openlews/ews/internal/geomath"
	"github.com/openlews/ews/internal/models"
	"github.com/openlews/ews/internal/openlewserr"
)

// Store is the hazard-zone store interface expected from the KV layer. The
// core never writes zones; they're populated by an external loader.
type Store interface {
	FindByGeohash4(ctx context.Context, cell string) ([]models.HazardZone, error)
}

type Index struct {
	store Store
}

func NewIndex(store Store) *Index {
	return &Index{store: store}
}

const defaultCriticalMoisture = 40.0

var hazardRank = map[models.HazardLevel]int{
	models.HazardUnknown:  0,
	models.HazardLow:      1,
	models.HazardModerate: 2,
	models.HazardHigh:     3,
	models.HazardVeryHigh: 4,
}

type candidate struct {
	zone     models.HazardZone
	distance float64
}

func (idx *Index) candidates(ctx context.Context, lat, lon float64) ([]candidate, error) {
	cell4 := geohash.Encode(lat, lon, 4)
	cells := geohash.Neighbours8(cell4)

	seen := make(map[string]struct{})
	var out []candidate
	for _, c := range cells {
		zones, err := idx.store.FindByGeohash4(ctx, c)
		if err != nil {
			return nil, openlewserr.Wrap(openlewserr.KindRagUnavailable, "find_by_geohash4 failed", err)
		}
		for _, z := range zones {
			if _, dup := seen[z.ZoneID]; dup {
				continue
			}
			seen[z.ZoneID] = struct{}{}

			var d float64
			if geomath.Contains(geomath.BBox(z.BoundingBox), lat, lon) {
				d = 0
			} else {
				d = geomath.HaversineM(lat, lon, z.CentroidLat, z.CentroidLon)
			}
			out = append(out, candidate{zone: z, distance: d})
		}
	}
	return out, nil
}

// ZonesNear returns every zone in the geohash4 cell neighbourhood around
// lat/lon (the cell itself and its 8 neighbours), deduplicated, with no
// distance filtering. This is the shared neighbourhood-expanding lookup
// Nearest, WithinRadius, and enrichment are all built on, so a point near a
// geohash4 cell boundary still finds a zone registered in the adjacent
// cell.
func (idx *Index) ZonesNear(ctx context.Context, lat, lon float64) ([]models.HazardZone, error) {
	candidates, err := idx.candidates(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	zones := make([]models.HazardZone, len(candidates))
	for i, c := range candidates {
		zones[i] = c.zone
	}
	return zones, nil
}

// Nearest returns the nearest zone within maxKM, or nil if none qualifies.
// Ties are broken by higher hazard_level.
func (idx *Index) Nearest(ctx context.Context, lat, lon, maxKM float64) (*models.HazardZone, error) {
	candidates, err := idx.candidates(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	maxM := maxKM * 1000
	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if c.distance > maxM {
			continue
		}
		if best == nil || c.distance < best.distance ||
			(c.distance == best.distance && hazardRank[c.zone.HazardLevel] > hazardRank[best.zone.HazardLevel]) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	z := best.zone
	return &z, nil
}

// RadiusResult is the sorted-by-distance survivor list plus a hazard-level
// histogram summary.
type RadiusResult struct {
	Zones   []models.HazardZone
	Count   int
	Summary map[models.HazardLevel]int
}

// WithinRadius returns all zones within km, sorted ascending by distance.
func (idx *Index) WithinRadius(ctx context.Context, lat, lon, km float64) (*RadiusResult, error) {
	candidates, err := idx.candidates(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	maxM := km * 1000
	var survivors []candidate
	for _, c := range candidates {
		if c.distance <= maxM {
			survivors = append(survivors, c)
		}
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].distance < survivors[j].distance })

	result := &RadiusResult{Summary: make(map[models.HazardLevel]int)}
	for _, c := range survivors {
		result.Zones = append(result.Zones, c.zone)
		result.Summary[c.zone.HazardLevel]++
	}
	result.Count = len(result.Zones)
	return result, nil
}

var soilBaselineCriticalMoisture = map[string]float64{
	"Colluvium": 35,
	"Residual":  45,
	"Fill":      30,
	"Bedrock":   60,
}

var hazardLevelAdjustment = map[models.HazardLevel]float64{
	models.HazardVeryHigh: -5,
	models.HazardHigh:     -2,
	models.HazardModerate: 0,
	models.HazardLow:      5,
	models.HazardUnknown:  0,
}

// CriticalMoisture derives the site-specific critical-moisture percentage
// from soil-type baseline (falling back to defaults, which may be
// operator-supplied) adjusted by hazard level, clamped to [20,80].
func CriticalMoisture(zone models.HazardZone, defaults map[string]float64) float64 {
	baseline, ok := defaults[zone.SoilType]
	if !ok {
		baseline, ok = soilBaselineCriticalMoisture[zone.SoilType]
	}
	if !ok {
		baseline = defaultCriticalMoisture
	}

	adjusted := baseline + hazardLevelAdjustment[zone.HazardLevel]
	if adjusted < 20 {
		adjusted = 20
	}
	if adjusted > 80 {
		adjusted = 80
	}
	return adjusted
}
