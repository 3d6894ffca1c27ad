package enrich

import (
	"context"
	"testing"

	"github.com/openlews/ews/internal/models"
)

type fakeZoneLookup struct {
	zones []models.HazardZone
	calls int
}

func (f *fakeZoneLookup) ZonesNear(ctx context.Context, lat, lon float64) ([]models.HazardZone, error) {
	f.calls++
	return f.zones, nil
}

func baseReading() models.Reading {
	return models.Reading{SensorID: "S1", Geohash: "tc1xyz", Latitude: 6.85, Longitude: 80.93}
}

func TestEnrichPicksHighestHazardAmongContaining(t *testing.T) {
	low := models.HazardZone{ZoneID: "LOW", HazardLevel: models.HazardLow, SoilType: "Fill",
		BoundingBox: models.BoundingBox{MinLat: 6.8, MinLon: 80.9, MaxLat: 6.9, MaxLon: 81.0}}
	high := models.HazardZone{ZoneID: "HIGH", HazardLevel: models.HazardHigh, SoilType: "Colluvium",
		BoundingBox: models.BoundingBox{MinLat: 6.8, MinLon: 80.9, MaxLat: 6.9, MaxLon: 81.0}}
	lookup := &fakeZoneLookup{zones: []models.HazardZone{low, high}}
	e := NewEnricher(lookup, true, nil)

	r, err := e.Enrich(context.Background(), NewRunContext(), baseReading())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Enriched || r.ZoneRef == nil || r.ZoneRef.ZoneID != "HIGH" {
		t.Fatalf("expected HIGH zone, got %+v", r.ZoneRef)
	}
}

func TestEnrichCachesPerRun(t *testing.T) {
	lookup := &fakeZoneLookup{}
	e := NewEnricher(lookup, true, nil)
	run := NewRunContext()

	_, _ = e.Enrich(context.Background(), run, baseReading())
	_, _ = e.Enrich(context.Background(), run, baseReading())

	if lookup.calls != 1 {
		t.Errorf("expected 1 lookup call across both readings in the same run, got %d", lookup.calls)
	}
}

func TestEnrichDisabledSkipsSilently(t *testing.T) {
	lookup := &fakeZoneLookup{zones: []models.HazardZone{{ZoneID: "Z"}}}
	e := NewEnricher(lookup, false, nil)

	r, err := e.Enrich(context.Background(), NewRunContext(), baseReading())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Enriched || lookup.calls != 0 {
		t.Errorf("expected no lookup and no enrichment when disabled, got enriched=%v calls=%d", r.Enriched, lookup.calls)
	}
}

func TestEnrichFallsBackToClosestWhenNoneContain(t *testing.T) {
	near := models.HazardZone{ZoneID: "NEAR", HazardLevel: models.HazardLow,
		CentroidLat: 6.86, CentroidLon: 80.94,
		BoundingBox: models.BoundingBox{MinLat: 10, MinLon: 10, MaxLat: 11, MaxLon: 11}}
	far := models.HazardZone{ZoneID: "FAR", HazardLevel: models.HazardVeryHigh,
		CentroidLat: 20, CentroidLon: 20,
		BoundingBox: models.BoundingBox{MinLat: 19, MinLon: 19, MaxLat: 21, MaxLon: 21}}
	lookup := &fakeZoneLookup{zones: []models.HazardZone{near, far}}
	e := NewEnricher(lookup, true, nil)

	r, err := e.Enrich(context.Background(), NewRunContext(), baseReading())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ZoneRef == nil || r.ZoneRef.ZoneID != "NEAR" {
		t.Fatalf("expected fallback to nearest zone NEAR, got %+v", r.ZoneRef)
	}
}

// TestEnrichFindsZoneAcrossCellBoundary exercises the review-flagged gap:
// a reading sitting right at a geohash4 cell boundary must still enrich
// from a zone registered in the neighbouring cell, which only a
// neighbourhood-expanding lookup (not a bare single-cell FindByGeohash4)
// can surface.
func TestEnrichFindsZoneAcrossCellBoundary(t *testing.T) {
	acrossBoundary := models.HazardZone{ZoneID: "NEIGHBOUR_CELL_ZONE", HazardLevel: models.HazardModerate,
		CentroidLat: 6.85, CentroidLon: 80.93,
		BoundingBox: models.BoundingBox{MinLat: 6.84, MinLon: 80.92, MaxLat: 6.86, MaxLon: 80.94}}
	// A ZoneLookup is expected to already fold neighbouring cells into its
	// result; the fake simulates that by returning the zone regardless of
	// which single cell the reading's geohash prefix would have hashed to.
	lookup := &fakeZoneLookup{zones: []models.HazardZone{acrossBoundary}}
	e := NewEnricher(lookup, true, nil)

	r, err := e.Enrich(context.Background(), NewRunContext(), baseReading())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ZoneRef == nil || r.ZoneRef.ZoneID != "NEIGHBOUR_CELL_ZONE" {
		t.Fatalf("expected enrichment to find the neighbouring-cell zone, got %+v", r.ZoneRef)
	}
}

// TestEnrichThreadsHazardDefaultsIntoCriticalMoisture exercises the
// review-flagged gap where ingest-time enrichment ignored any
// operator-configured soil baseline and always used the built-in table.
func TestEnrichThreadsHazardDefaultsIntoCriticalMoisture(t *testing.T) {
	zone := models.HazardZone{ZoneID: "Z1", HazardLevel: models.HazardModerate, SoilType: "CustomSoil",
		BoundingBox: models.BoundingBox{MinLat: 6.8, MinLon: 80.9, MaxLat: 6.9, MaxLon: 81.0}}
	lookup := &fakeZoneLookup{zones: []models.HazardZone{zone}}
	e := NewEnricher(lookup, true, map[string]float64{"CustomSoil": 60})

	r, err := e.Enrich(context.Background(), NewRunContext(), baseReading())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// HazardModerate adjustment is 0, so the operator-supplied 60 baseline
	// should come through unchanged rather than the built-in default table's
	// value for an unrecognized soil type.
	if r.ZoneRef == nil || r.ZoneRef.CriticalMoisturePercent != 60 {
		t.Fatalf("expected CriticalMoisturePercent = 60 from hazardDefaults, got %+v", r.ZoneRef)
	}
}
