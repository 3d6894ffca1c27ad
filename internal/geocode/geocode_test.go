package geocode

import (
	"context"
	"testing"

	"github.com/openlews/ews/internal/models"
)

func TestCoordinatesOnlyFallbackWhenNoToken(t *testing.T) {
	c := NewClient("", 0, nil)
	got := c.Resolve(context.Background(), 6.9271, 79.8612)
	if got.ResolvedBy != "coordinates_only" {
		t.Errorf("ResolvedBy = %q, want coordinates_only", got.ResolvedBy)
	}
	if got.Label != "6.92710, 79.86120" {
		t.Errorf("Label = %q, want formatted coordinate label", got.Label)
	}
	if got.GoogleMapsURL == "" || got.GoogleMapsDirectionsURL == "" {
		t.Error("expected Google Maps URLs to be populated in the fallback")
	}
}

type countingResolver struct {
	calls int
	out   models.ResolvedLocation
}

func (r *countingResolver) Resolve(ctx context.Context, lat, lon float64) models.ResolvedLocation {
	r.calls++
	return r.out
}

func TestCachedResolverCachesGeocoderHits(t *testing.T) {
	inner := &countingResolver{out: models.ResolvedLocation{Label: "Colombo", ResolvedBy: "geocoder"}}
	cached := NewCachedResolver(inner, 10)

	cached.Resolve(context.Background(), 6.9271, 79.8612)
	cached.Resolve(context.Background(), 6.9271, 79.8612)

	if inner.calls != 1 {
		t.Errorf("expected 1 underlying call after cache hit, got %d", inner.calls)
	}
}

func TestCachedResolverDoesNotCacheFallbacks(t *testing.T) {
	inner := &countingResolver{out: models.ResolvedLocation{ResolvedBy: "coordinates_only"}}
	cached := NewCachedResolver(inner, 10)

	cached.Resolve(context.Background(), 1, 1)
	cached.Resolve(context.Background(), 1, 1)

	if inner.calls != 2 {
		t.Errorf("expected fallback responses to bypass the cache, got %d calls", inner.calls)
	}
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", models.ResolvedLocation{Label: "A"})
	c.put("b", models.ResolvedLocation{Label: "B"})
	c.get("a") // touch a, making b the LRU entry
	c.put("c", models.ResolvedLocation{Label: "C"})

	if _, ok := c.get("b"); ok {
		t.Error("expected b to have been evicted")
	}
	if _, ok := c.get("a"); !ok {
		t.Error("expected a to remain cached")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("expected c to remain cached")
	}
}
