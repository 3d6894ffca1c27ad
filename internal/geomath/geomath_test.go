package geomath

import (
	"math"
	"testing"
)

func TestHaversineSymmetryAndIdentity(t *testing.T) {
	a := [2]float64{6.85, 80.93}
	b := [2]float64{6.90, 80.95}

	if d := HaversineM(a[0], a[1], a[0], a[1]); d != 0 {
		t.Errorf("d(a,a) = %f, want 0", d)
	}

	d1 := HaversineM(a[0], a[1], b[0], b[1])
	d2 := HaversineM(b[0], b[1], a[0], a[1])
	if math.Abs(d1-d2) > 1e-9 {
		t.Errorf("HaversineM not symmetric: %f vs %f", d1, d2)
	}
}

func TestHaversineOneDegreeLongitude(t *testing.T) {
	d := HaversineM(0, 0, 0, 1)
	if math.Abs(d-111_195) > 50 {
		t.Errorf("HaversineM(0,0,0,1) = %f, want ~111195 +/-50", d)
	}
}

func TestHaversineTriangleInequality(t *testing.T) {
	a := [2]float64{6.85, 80.93}
	b := [2]float64{6.90, 80.95}
	c := [2]float64{7.10, 81.20}

	ab := HaversineM(a[0], a[1], b[0], b[1])
	bc := HaversineM(b[0], b[1], c[0], c[1])
	ac := HaversineM(a[0], a[1], c[0], c[1])

	if ac > ab+bc+1e-6 {
		t.Errorf("triangle inequality violated: ac=%f > ab+bc=%f", ac, ab+bc)
	}
}

func TestBBoxContainsInclusive(t *testing.T) {
	box := BBox{MinLat: 6.0, MinLon: 80.0, MaxLat: 7.0, MaxLon: 81.0}
	if !Contains(box, 6.0, 80.0) {
		t.Error("expected box to contain its own min corner")
	}
	if !Contains(box, 7.0, 81.0) {
		t.Error("expected box to contain its own max corner")
	}
	if Contains(box, 5.999, 80.0) {
		t.Error("expected box to reject a point just outside min lat")
	}
}

func TestOffsetMRoundTrip(t *testing.T) {
	lat, lon := 6.85, 80.93
	newLat, newLon := OffsetM(lat, lon, 1000, 1000)
	d := HaversineM(lat, lon, newLat, newLon)
	if math.Abs(d-math.Sqrt(2)*1000) > 20 {
		t.Errorf("offset distance = %f, want ~%f", d, math.Sqrt(2)*1000)
	}
}
