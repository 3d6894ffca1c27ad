// Package fusion implements spatial correlation across neighbouring
// sensors and single-linkage cluster extraction over the current
// detection run's SensorAnalyses.
package fusion

import (
	"sort"

	"github.com/openlews/ews/internal/geomath"
	"github.com/openlews/ews/internal/models"
)

type Config struct {
	CorrelationRadiusM float64
	ClusterRadiusM     float64
	MinClusterSize     int
	RiskThreshold      float64
}

func DefaultConfig() Config {
	return Config{
		CorrelationRadiusM: 50,
		ClusterRadiusM:     50,
		MinClusterSize:     3,
		RiskThreshold:      0.6,
	}
}

// Correlate computes SpatialCorrelation and CompositeRisk for every
// analysis in place, using each analysis's Reading coordinates and
// BaseRisk (which must already be populated by the scorer).
func Correlate(analyses []models.SensorAnalysis, cfg Config) {
	for i := range analyses {
		a := &analyses[i]

		var neighbours []int
		for j := range analyses {
			if i == j {
				continue
			}
			b := &analyses[j]
			d := geomath.HaversineM(a.Reading.Latitude, a.Reading.Longitude, b.Reading.Latitude, b.Reading.Longitude)
			if d <= cfg.CorrelationRadiusM {
				neighbours = append(neighbours, j)
			}
		}

		a.NeighbourIDs = make([]string, 0, len(neighbours))
		for _, j := range neighbours {
			a.NeighbourIDs = append(a.NeighbourIDs, analyses[j].SensorID)
		}

		if len(neighbours) == 0 {
			a.SpatialCorrelation = 0.5
		} else {
			agree := 0
			for _, j := range neighbours {
				if abs(analyses[j].BaseRisk-a.BaseRisk) <= 0.2 {
					agree++
				}
			}
			a.SpatialCorrelation = float64(agree) / float64(len(neighbours))
		}

		multiplier := 1.0
		switch {
		case a.SpatialCorrelation > 0.6:
			multiplier = 1.3
		case a.SpatialCorrelation < 0.3:
			multiplier = 0.5
		}
		a.CompositeRisk = clamp01(a.BaseRisk * multiplier)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DetectClusters groups sensors at or above cfg.RiskThreshold by
// geographic proximity using single-linkage within cfg.ClusterRadiusM,
// emitting a Cluster for each connected component of size >=
// cfg.MinClusterSize. Output is invariant to input ordering.
func DetectClusters(analyses []models.SensorAnalysis, cfg Config) []models.Cluster {
	eligible := make([]models.SensorAnalysis, 0, len(analyses))
	for _, a := range analyses {
		if a.CompositeRisk >= cfg.RiskThreshold {
			eligible = append(eligible, a)
		}
	}
	// Sort by sensor_id first so the union-find below is deterministic
	// regardless of input order, then the emitted members are ordered by
	// descending composite_risk as required.
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].SensorID < eligible[j].SensorID })

	n := len(eligible)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := geomath.HaversineM(
				eligible[i].Reading.Latitude, eligible[i].Reading.Longitude,
				eligible[j].Reading.Latitude, eligible[j].Reading.Longitude,
			)
			if d <= cfg.ClusterRadiusM {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	var clusters []models.Cluster
	// Iterate in deterministic root order so output ordering doesn't
	// depend on map iteration.
	roots := make([]int, 0, len(groups))
	for r := range groups {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	for _, r := range roots {
		members := groups[r]
		if len(members) < cfg.MinClusterSize {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return eligible[members[i]].CompositeRisk > eligible[members[j]].CompositeRisk
		})

		var sumLat, sumLon, sumRisk, maxRisk float64
		ids := make([]string, 0, len(members))
		for _, idx := range members {
			a := eligible[idx]
			sumLat += a.Reading.Latitude
			sumLon += a.Reading.Longitude
			sumRisk += a.CompositeRisk
			if a.CompositeRisk > maxRisk {
				maxRisk = a.CompositeRisk
			}
			ids = append(ids, a.SensorID)
		}
		count := float64(len(members))
		clusters = append(clusters, models.Cluster{
			MemberIDs:        ids,
			CentroidLat:      sumLat / count,
			CentroidLon:      sumLon / count,
			AvgCompositeRisk: sumRisk / count,
			MaxCompositeRisk: maxRisk,
		})
	}

	return clusters
}
