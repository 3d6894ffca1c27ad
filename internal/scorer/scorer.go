// Package scorer computes a deterministic, piecewise-linear weighted risk
// score per sensor. Pure function of (reading, zone snapshot) — no I/O, no
// clock reads.
package scorer

import "github.com/openlews/ews/internal/models"

const (
	weightMoisture     = 0.35
	weightTiltVelocity = 0.25
	weightVibration    = 0.15
	weightPorePressure = 0.15
	weightSafetyFactor = 0.10
)

const defaultCriticalMoisture = 40.0

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// lerp returns the piecewise-linear interpolation of v between (x0,0) and
// (x1,1), clamped to [0,1]. Monotonic and increasing in v when x1 > x0.
func lerp(v, x0, x1 float64) float64 {
	if x1 == x0 {
		if v >= x1 {
			return 1
		}
		return 0
	}
	return clamp01((v - x0) / (x1 - x0))
}

func scoreMoisture(moisturePercent, critical float64) float64 {
	return lerp(moisturePercent, 0.6*critical, critical)
}

func scoreTiltVelocity(tiltRateMMHr float64) float64 {
	if tiltRateMMHr <= 1 {
		return 0
	}
	if tiltRateMMHr <= 5 {
		return lerp(tiltRateMMHr, 1, 5) * 0.5
	}
	if tiltRateMMHr >= 10 {
		return 1
	}
	return 0.5 + lerp(tiltRateMMHr, 5, 10)*0.5
}

func scoreVibration(vibrationCount float64, baseline *float64) float64 {
	base := 1.0
	if baseline != nil && *baseline > base {
		base = *baseline
	}
	r := vibrationCount / base
	if r <= 2 {
		return 0
	}
	if r <= 5 {
		return lerp(r, 2, 5) * 0.5
	}
	if r >= 10 {
		return 1
	}
	return 0.5 + lerp(r, 5, 10)*0.5
}

func scorePorePressure(porePressureKPa float64) float64 {
	if porePressureKPa <= 0 {
		return 0
	}
	if porePressureKPa <= 5 {
		return lerp(porePressureKPa, 0, 5) * 0.5
	}
	if porePressureKPa >= 10 {
		return 1
	}
	return 0.5 + lerp(porePressureKPa, 5, 10)*0.5
}

func scoreSafetyFactor(safetyFactor float64) float64 {
	// 0 is treated as "missing" and contributes 0 rather than the max score.
	if safetyFactor == 0 {
		return 0
	}
	if safetyFactor >= 1.5 {
		return 0
	}
	if safetyFactor <= 1.0 {
		return 1
	}
	if safetyFactor >= 1.2 {
		return lerp(1.5-safetyFactor, 0, 0.3) * 0.5
	}
	return 0.5 + lerp(1.2-safetyFactor, 0, 0.2)*0.5
}

func rainfallAmplifier(rainfall24hMM *float64) float64 {
	if rainfall24hMM == nil {
		return 1.0
	}
	v := *rainfall24hMM
	switch {
	case v >= 200:
		return 1.5
	case v >= 150:
		return 1.3
	case v >= 100:
		return 1.2
	case v >= 75:
		return 1.1
	default:
		return 1.0
	}
}

// BaseRisk computes the deterministic weighted score in [0,1] for one
// reading, using criticalMoisturePercent from the enriched zone snapshot
// (or the default 40% if the reading was not enriched).
func BaseRisk(r models.Reading) float64 {
	critical := defaultCriticalMoisture
	if r.ZoneRef != nil && r.ZoneRef.CriticalMoisturePercent > 0 {
		critical = r.ZoneRef.CriticalMoisturePercent
	}

	moisture := scoreMoisture(r.MoisturePercent, critical)
	tilt := scoreTiltVelocity(r.TiltRateMMHr)
	vibration := scoreVibration(r.VibrationCount, r.VibrationBaseline)
	pore := scorePorePressure(r.PorePressureKPa)
	safety := scoreSafetyFactor(r.SafetyFactor)
	amp := rainfallAmplifier(r.Rainfall24hMM)

	weighted := weightMoisture*moisture +
		weightTiltVelocity*tilt +
		weightVibration*vibration +
		weightPorePressure*pore +
		weightSafetyFactor*safety

	return clamp01(weighted * amp)
}
