package commercial

import "math"

const (
	MinROI = 0.5
	MaxROI = 10.0

	minRiskFactor = 0.2
	maxRiskFactor = 1.0
)

// ClampROI bounds a projected return on investment to [0.5, 10].
func ClampROI(v float64) float64 { return clamp(v, MinROI, MaxROI) }

// ClampRiskFactor bounds the eNPV risk adjustment to [0.2, 1].
func ClampRiskFactor(v float64) float64 { return clamp(v, minRiskFactor, maxRiskFactor) }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
