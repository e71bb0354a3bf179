package feasibility

import "math"

const (
	minRecruitmentRate = 0.40
	maxRecruitmentRate = 0.95
	minCompletionRisk  = 0.10
	maxCompletionRisk  = 0.95
	minComplexity      = 1.0
	maxComplexity      = 3.0
	minSitesPerGeo     = 2
	maxSitesPerGeo     = 50
)

func clampRecruitmentRate(v float64) float64 {
	return clamp(v, minRecruitmentRate, maxRecruitmentRate)
}

func clampCompletionRisk(v float64) float64 {
	return clamp(v, minCompletionRisk, maxCompletionRisk)
}

func clampComplexity(v float64) float64 {
	return clamp(v, minComplexity, maxComplexity)
}

// clampSites keeps between 2 and 50 sites per geography.
func clampSites(sites, geographies int) int {
	if geographies < 1 {
		geographies = 1
	}
	lo, hi := minSitesPerGeo*geographies, maxSitesPerGeo*geographies
	if sites < lo {
		return lo
	}
	if sites > hi {
		return hi
	}
	return sites
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// floorDiv divides by d, never by anything smaller than floor.
func floorDiv(n, d, floor float64) float64 {
	return n / math.Max(d, floor)
}
