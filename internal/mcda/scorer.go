// Package mcda turns a feasibility assessment into a four-dimension weighted
// score and a proceed/revise/stop recommendation.
package mcda

import (
	"fmt"
	"math"
	"strings"

	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/feasibility"
)

const (
	minScore = 1.0
	maxScore = 5.0

	stopROI          = 1.0
	reviseROI        = 1.5
	reviseNPVUSD     = 25e6
	reviseWindowMths = 12.0

	picoDetailChars     = 20
	outcomesDetailChars = 50
	goalBonusCap        = 1.0
)

var clinicalGoalBonus = map[concept.Goal]float64{
	concept.GoalClinicalGuideline:   0.6,
	concept.GoalInitialApproval:     0.5,
	concept.GoalLabelExpansion:      0.4,
	concept.GoalRealWorldEvidence:   0.3,
	concept.GoalBiomarkerValidation: 0.3,
	concept.GoalAccelerateUptake:    0.2,
	concept.GoalMarketAccess:        0.2,
	concept.GoalLifecycleManagement: 0.2,
	concept.GoalMarketDefense:       0.1,
}

var commercialGoalBonus = map[concept.Goal]float64{
	concept.GoalLabelExpansion:      0.5,
	concept.GoalInitialApproval:     0.5,
	concept.GoalMarketAccess:        0.4,
	concept.GoalMarketDefense:       0.3,
	concept.GoalLifecycleManagement: 0.3,
	concept.GoalAccelerateUptake:    0.3,
	concept.GoalPatentExtension:     0.3,
}

type Scorer struct {
	weights Weights
}

// NewScorer returns a scorer using w, or DefaultWeights when w is the zero
// value.
func NewScorer(w Weights) (*Scorer, error) {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// Score is pure: the same concept and assessment always produce the same
// result.
func (s *Scorer) Score(n concept.Normalized, f feasibility.Data) Score {
	out := Score{
		Scientific:  scientific(n),
		Clinical:    clinical(n),
		Commercial:  commercialValue(n, f),
		Feasibility: feasibilityScore(n, f),
		Weights:     s.weights,
	}
	out.Overall = s.weights.Scientific*out.Scientific +
		s.weights.Clinical*out.Clinical +
		s.weights.Commercial*out.Commercial +
		s.weights.Feasibility*out.Feasibility

	rec, alerts := recommend(signalsFrom(f), out.Commercial)
	out.Recommendation = rec
	out.Alerts = append(alerts, f.Warnings...)
	return out
}

func scientific(n concept.Normalized) float64 {
	score := 3.5
	switch {
	case n.EvidenceSourceCount >= 5:
		score += 0.8
	case n.EvidenceSourceCount >= 3:
		score += 0.5
	case n.EvidenceSourceCount >= 1:
		score += 0.2
	}
	for _, field := range []string{n.PICO.Population, n.PICO.Intervention, n.PICO.Comparator, n.PICO.Outcomes} {
		if len(strings.TrimSpace(field)) >= picoDetailChars {
			score += 0.3
		}
	}
	score += phaseAdjustment(n.Phase, -0.2, 0.3, 0.1)
	return clampScore(score)
}

func clinical(n concept.Normalized) float64 {
	score := 3.0 + goalBonus(n, clinicalGoalBonus)
	if len(strings.TrimSpace(n.PICO.Outcomes)) >= outcomesDetailChars {
		score += 0.4
	}
	if n.HasSubpopulation {
		score += 0.5
	}
	score += phaseAdjustment(n.Phase, -0.3, 0.3, 0.1)
	return clampScore(score)
}

func commercialValue(n concept.Normalized, f feasibility.Data) float64 {
	score := 2.5 + goalBonus(n, commercialGoalBonus)
	switch {
	case n.GeographyCount >= 5:
		score += 0.5
	case n.GeographyCount >= 3:
		score += 0.3
	case n.GeographyCount >= 2:
		score += 0.1
	}
	roi := f.Commercial.ProjectedROI
	switch {
	case roi >= 3:
		score += 0.5
	case roi >= 2:
		score += 0.3
	case roi < 1:
		score -= 0.5
	}
	if f.Commercial.RiskAdjustedENPVUSD < 0 {
		score -= 0.3
	}
	return clampScore(score)
}

func feasibilityScore(n concept.Normalized, f feasibility.Data) float64 {
	score := 3.0
	switch {
	case f.RecruitmentRate >= 0.80:
		score += 0.5
	case f.RecruitmentRate >= 0.65:
		score += 0.2
	case f.RecruitmentRate < 0.50:
		score -= 0.5
	}
	switch {
	case f.CompletionRisk <= 0.20:
		score += 0.5
	case f.CompletionRisk <= 0.35:
		score += 0.2
	case f.CompletionRisk >= 0.60:
		score -= 0.7
	case f.CompletionRisk >= 0.45:
		score -= 0.3
	}
	if n.HasBudgetCeiling {
		if f.BudgetExceeded {
			score -= 0.5
		} else {
			score += 0.3
		}
	}
	if n.HasTimelineCeiling {
		if f.TimelineExceeded {
			score -= 0.4
		} else {
			score += 0.2
		}
	}
	if !n.HasSubpopulation {
		score += 0.2
	}
	if n.ComparatorCount <= 1 {
		score += 0.1
	}
	return clampScore(score)
}

// signals are the commercial figures the recommendation is decided on.
type signals struct {
	roi          float64
	npvUSD       float64
	windowMonths float64
}

func signalsFrom(f feasibility.Data) signals {
	return signals{
		roi:          f.Commercial.ProjectedROI,
		npvUSD:       f.Commercial.RiskAdjustedENPVUSD,
		windowMonths: f.LOE.MonthsReadoutToLOE,
	}
}

func recommend(s signals, commercialScore float64) (Recommendation, []string) {
	var blockers, alerts []string
	if s.roi < stopROI {
		blockers = append(blockers, fmt.Sprintf("Projected ROI %.2fx is below %.1fx.", s.roi, stopROI))
	}
	if s.npvUSD < 0 {
		blockers = append(blockers, fmt.Sprintf("Risk-adjusted NPV is negative (%s).", formatUSD(s.npvUSD)))
	}
	if s.roi >= stopROI && s.roi < reviseROI {
		alerts = append(alerts, fmt.Sprintf("Projected ROI %.2fx is below the %.1fx target.", s.roi, reviseROI))
	}
	if s.npvUSD >= 0 && s.npvUSD < reviseNPVUSD {
		alerts = append(alerts, fmt.Sprintf("Risk-adjusted NPV %s is below %s.", formatUSD(s.npvUSD), formatUSD(reviseNPVUSD)))
	}
	if s.windowMonths < reviseWindowMths {
		alerts = append(alerts, fmt.Sprintf("Only %.1f months between readout and loss of exclusivity.", s.windowMonths))
	}

	rec := Recommendation{Blockers: blockers}
	switch {
	case len(blockers) > 0:
		rec.Level = LevelStop
		rec.Confidence = ConfidenceLow
		rec.Rationale = "Commercial case does not return the investment: " + strings.Join(blockers, " ")
	case len(alerts) > 0:
		rec.Level = LevelRevise
		rec.Rationale = "Commercial case is positive but thin; revise design or scope before committing."
	default:
		rec.Level = LevelProceed
		rec.Rationale = fmt.Sprintf("ROI %.2fx and risk-adjusted NPV %s clear every threshold with %.0f months of exclusivity after readout.",
			s.roi, formatUSD(s.npvUSD), s.windowMonths)
	}
	if rec.Confidence == "" {
		rec.Confidence = ConfidenceMedium
		if commercialScore >= 4.0 {
			rec.Confidence = ConfidenceHigh
		}
	}
	return rec, alerts
}

func goalBonus(n concept.Normalized, table map[concept.Goal]float64) float64 {
	total := 0.0
	for _, g := range n.Goals {
		total += table[g]
	}
	return math.Min(goalBonusCap, total)
}

func phaseAdjustment(p concept.Phase, phaseI, phaseIII, phaseIV float64) float64 {
	switch p {
	case concept.PhaseI:
		return phaseI
	case concept.PhaseIII:
		return phaseIII
	case concept.PhaseIV:
		return phaseIV
	default:
		return 0
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return minScore
	}
	return math.Max(minScore, math.Min(maxScore, v))
}

func formatUSD(v float64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%s$%.2fB", sign, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s$%.1fM", sign, v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%s$%.0fK", sign, v/1e3)
	default:
		return fmt.Sprintf("%s$%.0f", sign, v)
	}
}
