// Package samplesize turns a normalized study concept into a required
// enrolment count with the statistical assumptions that justify it.
package samplesize

import (
	"fmt"
	"math"
	"strings"

	"github.com/joelkehle/trialscope/internal/concept"
)

const (
	alpha = 0.05

	// MinPatients is the smallest study the calculator will ever return.
	MinPatients = 20

	survivalEventRate   = 0.70
	safetyFloor         = 100
	biomarkerFloor      = 50
	costPerPatientBound = 25000.0
	budgetCapShare      = 0.8

	subpopulationFactor = 1.25
	multiRegionFactor   = 1.10
	rweFactor           = 2.0
	biomarkerFactor     = 1.30
)

type phaseDefaults struct {
	power      float64
	dropout    float64
	effectSize float64
}

func defaultsFor(phase concept.Phase) phaseDefaults {
	switch phase {
	case concept.PhaseI:
		return phaseDefaults{power: 0.80, dropout: 0.10, effectSize: 0.60}
	case concept.PhaseIII:
		return phaseDefaults{power: 0.90, dropout: 0.20, effectSize: 0.35}
	case concept.PhaseIV:
		return phaseDefaults{power: 0.80, dropout: 0.25, effectSize: 0.30}
	default:
		return phaseDefaults{power: 0.80, dropout: 0.15, effectSize: 0.50}
	}
}

// ClampDropout bounds an anticipated dropout rate to [0.10, 0.30].
func ClampDropout(v float64) float64 {
	return math.Max(0.10, math.Min(0.30, v))
}

// DeriveParameters returns the statistical assumptions for a phase. Arms is
// left at 2 here; SelectEndpoint decides whether the design is single arm.
func DeriveParameters(phase concept.Phase, oncology bool) Parameters {
	d := defaultsFor(phase)
	dropout := d.dropout
	if oncology {
		dropout += 0.05
	}
	allocation := 1.0
	if phase == concept.PhaseII && !oncology {
		allocation = 2.0
	}
	return Parameters{
		Alpha:           alpha,
		Power:           d.power,
		Beta:            1 - d.power,
		EffectSize:      d.effectSize,
		DropoutRate:     ClampDropout(dropout),
		AllocationRatio: allocation,
		Arms:            2,
	}
}

// SelectEndpoint walks the endpoint decision table; the first matching row
// wins. The returned arm count is 1 for single-arm and single-cohort designs.
func SelectEndpoint(n concept.Normalized, p Parameters) (EndpointSpec, int) {
	switch {
	case n.HasGoal(concept.GoalBiomarkerValidation):
		return EndpointSpec{
			Type:        EndpointBiomarker,
			Description: "Correlation between biomarker level and clinical response",
			Baseline:    0,
			Target:      0.30,
			HasTarget:   true,
		}, 1
	case n.Phase == concept.PhaseI:
		if n.Oncology {
			return EndpointSpec{
				Type:        EndpointSafety,
				Description: "Dose-limiting toxicity rate",
				Baseline:    0.20,
				Target:      0.20,
				HasTarget:   true,
			}, 1
		}
		return EndpointSpec{
			Type:        EndpointSafety,
			Description: "Incidence of treatment-emergent adverse events",
			Baseline:    0.05,
		}, 1
	case n.Phase == concept.PhaseIV || n.RealWorldEvidence:
		return EndpointSpec{
			Type:        EndpointSafety,
			Description: "Incidence of rare adverse events in routine use",
			Baseline:    0.01,
		}, 1
	case n.Oncology && n.Phase == concept.PhaseIII:
		return EndpointSpec{
			Type:        EndpointSurvival,
			Description: "Overall survival",
			Baseline:    12,
			Target:      16,
			HasTarget:   true,
			HazardRatio: 0.75,
		}, 2
	case n.Oncology && n.Phase == concept.PhaseII:
		arms := 1
		if n.ComparatorCount > 0 {
			arms = 2
		}
		return EndpointSpec{
			Type:        EndpointResponseRate,
			Description: "Objective response rate",
			Baseline:    0.20,
			Target:      0.40,
			HasTarget:   true,
		}, arms
	case n.Phase == concept.PhaseIII:
		return EndpointSpec{
			Type:        EndpointResponseRate,
			Description: "Proportion of responders at primary timepoint",
			Baseline:    0.30,
			Target:      0.45,
			HasTarget:   true,
		}, 2
	default:
		return EndpointSpec{
			Type:              EndpointContinuous,
			Description:       "Mean change from baseline in primary efficacy score",
			Baseline:          0,
			Target:            p.EffectSize,
			HasTarget:         true,
			StandardDeviation: 1,
		}, 2
	}
}

// Calculate sizes a concept from the closed-form formulas alone.
func Calculate(n concept.Normalized) Result {
	params := DeriveParameters(n.Phase, n.Oncology)
	endpoint, arms := SelectEndpoint(n, params)
	params.Arms = arms

	raw, narrative := rawSize(endpoint, params)
	adjusted, notes := applyAdjustments(raw, n)
	patients := int(math.Ceil(adjusted - 1e-9))
	patients, boundNotes := Bound(patients, n)
	notes = append(notes, boundNotes...)

	return Result{
		Patients:      patients,
		Justification: justification(n, endpoint, params, notes),
		Parameters:    params,
		Endpoint:      endpoint,
		PowerAnalysis: narrative,
		Adjustments:   notes,
		Source:        SourceFormula,
	}
}

// Bound applies the budget-implied cap and the absolute floor. The floor
// wins when a small budget implies fewer than MinPatients.
func Bound(patients int, n concept.Normalized) (int, []string) {
	var notes []string
	if limit, ok := BudgetCap(n); ok && patients > limit {
		notes = append(notes, fmt.Sprintf("capped at %d patients by the $%.0f budget ceiling", limit, n.BudgetCeilingUSD))
		patients = limit
	}
	if patients < MinPatients {
		notes = append(notes, fmt.Sprintf("raised to the %d-patient minimum", MinPatients))
		patients = MinPatients
	}
	return patients, notes
}

// BudgetCap is the largest enrolment a budget ceiling can plausibly fund.
func BudgetCap(n concept.Normalized) (int, bool) {
	if !n.HasBudgetCeiling {
		return 0, false
	}
	limit := math.Floor(n.BudgetCeilingUSD / costPerPatientBound * budgetCapShare)
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	return int(limit), true
}

func rawSize(e EndpointSpec, p Parameters) (float64, string) {
	za := zScore(1 - p.Alpha/2)
	zb := zScore(p.Power)
	keep := 1 - p.DropoutRate

	switch e.Type {
	case EndpointSurvival:
		lnHR := math.Log(e.HazardRatio)
		events := math.Pow(za+zb, 2) * 4 / (lnHR * lnHR)
		n := events / survivalEventRate / keep
		return n, fmt.Sprintf(
			"Log-rank approximation: events = (z_a+z_b)^2 * 4 / ln(HR)^2 = %.0f events to detect HR %.2f (median %.0f vs %.0f months); at a %.0f%% event rate and %.0f%% dropout this requires %.0f patients.",
			events, e.HazardRatio, e.Baseline, e.Target, survivalEventRate*100, p.DropoutRate*100, math.Ceil(n))

	case EndpointResponseRate:
		p0, p1 := e.Baseline, e.Target
		delta := math.Max(math.Abs(p1-p0), 1e-6)
		if p.Arms == 1 {
			num := za*math.Sqrt(p0*(1-p0)) + zb*math.Sqrt(p1*(1-p1))
			n := num * num / (delta * delta) / keep
			return n, fmt.Sprintf(
				"Single-arm one-sample normal approximation against a historical response rate of %.0f%%, targeting %.0f%%: %.0f patients after %.0f%% dropout.",
				p0*100, p1*100, math.Ceil(n), p.DropoutRate*100)
		}
		pbar := (p0 + p1) / 2
		num := za*math.Sqrt(2*pbar*(1-pbar)) + zb*math.Sqrt(p0*(1-p0)+p1*(1-p1))
		perArm := num * num / (delta * delta)
		n := 2 * perArm / keep
		return n, fmt.Sprintf(
			"Two-proportion normal approximation with pooled variance: %.0f per arm to detect %.0f%% vs %.0f%%; %.0f patients in total after %.0f%% dropout.",
			math.Ceil(perArm), p0*100, p1*100, math.Ceil(n), p.DropoutRate*100)

	case EndpointContinuous:
		es := math.Max(p.EffectSize, 1e-6)
		k := math.Max(p.AllocationRatio, 1e-6)
		perArm := 2 * math.Pow((za+zb)/es, 2)
		total := 2 * perArm * (1 + k) * (1 + k) / (4 * k)
		n := total / keep
		return n, fmt.Sprintf(
			"Two-sample mean difference: n = 2((z_a+z_b)/d)^2 = %.0f per arm for standardized effect d = %.2f, rescaled for %.0f:1 allocation; %.0f patients after %.0f%% dropout.",
			math.Ceil(perArm), es, k, math.Ceil(n), p.DropoutRate*100)

	case EndpointSafety:
		var n float64
		var how string
		if e.HasTarget && e.Target > 0 && e.Target < 1 {
			n = math.Log(1-p.Power) / math.Log(1-e.Target)
			how = fmt.Sprintf("Binomial detection: %.0f patients give %.0f%% probability of observing at least one event occurring at %.0f%%", math.Ceil(n), p.Power*100, e.Target*100)
		} else {
			n = 3 / math.Max(e.Baseline, 1e-6)
			how = fmt.Sprintf("Rule of three: %.0f patients bound an event rate of %.1f%% with 95%% confidence", math.Ceil(n), e.Baseline*100)
		}
		if n < safetyFloor {
			n = safetyFloor
			how += fmt.Sprintf("; raised to the %d-patient safety database minimum", safetyFloor)
		}
		return n, how + "."

	case EndpointBiomarker:
		r := math.Min(math.Max(e.Target, 1e-6), 0.99)
		c := 0.5 * math.Log((1+r)/(1-r))
		n := math.Pow((za+zb)/c, 2) + 3
		how := fmt.Sprintf("Fisher z-transform: n = ((z_a+z_b)/C)^2 + 3 = %.0f patients to detect r = %.2f", math.Ceil(n), r)
		if n < biomarkerFloor {
			n = biomarkerFloor
			how += fmt.Sprintf("; raised to the %d-patient validation minimum", biomarkerFloor)
		}
		return n, how + "."
	}
	return MinPatients, "No endpoint formula applied; minimum study size used."
}

func applyAdjustments(n float64, c concept.Normalized) (float64, []string) {
	var notes []string
	if c.HasSubpopulation {
		n *= subpopulationFactor
		notes = append(notes, "+25% for targeted subpopulation screening")
	}
	if c.GeographyCount > 3 {
		n *= multiRegionFactor
		notes = append(notes, "+10% for regional heterogeneity across more than three geographies")
	}
	if c.HasGoal(concept.GoalRealWorldEvidence) {
		n *= rweFactor
		notes = append(notes, "+100% for real-world evidence generation")
	}
	if c.HasGoal(concept.GoalBiomarkerValidation) {
		n *= biomarkerFactor
		notes = append(notes, "+30% for biomarker validation cohort")
	}
	return n, notes
}

func justification(n concept.Normalized, e EndpointSpec, p Parameters, notes []string) string {
	design := "randomized two-arm"
	if p.Arms == 1 {
		design = "single-arm"
	}
	area := "non-oncology"
	if n.Oncology {
		area = "oncology"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s study sized on a %s endpoint (%s): two-sided alpha %.2f, power %.0f%%, anticipated dropout %.0f%%",
		n.Phase, area, design, e.Type, e.Description, p.Alpha, p.Power*100, p.DropoutRate*100)
	if p.Arms > 1 && p.AllocationRatio != 1 {
		fmt.Fprintf(&sb, ", %.0f:1 allocation", p.AllocationRatio)
	}
	sb.WriteString(".")
	if len(notes) > 0 {
		sb.WriteString(" Adjustments: ")
		sb.WriteString(strings.Join(notes, "; "))
		sb.WriteString(".")
	}
	return sb.String()
}

func zScore(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}
