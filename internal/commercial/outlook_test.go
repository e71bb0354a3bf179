package commercial

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/trialscope/internal/benchmarks"
	"github.com/joelkehle/trialscope/internal/concept"
)

func diff(a, b float64) float64 { return math.Abs(a - b) }

func flatAssumptions() Assumptions {
	return Assumptions{
		AddressablePatients:  10000,
		RevenuePerPatientUSD: 10000,
		PeakSharePct:         10,
		ImpactDurationYears:  5,
		Confidence:           1,
	}
}

func flatInput() Input {
	return Input{
		InvestmentUSD:  10_000_000,
		TimelineMonths: 12,
		CompletionRisk: 0.2,
		Assumptions:    flatAssumptions(),
	}
}

func TestCalculateExactKnownValues(t *testing.T) {
	out := Calculate(flatInput())
	if diff(out.IncrementalSalesUSD, 10_000_000) > 0.01 {
		t.Fatalf("annual sales = %f", out.IncrementalSalesUSD)
	}
	if diff(out.TotalRevenueUSD, 50_000_000) > 0.01 {
		t.Fatalf("window revenue = %f", out.TotalRevenueUSD)
	}
	if diff(out.TimeToImpactYears, 1) > 1e-9 {
		t.Fatalf("time to impact = %f", out.TimeToImpactYears)
	}
	// 10M * sum(1/1.1^y, y=1..5) - 10M
	if diff(out.ENPVUSD, 27_907_867.69) > 1 {
		t.Fatalf("eNPV = %f", out.ENPVUSD)
	}
	if diff(out.RiskFactor, 0.88) > 1e-9 {
		t.Fatalf("risk factor = %f", out.RiskFactor)
	}
	if diff(out.RiskAdjustedENPVUSD, 24_558_923.57) > 1 {
		t.Fatalf("risk-adjusted eNPV = %f", out.RiskAdjustedENPVUSD)
	}
	if diff(out.ProjectedROI, 3.4117) > 0.0001 {
		t.Fatalf("ROI = %f", out.ProjectedROI)
	}
	if out.PrimaryRegion != concept.BaselineRegion || out.LocalCurrency != "USD" {
		t.Fatalf("expected USD baseline currency, got %s/%s", out.PrimaryRegion, out.LocalCurrency)
	}
}

func TestROIAppliesPostLOEDecay(t *testing.T) {
	in := flatInput()
	in.ReadoutDate = time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)
	in.LOEDate = time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC)
	in.PostLOERetention = 0.5
	out := Calculate(in)
	// years 4 and 5 keep 0.5 and 0.5*0.8 of sales
	if diff(out.ProjectedROI, 2.76905) > 0.0001 {
		t.Fatalf("ROI with LOE decay = %f", out.ProjectedROI)
	}
	if out.ProjectedROI >= Calculate(flatInput()).ProjectedROI {
		t.Fatal("LOE inside the horizon must lower ROI")
	}
}

func TestLOEDecayMeasuredFromReadout(t *testing.T) {
	at := func(asOf time.Time) Input {
		in := flatInput()
		in.TimelineMonths = 24
		in.Concept.AsOf = asOf
		in.ReadoutDate = asOf.AddDate(1, 0, 0)
		in.LOEDate = asOf.AddDate(3, 6, 0)
		in.PostLOERetention = 0.5
		return in
	}
	// Readout after 1 of 2 timeline years; revenue starts a year after readout,
	// so years 3, 4 and 5 keep 0.5, 0.4 and 0.32 of sales.
	out := Calculate(at(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	if diff(out.ProjectedROI, 2.11344) > 0.0001 {
		t.Fatalf("ROI with mid-study readout = %f", out.ProjectedROI)
	}
	// Moving every date together must not move the decay.
	later := Calculate(at(time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC)))
	if diff(later.ProjectedROI, out.ProjectedROI) > 0.0001 {
		t.Fatalf("ROI depends on the calendar: %f vs %f", later.ProjectedROI, out.ProjectedROI)
	}
}

func TestROIIsClamped(t *testing.T) {
	in := flatInput()
	in.InvestmentUSD = 0
	assert.Equal(t, MaxROI, Calculate(in).ProjectedROI)

	in = flatInput()
	in.InvestmentUSD = 1e12
	assert.Equal(t, MinROI, Calculate(in).ProjectedROI)
}

func TestScenarioOrdering(t *testing.T) {
	out := Calculate(flatInput())
	base := out.Scenario(ScenarioBase)
	opt := out.Scenario(ScenarioOptimistic)
	pess := out.Scenario(ScenarioPessimistic)
	require.Len(t, out.Scenarios, 3)
	assert.Greater(t, opt.ROI, base.ROI)
	assert.Greater(t, base.ROI, pess.ROI)
	assert.Greater(t, opt.ENPVUSD, base.ENPVUSD)
	assert.Greater(t, base.ENPVUSD, pess.ENPVUSD)
	assert.InDelta(t, base.AnnualSalesUSD*1.25, opt.AnnualSalesUSD, 1e-6)
	assert.InDelta(t, base.AnnualSalesUSD*0.70, pess.AnnualSalesUSD, 1e-6)
	assert.InDelta(t, 0.6, opt.TimeToImpactYears, 1e-9)
	assert.InDelta(t, 1.8, pess.TimeToImpactYears, 1e-9)
}

func TestUptakeRampDelaysValue(t *testing.T) {
	fast := flatInput()
	slow := flatInput()
	slow.Assumptions.UptakeRampYears = 2
	f, s := Calculate(fast), Calculate(slow)
	assert.Less(t, s.ENPVUSD, f.ENPVUSD)
	assert.InDelta(t, 3.0, s.TimeToImpactYears, 1e-9)
}

func TestRegionalRevenueFollowsPricing(t *testing.T) {
	in := flatInput()
	in.Regions = []benchmarks.Allocation{
		{Region: benchmarks.Region{ID: "US", Currency: "USD", FXRate: 1, PricingMultiplier: 1.5}, Weight: 0.4},
		{Region: benchmarks.Region{ID: "EU", Currency: "EUR", FXRate: 0.9, PricingMultiplier: 0.75}, Weight: 0.6},
	}
	out := Calculate(in)
	require.Len(t, out.RegionalRevenue, 2)
	// 0.4*1.5 = 0.6 and 0.6*0.75 = 0.45 of 1.05
	assert.InDelta(t, 0.6/1.05, out.RegionalRevenue[0].Share, 1e-9)
	assert.InDelta(t, out.RegionalRevenue[1].AnnualRevenueUSD*0.9, out.RegionalRevenue[1].AnnualRevenueLocal, 1e-6)
	sum := 0.0
	for _, r := range out.RegionalRevenue {
		sum += r.AnnualRevenueUSD
	}
	assert.InDelta(t, out.IncrementalSalesUSD, sum, 1e-3)
	assert.Equal(t, "EU", out.PrimaryRegion)
	assert.Equal(t, "EUR", out.LocalCurrency)
	assert.InDelta(t, out.IncrementalSalesUSD*0.9, out.IncrementalSalesLocal, 1e-6)
}

func TestRevenueMultiplierAndRetention(t *testing.T) {
	in := flatInput()
	in.RevenueMultiplier = 1.2
	in.Concept = concept.Normalize(concept.Descriptor{StrategicGoals: []string{"market_defense"}}, time.Now())
	out := Calculate(in)
	// 10M * 1.2 * (1 + 0.10)
	assert.InDelta(t, 13_200_000, out.IncrementalSalesUSD, 0.01)
	// window = min(5 * 1.1, 5 * 1.5)
	assert.InDelta(t, 5.5, out.ImpactWindowYears, 1e-9)
}

func TestBuildProfileBumpsAndClamps(t *testing.T) {
	p := BuildProfile([]concept.Goal{concept.GoalLabelExpansion, concept.GoalInitialApproval, concept.GoalAccelerateUptake, concept.GoalCompetitiveDifferentiation})
	assert.InDelta(t, 1.35, p.Unlock, 1e-9)
	assert.InDelta(t, 0.75, p.LabelConfidence, 1e-9)
	assert.InDelta(t, -0.75, p.UptakeLagYears, 1e-9)
	assert.InDelta(t, 38, p.MaxSharePct, 1e-9)

	neutral := BuildProfile(nil)
	assert.Equal(t, baseProfile(), neutral)

	extreme := clampProfile(StrategyProfile{Unlock: 9, MaxSharePct: 1, Retention: -1, UptakeLagYears: -5, AccessDelayYears: 7, WindowMultiplier: 0, WindowCap: 4, EvidenceMultiplier: 3, LabelConfidence: 2, PracticeConfidence: -1})
	assert.Equal(t, 2.0, extreme.Unlock)
	assert.Equal(t, 5.0, extreme.MaxSharePct)
	assert.Equal(t, 0.0, extreme.Retention)
	assert.Equal(t, -1.0, extreme.UptakeLagYears)
	assert.Equal(t, 2.0, extreme.AccessDelayYears)
	assert.Equal(t, 0.5, extreme.WindowMultiplier)
	assert.Equal(t, 2.5, extreme.WindowCap)
	assert.Equal(t, 1.6, extreme.EvidenceMultiplier)
	assert.Equal(t, 1.0, extreme.LabelConfidence)
	assert.Equal(t, 0.0, extreme.PracticeConfidence)
}

func TestRiskFactorBounds(t *testing.T) {
	in := flatInput()
	in.CompletionRisk = 0.95
	in.Assumptions.Confidence = 0
	out := Calculate(in)
	assert.GreaterOrEqual(t, out.RiskFactor, 0.2)
	assert.LessOrEqual(t, out.RiskFactor, 1.0)
}

func TestDefaultAssumptions(t *testing.T) {
	for area := range defaultAssumptions {
		a := DefaultAssumptionsFor(area)
		require.NoError(t, a.Validate(), area)
		assert.Equal(t, SourceDefaultTable, a.Source)
	}
	unknown := DefaultAssumptionsFor("dermatology")
	assert.Equal(t, defaultAssumptions["default"].AddressablePatients, unknown.AddressablePatients)

	got, err := DefaultAssumptions{}.Assumptions(context.Background(), concept.Normalized{}, "Oncology")
	require.NoError(t, err)
	assert.Equal(t, 95000.0, got.RevenuePerPatientUSD)
}

func TestAssumptionsValidate(t *testing.T) {
	bad := Assumptions{PeakSharePct: 120, Confidence: 2}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peak_share_pct")
	assert.Contains(t, err.Error(), "confidence")
}
