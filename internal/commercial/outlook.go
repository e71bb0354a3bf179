// Package commercial projects the revenue, discounted value and return a
// study concept could unlock once it reads out.
package commercial

import (
	"math"
	"time"

	"github.com/joelkehle/trialscope/internal/benchmarks"
	"github.com/joelkehle/trialscope/internal/concept"
)

const (
	discountRate     = 0.10
	horizonYears     = 5
	postLOEDecay     = 0.8
	roiRiskWeight    = 0.5
	enpvRiskWeight   = 0.6
	minCostDivisor   = 1.0
	minWeightDivisor = 1e-9

	optimisticRevenue    = 1.25
	optimisticTimeShift  = -0.4
	pessimisticRevenue   = 0.70
	pessimisticTimeShift = 0.8
)

type ScenarioName string

const (
	ScenarioBase        ScenarioName = "base"
	ScenarioOptimistic  ScenarioName = "optimistic"
	ScenarioPessimistic ScenarioName = "pessimistic"
)

// Input carries everything the outlook needs from the feasibility estimate.
// Revenue years and loss of exclusivity are both placed relative to
// ReadoutDate; Concept.AsOf is the valuation date.
type Input struct {
	Concept           concept.Normalized
	InvestmentUSD     float64
	TimelineMonths    float64
	CompletionRisk    float64
	RevenueMultiplier float64
	Assumptions       Assumptions
	Regions           []benchmarks.Allocation
	ReadoutDate       time.Time
	LOEDate           time.Time
	PostLOERetention  float64
}

type RegionalRevenue struct {
	RegionID           string  `json:"region_id"`
	Currency           string  `json:"currency"`
	Share              float64 `json:"share"`
	AnnualRevenueUSD   float64 `json:"annual_revenue_usd"`
	AnnualRevenueLocal float64 `json:"annual_revenue_local"`
}

type Scenario struct {
	Name                ScenarioName `json:"name"`
	AnnualSalesUSD      float64      `json:"annual_sales_usd"`
	TotalRevenueUSD     float64      `json:"total_revenue_usd"`
	ENPVUSD             float64      `json:"enpv_usd"`
	RiskAdjustedENPVUSD float64      `json:"risk_adjusted_enpv_usd"`
	ROI                 float64      `json:"roi"`
	TimeToImpactYears   float64      `json:"time_to_impact_years"`
}

type Outlook struct {
	IncrementalSalesUSD   float64           `json:"incremental_sales_usd"`
	IncrementalSalesLocal float64           `json:"incremental_sales_local"`
	LocalCurrency         string            `json:"local_currency"`
	PrimaryRegion         string            `json:"primary_region"`
	ImpactWindowYears     float64           `json:"impact_window_years"`
	TotalRevenueUSD       float64           `json:"total_revenue_usd"`
	ENPVUSD               float64           `json:"enpv_usd"`
	RiskAdjustedENPVUSD   float64           `json:"risk_adjusted_enpv_usd"`
	RiskFactor            float64           `json:"risk_factor"`
	ProjectedROI          float64           `json:"projected_roi"`
	TimeToImpactYears     float64           `json:"time_to_impact_years"`
	UptakeLagYears        float64           `json:"uptake_lag_years"`
	Profile               StrategyProfile   `json:"strategy_profile"`
	Assumptions           Assumptions       `json:"assumptions"`
	RegionalRevenue       []RegionalRevenue `json:"regional_revenue"`
	Scenarios             []Scenario        `json:"scenarios"`
}

// Scenario returns the named scenario, or the zero value when absent.
func (o Outlook) Scenario(name ScenarioName) Scenario {
	for _, s := range o.Scenarios {
		if s.Name == name {
			return s
		}
	}
	return Scenario{}
}

type valuation struct {
	annual       float64
	total        float64
	timeToImpact float64
	uptakeLag    float64
	investment   float64
	risk         float64
	riskFactor   float64
	launchLag    float64 // years from readout to the first revenue year
	yearsToLOE   float64
	postLOE      float64
}

// Calculate builds the outlook. It is a pure function of in.
func Calculate(in Input) Outlook {
	profile := BuildProfile(in.Concept.Goals)
	a := in.Assumptions
	taMult := in.RevenueMultiplier
	if taMult <= 0 {
		taMult = 1
	}

	share := math.Min(profile.MaxSharePct, a.PeakSharePct*profile.Unlock)
	base := a.AddressablePatients * a.RevenuePerPatientUSD * share / 100 * taMult
	annual := base * (1 + profile.Retention)

	duration := math.Max(1, a.ImpactDurationYears)
	window := math.Min(duration*profile.WindowMultiplier*profile.EvidenceMultiplier, duration*profile.WindowCap)
	total := annual * window

	uptakeLag := a.UptakeRampYears + profile.UptakeLagYears
	timelineYears := math.Max(0, in.TimelineMonths) / 12
	timeToImpact := math.Max(0, timelineYears+profile.AccessDelayYears+a.AccessDelayMonths/12+math.Max(0, uptakeLag))
	readoutYears := readoutOffset(in.Concept.AsOf, in.ReadoutDate, timelineYears)

	confidence := clamp(a.Confidence, 0, 1)
	risk := clamp(in.CompletionRisk, 0, 1)
	riskFactor := ClampRiskFactor((1 - risk*enpvRiskWeight) * (0.7 + 0.3*confidence))

	v := valuation{
		annual:       annual,
		total:        total,
		timeToImpact: timeToImpact,
		uptakeLag:    uptakeLag,
		investment:   math.Max(0, in.InvestmentUSD),
		risk:         risk,
		riskFactor:   riskFactor,
		launchLag:    math.Max(0, timeToImpact-readoutYears),
		yearsToLOE:   yearsBetween(in.ReadoutDate, in.LOEDate),
		postLOE:      in.PostLOERetention,
	}

	regional, primary := allocateRevenue(annual, in.Regions)

	baseScenario := v.scenario(ScenarioBase, 1, 0)
	return Outlook{
		IncrementalSalesUSD:   annual,
		IncrementalSalesLocal: annual * primary.FXRate,
		LocalCurrency:         primary.Currency,
		PrimaryRegion:         primary.ID,
		ImpactWindowYears:     window,
		TotalRevenueUSD:       total,
		ENPVUSD:               baseScenario.ENPVUSD,
		RiskAdjustedENPVUSD:   baseScenario.RiskAdjustedENPVUSD,
		RiskFactor:            riskFactor,
		ProjectedROI:          baseScenario.ROI,
		TimeToImpactYears:     timeToImpact,
		UptakeLagYears:        uptakeLag,
		Profile:               profile,
		Assumptions:           a,
		RegionalRevenue:       regional,
		Scenarios: []Scenario{
			baseScenario,
			v.scenario(ScenarioOptimistic, optimisticRevenue, optimisticTimeShift),
			v.scenario(ScenarioPessimistic, pessimisticRevenue, pessimisticTimeShift),
		},
	}
}

func (v valuation) scenario(name ScenarioName, revenueMult, timeShift float64) Scenario {
	sv := v
	sv.annual *= revenueMult
	sv.total *= revenueMult
	sv.timeToImpact = math.Max(0, v.timeToImpact+timeShift)
	sv.launchLag = math.Max(0, v.launchLag+timeShift)
	enpv := sv.enpv()
	return Scenario{
		Name:                name,
		AnnualSalesUSD:      sv.annual,
		TotalRevenueUSD:     sv.total,
		ENPVUSD:             enpv,
		RiskAdjustedENPVUSD: enpv * sv.riskFactor,
		ROI:                 sv.roi(),
		TimeToImpactYears:   sv.timeToImpact,
	}
}

// enpv spreads the window revenue evenly over the five-year horizon, ramps
// it in over the uptake lag and discounts it back to today.
func (v valuation) enpv() float64 {
	npv := -v.investment
	perYear := v.total / horizonYears
	lag := math.Max(0, v.uptakeLag)
	for y := 1; y <= horizonYears; y++ {
		ramp := 1.0
		if v.uptakeLag >= 0 {
			ramp = math.Min(1, float64(y)/(v.uptakeLag+1))
		}
		exp := v.timeToImpact + float64(y-1) + lag
		npv += perYear * ramp / math.Pow(1+discountRate, exp)
	}
	return npv
}

// roi discounts five years of annual sales against the study cost. Years that
// start after loss of exclusivity keep only the post-LOE retention, decaying a
// further 20% per whole year past LOE.
func (v valuation) roi() float64 {
	sum := 0.0
	for y := 1; y <= horizonYears; y++ {
		sum += v.annual * v.decay(y) / math.Pow(1+discountRate, v.timeToImpact+float64(y-1))
	}
	raw := sum / math.Max(v.investment, minCostDivisor) * (1 - v.risk*roiRiskWeight)
	return ClampROI(raw)
}

func (v valuation) decay(year int) float64 {
	start := v.launchLag + float64(year-1)
	if start < v.yearsToLOE {
		return 1
	}
	k := math.Floor(start - v.yearsToLOE)
	return v.postLOE * math.Pow(postLOEDecay, k)
}

func allocateRevenue(annual float64, regions []benchmarks.Allocation) ([]RegionalRevenue, benchmarks.Region) {
	if len(regions) == 0 {
		return nil, benchmarks.Region{ID: concept.BaselineRegion, Currency: "USD", FXRate: 1}
	}
	denom := 0.0
	primary := regions[0]
	for _, r := range regions {
		denom += r.Weight * r.Region.PricingMultiplier
		if r.Weight > primary.Weight {
			primary = r
		}
	}
	denom = math.Max(denom, minWeightDivisor)

	out := make([]RegionalRevenue, 0, len(regions))
	for _, r := range regions {
		share := r.Weight * r.Region.PricingMultiplier / denom
		usd := annual * share
		out = append(out, RegionalRevenue{
			RegionID:           r.Region.ID,
			Currency:           r.Region.Currency,
			Share:              share,
			AnnualRevenueUSD:   usd,
			AnnualRevenueLocal: usd * r.Region.FXRate,
		})
	}
	return out, primary.Region
}

// readoutOffset is the years from the valuation date to readout. Without both
// dates it falls back to the study timeline.
func readoutOffset(asOf, readout time.Time, timelineYears float64) float64 {
	if asOf.IsZero() || readout.IsZero() {
		return timelineYears
	}
	return readout.Sub(asOf).Hours() / 24 / 365.25
}

func yearsBetween(from, to time.Time) float64 {
	if from.IsZero() || to.IsZero() {
		return math.Inf(1)
	}
	return math.Max(0, to.Sub(from).Hours()/24/365.25)
}
