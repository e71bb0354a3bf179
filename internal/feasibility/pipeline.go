package feasibility

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/joelkehle/trialscope/internal/benchmarks"
	"github.com/joelkehle/trialscope/internal/commercial"
	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/samplesize"
)

const (
	baseMonthlyRatePerSite = 1.5
	rweSampleMultiplier    = 2.5
	rweCostDiscount        = 0.75
	comparatorSurcharge    = 0.15
	subpopulationSurcharge = 1.25
	comparatorDelayMonths  = 2.0
	coordinationMonths     = 3.0
	budgetDelayWeight      = 0.5
	daysPerMonth           = 30.4375
	minDBLockMonths        = 2.0
)

// provisionalEstimate is everything computable from the concept alone:
// enrolment, sites, unit costs, nominal cost, timeline and recruitment.
type provisionalEstimate struct {
	n         concept.Normalized
	profile   TherapeuticProfile
	regions   []benchmarks.Allocation
	sample    samplesize.Result
	patients  int
	sites     int
	countries int

	costPerPatient float64
	siteSetup      float64
	siteCost       float64
	regulatory     float64
	nominal        float64
	vendors        VendorSummary
	totalCost      float64
	regional       []RegionalCost

	ratePerSite float64
	timeline    TimelineBreakdown
	recruitment float64
	complexity  float64
	warnings    []string
}

// dependentRefinement holds the values that depend on the provisional cost
// and timeline: the LOE schedule, completion risk and commercial outlook.
type dependentRefinement struct {
	loe        LOETimeline
	risk       float64
	overBudget bool
	outlook    commercial.Outlook
}

func (c *Calculator) provisional(ctx context.Context, n concept.Normalized) provisionalEstimate {
	t := c.tables
	p := provisionalEstimate{n: n}
	p.profile = c.classifier.Classify(n)
	p.regions = c.bench.Resolve(n.Deployment)
	p.warnings = regionWarnings(n, p.regions)

	p.sample = c.sizer.Size(ctx, n)
	patients := int(math.Ceil(float64(p.sample.Patients)*p.profile.SampleMultiplier - 1e-9))
	if patients < samplesize.MinPatients {
		patients = samplesize.MinPatients
	}
	if n.RealWorldEvidence {
		patients = int(math.Ceil(float64(patients) * rweSampleMultiplier))
	}
	p.patients = patients

	g := max(1, n.GeographyCount)
	p.countries = g
	p.sites = clampSites(int(math.Ceil(floorDiv(float64(patients), t.patientsPerSite(n.Phase), 1))), g)

	power := p.sample.Parameters.Power
	cpp := t.costPerPatient(p.sample.Endpoint.Type, n.Oncology, n.HighCostTherapy)
	cpp *= t.phaseCostMultiplier(n.Phase) * p.profile.CostMultiplier(n.Phase) * (0.8 + 0.4*power)
	if n.RealWorldEvidence {
		cpp *= rweCostDiscount
	}
	p.costPerPatient = cpp

	setup := t.SiteSetupBaseUSD
	if g > 5 {
		setup *= 1.4
	}
	if p.sample.Endpoint.Type == samplesize.EndpointSurvival {
		setup *= 1.2
	}
	if n.ComparatorCount > 0 {
		setup *= 1.1
	}
	p.siteSetup = setup

	p.regional = c.regionalCosts(p)

	p.siteCost = float64(p.sites) * setup
	baseline := float64(patients)*cpp + p.siteCost
	baseline *= 1 + comparatorSurcharge*float64(n.ComparatorCount)
	if n.HasSubpopulation {
		baseline *= subpopulationSurcharge
	}
	p.regulatory = t.RegulatoryBaseUSD * (1 + 0.5*math.Log2(float64(p.countries)))
	p.nominal = baseline + p.regulatory

	p.ratePerSite, p.timeline = c.timeline(p)

	vendors := c.vendors.Scenarios(n.VendorIDs, n.Phase, p.nominal, p.timeline.TotalMonths)
	p.vendors = VendorSummary{Vendors: vendors}
	for _, v := range vendors {
		p.vendors.BaseUSD += v.BaseUSD
		p.vendors.OptimisticUSD += v.OptimisticUSD
		p.vendors.PessimisticUSD += v.PessimisticUSD
	}
	p.totalCost = p.nominal + p.vendors.BaseUSD

	p.recruitment = recruitmentRate(t, n)
	p.complexity = complexityFactor(n)
	return p
}

func (c *Calculator) regionalCosts(p provisionalEstimate) []RegionalCost {
	t := c.tables
	out := make([]RegionalCost, 0, len(p.regions))
	for _, a := range p.regions {
		r := a.Region
		patients := float64(p.patients) * a.Weight
		sites := max(1, int(math.Round(float64(p.sites)*a.Weight)))
		visit := patients * p.costPerPatient * r.VisitCostMultiplier
		rc := RegionalCost{
			RegionID:         r.ID,
			Name:             r.Name,
			Currency:         r.Currency,
			FXRate:           r.FXRate,
			Weight:           a.Weight,
			Patients:         patients,
			Sites:            sites,
			VisitUSD:         visit,
			StartupUSD:       float64(sites) * p.siteSetup * r.StartupCostMultiplier,
			MonitoringUSD:    visit * t.MonitoringShare * r.MonitoringCostMultiplier,
			RegulatoryUSD:    t.RegulatoryBaseUSD * a.Weight * r.RegulatoryCostMultiplier,
			IncentiveUSD:     patients * t.PatientIncentiveUSD * r.IncentiveCostMultiplier,
			StartupLagMonths: r.StartupLagMonths,
			CostBandLowUSD:   r.CostBandLowUSD,
			CostBandHighUSD:  r.CostBandHighUSD,
		}
		rc.TotalUSD = rc.VisitUSD + rc.StartupUSD + rc.MonitoringUSD + rc.RegulatoryUSD + rc.IncentiveUSD
		out = append(out, rc)
	}
	return out
}

func (c *Calculator) timeline(p provisionalEstimate) (float64, TimelineBreakdown) {
	n := p.n
	rate := baseMonthlyRatePerSite
	if n.Oncology {
		rate *= 0.7
	}
	if n.HasSubpopulation {
		rate *= 0.6
	}
	switch n.Phase {
	case concept.PhaseI:
		rate *= 0.8
	case concept.PhaseIII:
		rate *= 1.2
	}

	tl := TimelineBreakdown{
		RecruitmentMonths:  math.Max(1, math.Ceil(floorDiv(float64(p.patients), float64(p.sites)*rate, 1e-9))),
		FollowUpMonths:     c.tables.followUpMonths(p.sample.Endpoint.Type),
		AnalysisMonths:     4,
		CoordinationMonths: coordinationMonths * math.Log2(float64(p.countries)),
		ComparatorMonths:   comparatorDelayMonths * float64(n.ComparatorCount),
	}
	if n.Phase == concept.PhaseIII || n.Phase == concept.PhaseIV {
		tl.AnalysisMonths = 6
	}
	for _, r := range p.regional {
		tl.StartupLagMonths = math.Max(tl.StartupLagMonths, r.StartupLagMonths)
	}
	tl.TotalMonths = tl.RecruitmentMonths + tl.FollowUpMonths + tl.AnalysisMonths +
		tl.StartupLagMonths + tl.CoordinationMonths + tl.ComparatorMonths
	return rate, tl
}

func recruitmentRate(t Tables, n concept.Normalized) float64 {
	rate := t.RecruitmentBaseline[n.Phase]
	if rate <= 0 {
		rate = t.RecruitmentBaseline[concept.PhaseII]
	}
	if n.HasSubpopulation {
		rate *= 0.85
	}
	rate *= 1 + 0.02*float64(max(1, n.GeographyCount)-1)
	return clampRecruitmentRate(rate)
}

func complexityFactor(n concept.Normalized) float64 {
	f := 1 + 0.10*float64(n.ComparatorCount) + 0.05*float64(max(1, n.GeographyCount)-1)
	if n.HasSubpopulation {
		f += 0.15
	}
	if n.Oncology {
		f += 0.10
	}
	if n.HighCostTherapy {
		f += 0.20
	}
	return clampComplexity(f)
}

func (c *Calculator) refine(p provisionalEstimate, a commercial.Assumptions) dependentRefinement {
	n := p.n
	r := dependentRefinement{loe: loeTimeline(n, p.timeline.TotalMonths, p.regions)}

	risk := c.tables.CompletionRiskBaseline[n.Phase]
	if risk <= 0 {
		risk = c.tables.CompletionRiskBaseline[concept.PhaseII]
	}
	if n.HasSubpopulation {
		risk += 0.10
	}
	if n.ComparatorCount > 1 {
		risk += 0.05 * float64(n.ComparatorCount-1)
	}
	if n.HasBudgetCeiling && p.totalCost > n.BudgetCeilingUSD {
		r.overBudget = true
		risk += 0.15
	}
	if n.HasTimelineCeiling && p.timeline.TotalMonths > n.TimelineCeilingMonths {
		risk += 0.15
	}
	r.risk = clampCompletionRisk(risk)

	r.outlook = commercial.Calculate(commercial.Input{
		Concept:           n,
		InvestmentUSD:     p.totalCost,
		TimelineMonths:    p.timeline.TotalMonths,
		CompletionRisk:    r.risk,
		RevenueMultiplier: p.profile.RevenueMultiplier,
		Assumptions:       a,
		Regions:           p.regions,
		ReadoutDate:       r.loe.ReadoutDate,
		LOEDate:           r.loe.LOEDate,
		PostLOERetention:  r.loe.PostLOEValueRetained,
	})
	return r
}

func readoutFraction(phase concept.Phase) float64 {
	switch phase {
	case concept.PhaseII:
		return 0.67
	case concept.PhaseIII, concept.PhaseIV:
		return 0.75
	default:
		return 1.0
	}
}

func loeTimeline(n concept.Normalized, durationMonths float64, regions []benchmarks.Allocation) LOETimeline {
	frac := readoutFraction(n.Phase)
	readout := addMonths(n.FPIDate, durationMonths*frac)
	lock := addMonths(readout, math.Max(minDBLockMonths, (durationMonths-durationMonths*frac)/2))

	retained := 0.15
	if n.HasGoal(concept.GoalRealWorldEvidence) {
		retained += 0.10
	}
	if n.HasGoal(concept.GoalMarketDefense) {
		retained += 0.05
	}
	if n.HasGoal(concept.GoalPatentExtension) {
		retained += 0.20
	}
	if n.Oncology {
		retained += 0.10
	}

	out := LOETimeline{
		FPIDate:              n.FPIDate,
		FPIOverridden:        n.FPIOverridden,
		LOEDate:              n.LOEDate,
		LOEOverridden:        n.LOEOverridden,
		ReadoutFraction:      frac,
		ReadoutDate:          readout,
		DBLockDate:           lock,
		StudyCompletionDate:  addMonths(n.FPIDate, durationMonths),
		MonthsReadoutToLOE:   math.Max(0, n.LOEDate.Sub(readout).Hours()/24/daysPerMonth),
		PostLOEValueRetained: math.Min(0.70, retained),
	}
	for _, a := range regions {
		out.Regions = append(out.Regions, RegionalLOE{
			RegionID: a.Region.ID,
			LOEDate:  n.LOEDate.AddDate(0, a.Region.LOEOffsetMonths, 0),
		})
	}
	return out
}

func addMonths(t time.Time, months float64) time.Time {
	return t.Add(time.Duration(months * daysPerMonth * float64(24*time.Hour)))
}

func (c *Calculator) finalize(p provisionalEstimate, r dependentRefinement) Data {
	n := p.n
	cost := p.totalCost
	siteCost, regulatory := p.siteCost, p.regulatory
	tl := p.timeline
	scale := 1.0
	warnings := append([]string(nil), p.warnings...)

	if n.HasBudgetCeiling && cost > n.BudgetCeilingUSD {
		scale = n.BudgetCeilingUSD / cost
		cost = n.BudgetCeilingUSD
		siteCost *= scale
		regulatory *= scale
		tl.BudgetDelayMonths = tl.TotalMonths * budgetDelayWeight * (1 - scale)
		tl.TotalMonths += tl.BudgetDelayMonths
		warnings = append(warnings, fmt.Sprintf("Nominal cost $%.0f exceeds the $%.0f budget ceiling; scope reduced to %.0f%% and timeline extended by %.1f months.",
			p.totalCost, n.BudgetCeilingUSD, scale*100, tl.BudgetDelayMonths))
	}

	costs := c.components(cost, siteCost, regulatory, p.vendors.BaseUSD, n.Oncology)
	final := math.Max(cost, costs.ComponentSum()+costs.VendorUSD)

	timelineExceeded := n.HasTimelineCeiling && tl.TotalMonths > n.TimelineCeilingMonths
	if timelineExceeded {
		warnings = append(warnings, fmt.Sprintf("Projected timeline of %.1f months exceeds the %.0f-month ceiling.", tl.TotalMonths, n.TimelineCeilingMonths))
	}

	regions := rescaleRegions(p.regional, final, p.vendors.BaseUSD)
	for _, rc := range regions {
		if !rc.InBand() {
			warnings = append(warnings, fmt.Sprintf("%s cost per patient $%.0f is outside the $%.0f-$%.0f benchmark band.",
				rc.RegionID, rc.CostPerPatientUSD, rc.CostBandLowUSD, rc.CostBandHighUSD))
		}
	}

	return Data{
		ConceptID:          n.ID,
		TherapeuticArea:    p.profile.Area,
		SampleSize:         p.sample,
		Patients:           p.patients,
		Sites:              p.sites,
		Countries:          p.countries,
		Therapeutic:        p.profile,
		CostPerPatientUSD:  p.costPerPatient,
		SiteSetupCostUSD:   p.siteSetup,
		Costs:              costs,
		NominalCostUSD:     p.totalCost,
		EstimatedCostUSD:   final,
		BudgetExceeded:     r.overBudget,
		BudgetScale:        scale,
		Timeline:           tl,
		TimelineMonths:     tl.TotalMonths,
		TimelineExceeded:   timelineExceeded,
		MonthlyRatePerSite: p.ratePerSite,
		RecruitmentRate:    p.recruitment,
		CompletionRisk:     r.risk,
		DropoutRate:        samplesize.ClampDropout(p.sample.Parameters.DropoutRate),
		ComplexityFactor:   p.complexity,
		LOE:                r.loe,
		Regions:            regions,
		Vendors:            p.vendors,
		Scenarios:          scenarios(final, tl.TotalMonths, r.outlook),
		ImpactCategory:     classifyImpact(n, r.outlook),
		Commercial:         r.outlook,
		Warnings:           warnings,
	}
}

// components splits whatever is left after site, regulatory and vendor spend
// across personnel, material, monitoring and data, each with a minimum.
func (c *Calculator) components(total, site, regulatory, vendor float64, oncology bool) CostBreakdown {
	split := c.tables.split(oncology)
	floors := c.tables.ComponentFloors
	rest := math.Max(0, total-site-regulatory-vendor)
	return CostBreakdown{
		SiteUSD:       site,
		PersonnelUSD:  math.Max(floors.Personnel, rest*split.Personnel),
		MaterialUSD:   math.Max(floors.Material, rest*split.Material),
		MonitoringUSD: math.Max(floors.Monitoring, rest*split.Monitoring),
		DataUSD:       math.Max(floors.Data, rest*split.Data),
		RegulatoryUSD: regulatory,
		VendorUSD:     vendor,
	}
}

// rescaleRegions stretches the regional build-up so the regions sum to the
// final cost, with vendor spend allocated by regional share.
func rescaleRegions(in []RegionalCost, finalCost, vendor float64) []RegionalCost {
	sum := 0.0
	for _, r := range in {
		sum += r.TotalUSD
	}
	sum = math.Max(sum, 1e-9)
	factor := math.Max(0, finalCost-vendor) / sum

	out := make([]RegionalCost, len(in))
	for i, r := range in {
		share := r.TotalUSD / sum
		r.VisitUSD *= factor
		r.StartupUSD *= factor
		r.MonitoringUSD *= factor
		r.RegulatoryUSD *= factor
		r.IncentiveUSD *= factor
		r.VendorUSD = vendor * share
		r.TotalUSD = finalCost * share
		r.TotalLocal = r.TotalUSD * r.FXRate
		r.CostPerPatientUSD = floorDiv(r.TotalUSD, r.Patients, 1)
		out[i] = r
	}
	return out
}

func scenarios(cost, months float64, o commercial.Outlook) []Scenario {
	roi := o.ProjectedROI
	mk := func(name commercial.ScenarioName, costMult, timeMult, scenarioROI float64) Scenario {
		cs := o.Scenario(name)
		return Scenario{
			Name:           name,
			CostUSD:        cost * costMult,
			TimelineMonths: months * timeMult,
			ROI:            commercial.ClampROI(scenarioROI),
			RevenueUSD:     cs.TotalRevenueUSD,
			NPVUSD:         cs.RiskAdjustedENPVUSD,
		}
	}
	return []Scenario{
		mk(commercial.ScenarioBase, 1, 1, roi),
		mk(commercial.ScenarioOptimistic, 0.92, 0.9, roi*1.15),
		mk(commercial.ScenarioPessimistic, 1.12, 1.15, math.Max(commercial.MinROI, roi*0.75)),
	}
}

const (
	salesGuidelineShift = 500e6
	salesMaterial       = 150e6
	salesLimited        = 50e6
	npvPracticeShift    = 100e6
	npvMaterial         = 25e6
)

func classifyImpact(n concept.Normalized, o commercial.Outlook) ImpactCategory {
	sales, npv := o.IncrementalSalesUSD, o.RiskAdjustedENPVUSD
	switch {
	case n.HasGoal(concept.GoalLabelExpansion) && (sales >= salesMaterial || npv >= npvMaterial):
		return ImpactLabelExpansion
	case n.HasGoal(concept.GoalMarketAccess) && npv >= npvMaterial:
		return ImpactMarketAccessEnabler
	case n.HasGoal(concept.GoalClinicalGuideline) && sales >= salesGuidelineShift:
		return ImpactGuidelineShift
	case n.HasGoal(concept.GoalClinicalGuideline):
		return ImpactPracticeEvolution
	case n.HasGoal(concept.GoalMarketDefense):
		return ImpactMarketDefense
	case sales >= salesMaterial || npv >= npvPracticeShift:
		return ImpactPracticeEvolution
	case sales < salesLimited && npv <= 0:
		return ImpactNoMaterialChange
	case sales < salesLimited:
		return ImpactLimited
	default:
		return ImpactEvidenceGapFill
	}
}

func regionWarnings(n concept.Normalized, resolved []benchmarks.Allocation) []string {
	known := map[string]bool{}
	for _, a := range resolved {
		known[a.Region.ID] = true
	}
	var out []string
	for _, a := range n.Deployment {
		if !known[a.RegionID] {
			out = append(out, fmt.Sprintf("No benchmarks for region %s; its allocation was redistributed.", a.RegionID))
		}
	}
	return out
}
