package feasibility

import (
	"time"

	"github.com/joelkehle/trialscope/internal/commercial"
	"github.com/joelkehle/trialscope/internal/samplesize"
)

type ImpactCategory string

const (
	ImpactLabelExpansion      ImpactCategory = "label_expansion"
	ImpactMarketAccessEnabler ImpactCategory = "market_access_enabler"
	ImpactGuidelineShift      ImpactCategory = "clinical_guideline_shift"
	ImpactPracticeEvolution   ImpactCategory = "practice_evolution"
	ImpactMarketDefense       ImpactCategory = "market_defense"
	ImpactNoMaterialChange    ImpactCategory = "no_material_change"
	ImpactLimited             ImpactCategory = "limited_impact"
	ImpactEvidenceGapFill     ImpactCategory = "evidence_gap_fill"
)

// CostBreakdown holds the six reported cost components. Vendor spend is
// carried separately and is not one of the six.
type CostBreakdown struct {
	SiteUSD       float64 `json:"site_usd"`
	PersonnelUSD  float64 `json:"personnel_usd"`
	MaterialUSD   float64 `json:"material_usd"`
	MonitoringUSD float64 `json:"monitoring_usd"`
	DataUSD       float64 `json:"data_usd"`
	RegulatoryUSD float64 `json:"regulatory_usd"`
	VendorUSD     float64 `json:"vendor_usd"`
}

// ComponentSum is the total of the six components, excluding vendor spend.
func (c CostBreakdown) ComponentSum() float64 {
	return c.SiteUSD + c.PersonnelUSD + c.MaterialUSD + c.MonitoringUSD + c.DataUSD + c.RegulatoryUSD
}

type TimelineBreakdown struct {
	RecruitmentMonths  float64 `json:"recruitment_months"`
	FollowUpMonths     float64 `json:"follow_up_months"`
	AnalysisMonths     float64 `json:"analysis_months"`
	StartupLagMonths   float64 `json:"startup_lag_months"`
	CoordinationMonths float64 `json:"coordination_months"`
	ComparatorMonths   float64 `json:"comparator_months"`
	BudgetDelayMonths  float64 `json:"budget_delay_months"`
	TotalMonths        float64 `json:"total_months"`
}

type RegionalLOE struct {
	RegionID string    `json:"region_id"`
	LOEDate  time.Time `json:"loe_date"`
}

type LOETimeline struct {
	FPIDate              time.Time     `json:"fpi_date"`
	FPIOverridden        bool          `json:"fpi_overridden"`
	LOEDate              time.Time     `json:"loe_date"`
	LOEOverridden        bool          `json:"loe_overridden"`
	ReadoutFraction      float64       `json:"readout_fraction"`
	ReadoutDate          time.Time     `json:"readout_date"`
	DBLockDate           time.Time     `json:"db_lock_date"`
	StudyCompletionDate  time.Time     `json:"study_completion_date"`
	MonthsReadoutToLOE   float64       `json:"months_readout_to_loe"`
	PostLOEValueRetained float64       `json:"post_loe_value_retained"`
	Regions              []RegionalLOE `json:"regions"`
}

type RegionalCost struct {
	RegionID          string  `json:"region_id"`
	Name              string  `json:"name"`
	Currency          string  `json:"currency"`
	FXRate            float64 `json:"fx_rate"`
	Weight            float64 `json:"weight"`
	Patients          float64 `json:"patients"`
	Sites             int     `json:"sites"`
	VisitUSD          float64 `json:"visit_usd"`
	StartupUSD        float64 `json:"startup_usd"`
	MonitoringUSD     float64 `json:"monitoring_usd"`
	RegulatoryUSD     float64 `json:"regulatory_usd"`
	IncentiveUSD      float64 `json:"incentive_usd"`
	VendorUSD         float64 `json:"vendor_usd"`
	TotalUSD          float64 `json:"total_usd"`
	TotalLocal        float64 `json:"total_local"`
	StartupLagMonths  float64 `json:"startup_lag_months"`
	CostBandLowUSD    float64 `json:"cost_band_low_usd"`
	CostBandHighUSD   float64 `json:"cost_band_high_usd"`
	CostPerPatientUSD float64 `json:"cost_per_patient_usd"`
}

// InBand reports whether the region's per-patient cost sits inside its
// benchmark band. Regions without a band are always in band.
func (r RegionalCost) InBand() bool {
	if r.CostBandHighUSD <= 0 {
		return true
	}
	return r.CostPerPatientUSD >= r.CostBandLowUSD && r.CostPerPatientUSD <= r.CostBandHighUSD
}

type VendorSummary struct {
	Vendors        []VendorScenario `json:"vendors"`
	BaseUSD        float64          `json:"base_usd"`
	OptimisticUSD  float64          `json:"optimistic_usd"`
	PessimisticUSD float64          `json:"pessimistic_usd"`
}

type Scenario struct {
	Name           commercial.ScenarioName `json:"name"`
	CostUSD        float64                 `json:"cost_usd"`
	TimelineMonths float64                 `json:"timeline_months"`
	ROI            float64                 `json:"roi"`
	RevenueUSD     float64                 `json:"revenue_usd"`
	NPVUSD         float64                 `json:"npv_usd"`
}

// Data is the complete feasibility assessment for one concept.
type Data struct {
	ConceptID       string             `json:"concept_id"`
	TherapeuticArea string             `json:"therapeutic_area"`
	SampleSize      samplesize.Result  `json:"sample_size"`
	Patients        int                `json:"patients"`
	Sites           int                `json:"sites"`
	Countries       int                `json:"countries"`
	Therapeutic     TherapeuticProfile `json:"therapeutic_profile"`

	CostPerPatientUSD float64       `json:"cost_per_patient_usd"`
	SiteSetupCostUSD  float64       `json:"site_setup_cost_usd"`
	Costs             CostBreakdown `json:"costs"`
	NominalCostUSD    float64       `json:"nominal_cost_usd"`
	EstimatedCostUSD  float64       `json:"estimated_cost_usd"`
	BudgetExceeded    bool          `json:"budget_exceeded"`
	BudgetScale       float64       `json:"budget_scale"`

	Timeline         TimelineBreakdown `json:"timeline"`
	TimelineMonths   float64           `json:"timeline_months"`
	TimelineExceeded bool              `json:"timeline_exceeded"`

	MonthlyRatePerSite float64 `json:"monthly_rate_per_site"`
	RecruitmentRate    float64 `json:"recruitment_rate"`
	CompletionRisk     float64 `json:"completion_risk"`
	DropoutRate        float64 `json:"dropout_rate"`
	ComplexityFactor   float64 `json:"complexity_factor"`

	LOE            LOETimeline        `json:"loe"`
	Regions        []RegionalCost     `json:"regions"`
	Vendors        VendorSummary      `json:"vendors"`
	Scenarios      []Scenario         `json:"scenarios"`
	ImpactCategory ImpactCategory     `json:"impact_category"`
	Commercial     commercial.Outlook `json:"commercial"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// Scenario returns the named feasibility scenario, or the zero value.
func (d Data) Scenario(name commercial.ScenarioName) Scenario {
	for _, s := range d.Scenarios {
		if s.Name == name {
			return s
		}
	}
	return Scenario{}
}
