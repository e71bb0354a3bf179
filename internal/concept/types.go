package concept

import "time"

// BaselineRegion is the benchmark region used when a concept does not declare
// a deployment mix or none of its regions are known.
const BaselineRegion = "GLOBAL"

type Phase string

const (
	PhaseI   Phase = "Phase I"
	PhaseII  Phase = "Phase II"
	PhaseIII Phase = "Phase III"
	PhaseIV  Phase = "Phase IV"
)

type Goal string

const (
	GoalLabelExpansion             Goal = "label_expansion"
	GoalLifecycleManagement        Goal = "lifecycle_management"
	GoalInitialApproval            Goal = "initial_approval"
	GoalAccelerateUptake           Goal = "accelerate_uptake"
	GoalCompetitiveDifferentiation Goal = "competitive_differentiation"
	GoalMarketDefense              Goal = "market_defense"
	GoalRealWorldEvidence          Goal = "real_world_evidence"
	GoalMarketAccess               Goal = "market_access"
	GoalClinicalGuideline          Goal = "clinical_guideline"
	GoalPatentExtension            Goal = "patent_extension"
	GoalBiomarkerValidation        Goal = "biomarker_validation"
)

type RegionalAllocation struct {
	RegionID string  `json:"region_id"`
	Weight   float64 `json:"weight"`
}

type PICO struct {
	Population   string `json:"population,omitempty"`
	Intervention string `json:"intervention,omitempty"`
	Comparator   string `json:"comparator,omitempty"`
	Outcomes     string `json:"outcomes,omitempty"`
}

// Descriptor is the study concept as submitted. Optional fields are left at
// their zero value (or nil) when the submitter did not provide them.
type Descriptor struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DrugName              string               `json:"drug_name"`
	Indication            string               `json:"indication"`
	Phase                 string               `json:"phase"`
	StrategicGoals        []string             `json:"strategic_goals,omitempty"`
	Geographies           []string             `json:"geographies,omitempty"`
	TargetSubpopulation   string               `json:"target_subpopulation,omitempty"`
	Comparators           []string             `json:"comparators,omitempty"`
	BudgetCeilingUSD      *float64             `json:"budget_ceiling_usd,omitempty"`
	TimelineCeilingMonths *float64             `json:"timeline_ceiling_months,omitempty"`
	AnticipatedFPI        string               `json:"anticipated_fpi,omitempty"`
	LOEDate               string               `json:"loe_date,omitempty"`
	RegionalDeployment    []RegionalAllocation `json:"regional_deployment,omitempty"`
	VendorIDs             []string             `json:"vendor_ids,omitempty"`
	PICO                  PICO                 `json:"pico,omitempty"`
	EvidenceSources       []string             `json:"evidence_sources,omitempty"`
}

// Normalized is the fully specified record every calculator works from.
// Build it with Normalize; never construct one by hand outside tests.
type Normalized struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	DrugName            string   `json:"drug_name"`
	Indication          string   `json:"indication"`
	Phase               Phase    `json:"phase"`
	Goals               []Goal   `json:"goals"`
	Geographies         []string `json:"geographies"`
	TargetSubpopulation string   `json:"target_subpopulation"`
	Comparators         []string `json:"comparators"`
	VendorIDs           []string `json:"vendor_ids"`
	PICO                PICO     `json:"pico"`
	EvidenceSourceCount int      `json:"evidence_source_count"`

	BudgetCeilingUSD      float64 `json:"budget_ceiling_usd"`
	HasBudgetCeiling      bool    `json:"has_budget_ceiling"`
	TimelineCeilingMonths float64 `json:"timeline_ceiling_months"`
	HasTimelineCeiling    bool    `json:"has_timeline_ceiling"`

	FPIDate       time.Time `json:"fpi_date"`
	FPIOverridden bool      `json:"fpi_overridden"`
	LOEDate       time.Time `json:"loe_date"`
	LOEOverridden bool      `json:"loe_overridden"`
	AsOf          time.Time `json:"as_of"`

	Deployment []RegionalAllocation `json:"deployment"`

	Oncology          bool `json:"oncology"`
	HighCostTherapy   bool `json:"high_cost_therapy"`
	RealWorldEvidence bool `json:"real_world_evidence"`
	HasSubpopulation  bool `json:"has_subpopulation"`
	GeographyCount    int  `json:"geography_count"`
	ComparatorCount   int  `json:"comparator_count"`
}

func (n Normalized) HasGoal(g Goal) bool {
	for _, have := range n.Goals {
		if have == g {
			return true
		}
	}
	return false
}
