package feasibility

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/samplesize"
)

// CostRow holds per-patient costs for one endpoint family.
type CostRow struct {
	Standard         float64 `toml:"standard" json:"standard"`
	Oncology         float64 `toml:"oncology" json:"oncology"`
	HighCost         float64 `toml:"high_cost" json:"high_cost"`
	OncologyHighCost float64 `toml:"oncology_high_cost" json:"oncology_high_cost"`
}

func (r CostRow) pick(oncology, highCost bool) float64 {
	switch {
	case oncology && highCost:
		return r.OncologyHighCost
	case highCost:
		return r.HighCost
	case oncology:
		return r.Oncology
	default:
		return r.Standard
	}
}

// ComponentSplit divides variable spend into the four non-fixed components.
// It is also used for the per-component minimums.
type ComponentSplit struct {
	Personnel  float64 `toml:"personnel" json:"personnel"`
	Material   float64 `toml:"material" json:"material"`
	Monitoring float64 `toml:"monitoring" json:"monitoring"`
	Data       float64 `toml:"data" json:"data"`
}

// Tables is the operational reference data the calculator runs on. Build it
// with DefaultTables or LoadTables and treat it as read-only afterwards.
type Tables struct {
	PatientsPerSite        map[concept.Phase]float64
	PhaseCostMultiplier    map[concept.Phase]float64
	RecruitmentBaseline    map[concept.Phase]float64
	CompletionRiskBaseline map[concept.Phase]float64
	CostPerPatient         map[samplesize.EndpointType]CostRow
	FollowUpMonths         map[samplesize.EndpointType]float64

	SiteSetupBaseUSD    float64
	RegulatoryBaseUSD   float64
	PatientIncentiveUSD float64
	MonitoringShare     float64

	OncologySplit   ComponentSplit
	StandardSplit   ComponentSplit
	ComponentFloors ComponentSplit
}

func DefaultTables() Tables {
	return Tables{
		PatientsPerSite: map[concept.Phase]float64{
			concept.PhaseI: 6, concept.PhaseII: 10, concept.PhaseIII: 15, concept.PhaseIV: 25,
		},
		PhaseCostMultiplier: map[concept.Phase]float64{
			concept.PhaseI: 1.30, concept.PhaseII: 1.00, concept.PhaseIII: 1.15, concept.PhaseIV: 0.80,
		},
		RecruitmentBaseline: map[concept.Phase]float64{
			concept.PhaseI: 0.80, concept.PhaseII: 0.75, concept.PhaseIII: 0.70, concept.PhaseIV: 0.65,
		},
		CompletionRiskBaseline: map[concept.Phase]float64{
			concept.PhaseI: 0.40, concept.PhaseII: 0.30, concept.PhaseIII: 0.25, concept.PhaseIV: 0.20,
		},
		CostPerPatient: map[samplesize.EndpointType]CostRow{
			samplesize.EndpointSurvival:     {Standard: 45000, Oncology: 65000, HighCost: 90000, OncologyHighCost: 120000},
			samplesize.EndpointResponseRate: {Standard: 30000, Oncology: 50000, HighCost: 70000, OncologyHighCost: 95000},
			samplesize.EndpointContinuous:   {Standard: 25000, Oncology: 40000, HighCost: 55000, OncologyHighCost: 75000},
			samplesize.EndpointSafety:       {Standard: 20000, Oncology: 35000, HighCost: 50000, OncologyHighCost: 70000},
			samplesize.EndpointBiomarker:    {Standard: 30000, Oncology: 45000, HighCost: 60000, OncologyHighCost: 80000},
		},
		FollowUpMonths: map[samplesize.EndpointType]float64{
			samplesize.EndpointSurvival:     24,
			samplesize.EndpointResponseRate: 12,
			samplesize.EndpointContinuous:   6,
			samplesize.EndpointBiomarker:    6,
			samplesize.EndpointSafety:       3,
		},
		SiteSetupBaseUSD:    25000,
		RegulatoryBaseUSD:   150000,
		PatientIncentiveUSD: 500,
		MonitoringShare:     0.15,
		OncologySplit:       ComponentSplit{Personnel: 0.40, Material: 0.25, Monitoring: 0.20, Data: 0.15},
		StandardSplit:       ComponentSplit{Personnel: 0.45, Material: 0.15, Monitoring: 0.25, Data: 0.15},
		ComponentFloors:     ComponentSplit{Personnel: 50000, Material: 20000, Monitoring: 30000, Data: 25000},
	}
}

func (t Tables) patientsPerSite(p concept.Phase) float64 {
	if v := t.PatientsPerSite[p]; v > 0 {
		return v
	}
	return t.PatientsPerSite[concept.PhaseII]
}

func (t Tables) phaseCostMultiplier(p concept.Phase) float64 {
	if v := t.PhaseCostMultiplier[p]; v > 0 {
		return v
	}
	return 1
}

func (t Tables) costPerPatient(e samplesize.EndpointType, oncology, highCost bool) float64 {
	row, ok := t.CostPerPatient[e]
	if !ok {
		row = t.CostPerPatient[samplesize.EndpointContinuous]
	}
	return row.pick(oncology, highCost)
}

func (t Tables) followUpMonths(e samplesize.EndpointType) float64 {
	return t.FollowUpMonths[e]
}

func (t Tables) split(oncology bool) ComponentSplit {
	if oncology {
		return t.OncologySplit
	}
	return t.StandardSplit
}

// tablesFile mirrors Tables for TOML overrides. Phase-keyed maps use the
// short numerals ("I".."IV"); absent keys keep their default.
type tablesFile struct {
	PatientsPerSite        map[string]float64 `toml:"patients_per_site"`
	PhaseCostMultiplier    map[string]float64 `toml:"phase_cost_multiplier"`
	RecruitmentBaseline    map[string]float64 `toml:"recruitment_baseline"`
	CompletionRiskBaseline map[string]float64 `toml:"completion_risk_baseline"`
	CostPerPatient         map[string]CostRow `toml:"cost_per_patient"`
	FollowUpMonths         map[string]float64 `toml:"follow_up_months"`

	SiteSetupBaseUSD    *float64 `toml:"site_setup_base_usd"`
	RegulatoryBaseUSD   *float64 `toml:"regulatory_base_usd"`
	PatientIncentiveUSD *float64 `toml:"patient_incentive_usd"`
	MonitoringShare     *float64 `toml:"monitoring_share"`

	OncologySplit   *ComponentSplit `toml:"oncology_split"`
	StandardSplit   *ComponentSplit `toml:"standard_split"`
	ComponentFloors *ComponentSplit `toml:"component_floors"`
}

// LoadTables overlays a TOML file on DefaultTables.
func LoadTables(path string) (Tables, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read feasibility tables: %w", err)
	}
	return ParseTables(blob)
}

func ParseTables(data []byte) (Tables, error) {
	var f tablesFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return Tables{}, fmt.Errorf("decode feasibility tables: %w", err)
	}
	t := DefaultTables()
	for _, m := range []struct {
		src map[string]float64
		dst map[concept.Phase]float64
	}{
		{f.PatientsPerSite, t.PatientsPerSite},
		{f.PhaseCostMultiplier, t.PhaseCostMultiplier},
		{f.RecruitmentBaseline, t.RecruitmentBaseline},
		{f.CompletionRiskBaseline, t.CompletionRiskBaseline},
	} {
		for k, v := range m.src {
			m.dst[concept.ParsePhase(k)] = v
		}
	}
	for k, v := range f.CostPerPatient {
		e := samplesize.EndpointType(k)
		if !e.Valid() {
			return Tables{}, fmt.Errorf("feasibility tables: unknown endpoint %q", k)
		}
		t.CostPerPatient[e] = v
	}
	for k, v := range f.FollowUpMonths {
		e := samplesize.EndpointType(k)
		if !e.Valid() {
			return Tables{}, fmt.Errorf("feasibility tables: unknown endpoint %q", k)
		}
		t.FollowUpMonths[e] = v
	}
	setIf(&t.SiteSetupBaseUSD, f.SiteSetupBaseUSD)
	setIf(&t.RegulatoryBaseUSD, f.RegulatoryBaseUSD)
	setIf(&t.PatientIncentiveUSD, f.PatientIncentiveUSD)
	setIf(&t.MonitoringShare, f.MonitoringShare)
	if f.OncologySplit != nil {
		t.OncologySplit = *f.OncologySplit
	}
	if f.StandardSplit != nil {
		t.StandardSplit = *f.StandardSplit
	}
	if f.ComponentFloors != nil {
		t.ComponentFloors = *f.ComponentFloors
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

func setIf(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func (t Tables) Validate() error {
	for p, v := range t.PatientsPerSite {
		if v <= 0 {
			return fmt.Errorf("feasibility tables: patients_per_site[%s] must be > 0", p)
		}
	}
	for e, row := range t.CostPerPatient {
		if row.Standard <= 0 || row.Oncology <= 0 || row.HighCost <= 0 || row.OncologyHighCost <= 0 {
			return fmt.Errorf("feasibility tables: cost_per_patient[%s] must be > 0", e)
		}
	}
	for name, s := range map[string]ComponentSplit{"oncology_split": t.OncologySplit, "standard_split": t.StandardSplit} {
		sum := s.Personnel + s.Material + s.Monitoring + s.Data
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("feasibility tables: %s must sum to 1, got %.3f", name, sum)
		}
	}
	if t.SiteSetupBaseUSD <= 0 || t.RegulatoryBaseUSD <= 0 {
		return fmt.Errorf("feasibility tables: site and regulatory base costs must be > 0")
	}
	return nil
}
