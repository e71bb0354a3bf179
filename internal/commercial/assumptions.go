package commercial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/llm"
)

type AssumptionSource string

const (
	SourceDefaultTable AssumptionSource = "default_table"
	SourceAIGenerated  AssumptionSource = "ai_generated"
)

// Assumptions are the market inputs for one concept. AddressablePatients is
// the annual treated population the study result can influence.
type Assumptions struct {
	AddressablePatients  float64          `json:"addressable_patients"`
	RevenuePerPatientUSD float64          `json:"revenue_per_patient_usd"`
	PeakSharePct         float64          `json:"peak_share_pct"`
	ImpactDurationYears  float64          `json:"impact_duration_years"`
	AccessDelayMonths    float64          `json:"access_delay_months"`
	UptakeRampYears      float64          `json:"uptake_ramp_years"`
	Confidence           float64          `json:"confidence"`
	Rationale            string           `json:"rationale,omitempty"`
	Source               AssumptionSource `json:"source"`
}

func (a Assumptions) Validate() error {
	var errs []string
	if a.AddressablePatients <= 0 {
		errs = append(errs, "addressable_patients must be > 0")
	}
	if a.RevenuePerPatientUSD <= 0 {
		errs = append(errs, "revenue_per_patient_usd must be > 0")
	}
	if a.PeakSharePct <= 0 || a.PeakSharePct > 100 {
		errs = append(errs, "peak_share_pct must be in (0, 100]")
	}
	if a.ImpactDurationYears <= 0 {
		errs = append(errs, "impact_duration_years must be > 0")
	}
	if a.AccessDelayMonths < 0 {
		errs = append(errs, "access_delay_months must be >= 0")
	}
	if a.UptakeRampYears < 0 {
		errs = append(errs, "uptake_ramp_years must be >= 0")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		errs = append(errs, "confidence must be in [0, 1]")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// AssumptionsSource supplies market assumptions for a concept in a given
// therapeutic area.
type AssumptionsSource interface {
	Assumptions(ctx context.Context, n concept.Normalized, area string) (Assumptions, error)
}

var defaultAssumptions = map[string]Assumptions{
	"oncology": {
		AddressablePatients: 12000, RevenuePerPatientUSD: 95000, PeakSharePct: 12,
		ImpactDurationYears: 6, AccessDelayMonths: 9, UptakeRampYears: 1.5, Confidence: 0.6,
	},
	"cell_gene_therapy": {
		AddressablePatients: 1500, RevenuePerPatientUSD: 400000, PeakSharePct: 15,
		ImpactDurationYears: 6, AccessDelayMonths: 12, UptakeRampYears: 2, Confidence: 0.5,
	},
	"rare_disease": {
		AddressablePatients: 2500, RevenuePerPatientUSD: 180000, PeakSharePct: 25,
		ImpactDurationYears: 8, AccessDelayMonths: 9, UptakeRampYears: 1.5, Confidence: 0.55,
	},
	"neurology": {
		AddressablePatients: 40000, RevenuePerPatientUSD: 30000, PeakSharePct: 8,
		ImpactDurationYears: 7, AccessDelayMonths: 9, UptakeRampYears: 2, Confidence: 0.5,
	},
	"cardiovascular": {
		AddressablePatients: 150000, RevenuePerPatientUSD: 6000, PeakSharePct: 6,
		ImpactDurationYears: 8, AccessDelayMonths: 6, UptakeRampYears: 2, Confidence: 0.6,
	},
	"immunology": {
		AddressablePatients: 60000, RevenuePerPatientUSD: 25000, PeakSharePct: 8,
		ImpactDurationYears: 7, AccessDelayMonths: 6, UptakeRampYears: 1.5, Confidence: 0.6,
	},
	"infectious_disease": {
		AddressablePatients: 80000, RevenuePerPatientUSD: 4000, PeakSharePct: 10,
		ImpactDurationYears: 5, AccessDelayMonths: 6, UptakeRampYears: 1, Confidence: 0.55,
	},
	"metabolic": {
		AddressablePatients: 200000, RevenuePerPatientUSD: 3500, PeakSharePct: 5,
		ImpactDurationYears: 8, AccessDelayMonths: 6, UptakeRampYears: 2, Confidence: 0.6,
	},
	"default": {
		AddressablePatients: 30000, RevenuePerPatientUSD: 20000, PeakSharePct: 8,
		ImpactDurationYears: 6, AccessDelayMonths: 9, UptakeRampYears: 1.5, Confidence: 0.5,
	},
}

// DefaultAssumptionsFor returns the table row for area, falling back to the
// "default" row for unknown areas.
func DefaultAssumptionsFor(area string) Assumptions {
	a, ok := defaultAssumptions[strings.ToLower(strings.TrimSpace(area))]
	if !ok {
		a = defaultAssumptions["default"]
	}
	a.Source = SourceDefaultTable
	return a
}

// DefaultAssumptions serves the static per-area table. It never fails.
type DefaultAssumptions struct{}

func (DefaultAssumptions) Assumptions(_ context.Context, _ concept.Normalized, area string) (Assumptions, error) {
	return DefaultAssumptionsFor(area), nil
}

const assumptionsSystemPrompt = `You are a pharmaceutical market analyst. You estimate the incremental commercial opportunity a clinical study could unlock. Be conservative and always answer with a single JSON object and nothing else.`

// AIAssumptions asks a language model for market assumptions. The default
// table row for the area is included in the prompt as an anchor.
type AIAssumptions struct {
	exec *llm.StageExecutor
}

func NewAIAssumptions(caller llm.Caller) *AIAssumptions {
	return &AIAssumptions{exec: llm.NewStageExecutor(caller)}
}

func NewAnthropicAssumptions() (*AIAssumptions, error) {
	caller, err := llm.NewAnthropicCallerFromEnv(assumptionsSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("commercial assumptions: %w", err)
	}
	return NewAIAssumptions(caller), nil
}

func (a *AIAssumptions) Assumptions(ctx context.Context, n concept.Normalized, area string) (Assumptions, error) {
	var out Assumptions
	_, err := a.exec.Run(ctx, "commercial_assumptions", assumptionsPrompt(n, area), &out, func() error {
		return out.Validate()
	})
	if err != nil {
		return Assumptions{}, err
	}
	out.Source = SourceAIGenerated
	return out, nil
}

func assumptionsPrompt(n concept.Normalized, area string) string {
	anchor := DefaultAssumptionsFor(area)
	summary := map[string]any{
		"title":            n.Title,
		"drug_name":        n.DrugName,
		"indication":       n.Indication,
		"phase":            n.Phase,
		"strategic_goals":  n.Goals,
		"geographies":      n.Geographies,
		"therapeutic_area": area,
	}
	if n.HasSubpopulation {
		summary["target_subpopulation"] = n.TargetSubpopulation
	}
	return fmt.Sprintf(`Estimate the incremental market opportunity this study would unlock if it succeeds.

Concept:
%s

Typical values for this therapeutic area (adjust them to the concept):
%s

Return JSON:
{
  "addressable_patients": <annual treated patients the result can influence>,
  "revenue_per_patient_usd": <annual net revenue per treated patient>,
  "peak_share_pct": <peak share of addressable patients, 0-100>,
  "impact_duration_years": <years the result keeps driving sales>,
  "access_delay_months": <months from readout to reimbursed access>,
  "uptake_ramp_years": <years to reach peak share>,
  "confidence": <0-1>,
  "rationale": "<one or two sentences>"
}`, llm.MustJSON(summary), llm.MustJSON(anchor))
}
