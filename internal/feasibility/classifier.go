package feasibility

import (
	"strings"

	"github.com/joelkehle/trialscope/internal/concept"
)

// TherapeuticProfile carries the area-level multipliers applied to sample
// size, per-patient cost and revenue.
type TherapeuticProfile struct {
	Area              string                    `json:"area"`
	SampleMultiplier  float64                   `json:"sample_multiplier"`
	PhaseCost         map[concept.Phase]float64 `json:"phase_cost_multiplier"`
	RevenueMultiplier float64                   `json:"revenue_multiplier"`
}

// CostMultiplier returns the per-patient cost multiplier for phase, 1 when
// the profile has no entry for it.
func (p TherapeuticProfile) CostMultiplier(phase concept.Phase) float64 {
	if v := p.PhaseCost[phase]; v > 0 {
		return v
	}
	return 1
}

type TherapeuticClassifier interface {
	Classify(n concept.Normalized) TherapeuticProfile
}

type areaRule struct {
	profile  TherapeuticProfile
	keywords []string
}

func phaseCost(i, ii, iii, iv float64) map[concept.Phase]float64 {
	return map[concept.Phase]float64{concept.PhaseI: i, concept.PhaseII: ii, concept.PhaseIII: iii, concept.PhaseIV: iv}
}

// areaRules are checked in order; the first rule with a keyword hit wins.
func areaRules() []areaRule {
	return []areaRule{
		{
			profile:  TherapeuticProfile{Area: "cell_gene_therapy", SampleMultiplier: 0.8, PhaseCost: phaseCost(1.6, 1.5, 1.4, 1.2), RevenueMultiplier: 1.4},
			keywords: []string{"car-t", "car t", "cell therapy", "gene therapy", "crispr", "aav", "lentivir", "gene editing"},
		},
		{
			profile:  TherapeuticProfile{Area: "oncology", SampleMultiplier: 1.0, PhaseCost: phaseCost(1.2, 1.15, 1.1, 1.0), RevenueMultiplier: 1.2},
			keywords: []string{"cancer", "oncology", "tumor", "tumour", "carcinoma", "lymphoma", "leukemia", "leukaemia", "melanoma", "sarcoma", "myeloma", "glioma", "neoplasm", "metastatic", "nsclc", "malignan"},
		},
		{
			profile:  TherapeuticProfile{Area: "rare_disease", SampleMultiplier: 0.6, PhaseCost: phaseCost(1.3, 1.3, 1.25, 1.1), RevenueMultiplier: 1.3},
			keywords: []string{"rare", "orphan", "duchenne", "cystic fibrosis", "spinal muscular", "huntington", "hemophilia", "haemophilia", "fabry", "gaucher", "pompe", "amyloidosis"},
		},
		{
			profile:  TherapeuticProfile{Area: "neurology", SampleMultiplier: 1.15, PhaseCost: phaseCost(1.1, 1.1, 1.1, 1.0), RevenueMultiplier: 1.1},
			keywords: []string{"alzheimer", "parkinson", "multiple sclerosis", "epilep", "migraine", "neuropath", "als ", "amyotrophic", "dementia", "stroke", "depress", "schizophren"},
		},
		{
			profile:  TherapeuticProfile{Area: "cardiovascular", SampleMultiplier: 1.3, PhaseCost: phaseCost(1.0, 1.0, 1.05, 0.95), RevenueMultiplier: 1.0},
			keywords: []string{"heart", "cardiac", "cardio", "hypertension", "atrial", "coronary", "myocardial", "thrombo", "lipid", "cholesterol"},
		},
		{
			profile:  TherapeuticProfile{Area: "immunology", SampleMultiplier: 1.0, PhaseCost: phaseCost(1.0, 1.0, 1.0, 0.95), RevenueMultiplier: 1.05},
			keywords: []string{"rheumatoid", "psoria", "lupus", "crohn", "colitis", "atopic", "dermatitis", "arthritis", "autoimmune", "asthma"},
		},
		{
			profile:  TherapeuticProfile{Area: "infectious_disease", SampleMultiplier: 1.1, PhaseCost: phaseCost(0.95, 0.9, 0.9, 0.85), RevenueMultiplier: 0.85},
			keywords: []string{"infect", "hiv", "hepatitis", "influenza", "covid", "sars", "tubercul", "bacterial", "viral", "fungal", "vaccine", "rsv"},
		},
		{
			profile:  TherapeuticProfile{Area: "metabolic", SampleMultiplier: 1.2, PhaseCost: phaseCost(0.95, 0.95, 0.95, 0.9), RevenueMultiplier: 0.95},
			keywords: []string{"diabet", "obesity", "nash", "mash", "metabolic", "insulin", "glp-1", "hba1c", "steatohepatitis"},
		},
	}
}

func defaultProfile() TherapeuticProfile {
	return TherapeuticProfile{Area: "default", SampleMultiplier: 1.0, PhaseCost: phaseCost(1, 1, 1, 1), RevenueMultiplier: 1.0}
}

// KeywordClassifier maps a concept to a therapeutic area by substring match
// over the drug name, indication and title.
type KeywordClassifier struct {
	rules    []areaRule
	fallback TherapeuticProfile
}

func NewKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{rules: areaRules(), fallback: defaultProfile()}
}

func (k KeywordClassifier) Classify(n concept.Normalized) TherapeuticProfile {
	text := strings.ToLower(n.DrugName + " " + n.Indication + " " + n.Title + " ")
	for _, r := range k.rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.profile
			}
		}
	}
	return k.fallback
}

// ProfileForArea returns the built-in profile for area, or the default one.
func ProfileForArea(area string) TherapeuticProfile {
	for _, r := range areaRules() {
		if r.profile.Area == area {
			return r.profile
		}
	}
	return defaultProfile()
}
