package commercial

import "github.com/joelkehle/trialscope/internal/concept"

// StrategyProfile holds the goal-driven multipliers applied on top of the
// market assumptions. Build it with BuildProfile.
type StrategyProfile struct {
	Unlock             float64 `json:"unlock"`
	MaxSharePct        float64 `json:"max_share_pct"`
	Retention          float64 `json:"retention"`
	UptakeLagYears     float64 `json:"uptake_lag_years"`
	AccessDelayYears   float64 `json:"access_delay_years"`
	WindowMultiplier   float64 `json:"window_multiplier"`
	WindowCap          float64 `json:"window_cap"`
	EvidenceMultiplier float64 `json:"evidence_multiplier"`
	LabelConfidence    float64 `json:"label_confidence"`
	PracticeConfidence float64 `json:"practice_confidence"`
}

func baseProfile() StrategyProfile {
	return StrategyProfile{
		Unlock:             1,
		MaxSharePct:        35,
		WindowMultiplier:   1,
		WindowCap:          1.5,
		EvidenceMultiplier: 1,
		LabelConfidence:    0.5,
		PracticeConfidence: 0.5,
	}
}

var goalBumps = map[concept.Goal]func(p *StrategyProfile){
	concept.GoalLabelExpansion: func(p *StrategyProfile) {
		p.Unlock += 0.15
		p.LabelConfidence += 0.10
	},
	concept.GoalLifecycleManagement: func(p *StrategyProfile) {
		p.Unlock += 0.10
		p.LabelConfidence += 0.05
	},
	concept.GoalInitialApproval: func(p *StrategyProfile) {
		p.Unlock += 0.20
		p.LabelConfidence += 0.15
	},
	concept.GoalAccelerateUptake: func(p *StrategyProfile) {
		p.UptakeLagYears -= 0.5
	},
	concept.GoalCompetitiveDifferentiation: func(p *StrategyProfile) {
		p.UptakeLagYears -= 0.25
		p.MaxSharePct += 3
	},
	concept.GoalMarketDefense: func(p *StrategyProfile) {
		p.Retention += 0.10
		p.WindowMultiplier += 0.10
	},
	concept.GoalRealWorldEvidence: func(p *StrategyProfile) {
		p.EvidenceMultiplier += 0.15
		p.PracticeConfidence += 0.10
	},
	concept.GoalMarketAccess: func(p *StrategyProfile) {
		p.AccessDelayYears -= 0.5
	},
	concept.GoalClinicalGuideline: func(p *StrategyProfile) {
		p.MaxSharePct += 5
		p.PracticeConfidence += 0.05
	},
	concept.GoalPatentExtension: func(p *StrategyProfile) {
		p.WindowCap += 0.25
		p.Retention += 0.05
	},
	concept.GoalBiomarkerValidation: func(p *StrategyProfile) {
		p.MaxSharePct += 3
		p.LabelConfidence += 0.05
	},
}

// BuildProfile starts from the neutral profile, applies one additive bump per
// recognised goal and clamps every field at the end. Unknown goals are ignored.
func BuildProfile(goals []concept.Goal) StrategyProfile {
	p := baseProfile()
	for _, g := range goals {
		if bump, ok := goalBumps[g]; ok {
			bump(&p)
		}
	}
	return clampProfile(p)
}

func clampProfile(p StrategyProfile) StrategyProfile {
	p.Unlock = clamp(p.Unlock, 0.5, 2)
	p.MaxSharePct = clamp(p.MaxSharePct, 5, 60)
	p.Retention = clamp(p.Retention, 0, 0.5)
	p.UptakeLagYears = clamp(p.UptakeLagYears, -1, 3)
	p.AccessDelayYears = clamp(p.AccessDelayYears, -1, 2)
	p.WindowMultiplier = clamp(p.WindowMultiplier, 0.5, 2)
	p.WindowCap = clamp(p.WindowCap, 1, 2.5)
	p.EvidenceMultiplier = clamp(p.EvidenceMultiplier, 0.8, 1.6)
	p.LabelConfidence = clamp(p.LabelConfidence, 0, 1)
	p.PracticeConfidence = clamp(p.PracticeConfidence, 0, 1)
	return p
}
