package concept

import (
	"strings"
	"time"
)

const (
	defaultFPIOffsetMonths = 12
	defaultLOEOffsetYears  = 10
)

var goalAliases = map[string]Goal{
	"rwe":                   GoalRealWorldEvidence,
	"real_world_data":       GoalRealWorldEvidence,
	"uptake_acceleration":   GoalAccelerateUptake,
	"market_access_enabler": GoalMarketAccess,
	"guideline_change":      GoalClinicalGuideline,
	"guideline_inclusion":   GoalClinicalGuideline,
	"lifecycle":             GoalLifecycleManagement,
	"loe_extension":         GoalPatentExtension,
	"biomarker":             GoalBiomarkerValidation,
}

// Normalize applies every defaulting rule once so downstream formulas never
// have to check for missing input. now anchors the default FPI and LOE dates.
func Normalize(d Descriptor, now time.Time) Normalized {
	now = now.UTC()
	n := Normalized{
		ID:                  strings.TrimSpace(d.ID),
		Title:               strings.TrimSpace(d.Title),
		DrugName:            strings.TrimSpace(d.DrugName),
		Indication:          strings.TrimSpace(d.Indication),
		Phase:               ParsePhase(d.Phase),
		Goals:               normalizeGoals(d.StrategicGoals),
		Geographies:         normalizeGeographies(d.Geographies),
		TargetSubpopulation: strings.TrimSpace(d.TargetSubpopulation),
		Comparators:         nonEmpty(d.Comparators),
		VendorIDs:           nonEmpty(d.VendorIDs),
		PICO:                d.PICO,
		EvidenceSourceCount: len(nonEmpty(d.EvidenceSources)),
		AsOf:                now,
		Deployment:          normalizeDeployment(d.RegionalDeployment),
	}
	if d.BudgetCeilingUSD != nil && *d.BudgetCeilingUSD > 0 {
		n.BudgetCeilingUSD = *d.BudgetCeilingUSD
		n.HasBudgetCeiling = true
	}
	if d.TimelineCeilingMonths != nil && *d.TimelineCeilingMonths > 0 {
		n.TimelineCeilingMonths = *d.TimelineCeilingMonths
		n.HasTimelineCeiling = true
	}

	if t, ok := ParseDate(d.AnticipatedFPI); ok {
		n.FPIDate, n.FPIOverridden = t, true
	} else {
		n.FPIDate = now.AddDate(0, defaultFPIOffsetMonths, 0)
	}
	if t, ok := ParseDate(d.LOEDate); ok {
		n.LOEDate, n.LOEOverridden = t, true
	} else {
		n.LOEDate = now.AddDate(defaultLOEOffsetYears, 0, 0)
	}

	n.Oncology = IsOncology(n.Indication, n.Title)
	n.HighCostTherapy = IsHighCostTherapy(n.DrugName, n.Indication, n.Title)
	n.RealWorldEvidence = IsRealWorldEvidence(n.Goals)
	n.HasSubpopulation = n.TargetSubpopulation != ""
	n.GeographyCount = len(n.Geographies)
	n.ComparatorCount = len(n.Comparators)
	return n
}

// ParsePhase accepts the spellings seen in concept intake forms. Combined
// phases resolve to the later phase; anything unrecognised is Phase II.
func ParsePhase(raw string) Phase {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "PHASE")
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "/-"); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	switch s {
	case "I", "1", "IA", "IB", "1A", "1B":
		return PhaseI
	case "II", "2", "IIA", "IIB", "2A", "2B":
		return PhaseII
	case "III", "3", "IIIA", "IIIB", "3A", "3B":
		return PhaseIII
	case "IV", "4":
		return PhaseIV
	default:
		return PhaseII
	}
}

// ParseDate reads an ISO-8601 calendar date (or full RFC3339 timestamp) as UTC.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func normalizeGoals(raw []string) []Goal {
	out := make([]Goal, 0, len(raw))
	seen := map[Goal]bool{}
	for _, r := range raw {
		key := strings.ToLower(strings.TrimSpace(r))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		if key == "" {
			continue
		}
		g := Goal(key)
		if alias, ok := goalAliases[key]; ok {
			g = alias
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

func normalizeGeographies(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := map[string]bool{}
	for _, r := range raw {
		g := strings.ToUpper(strings.TrimSpace(r))
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	if len(out) == 0 {
		return []string{"US"}
	}
	return out
}

func normalizeDeployment(raw []RegionalAllocation) []RegionalAllocation {
	total := 0.0
	kept := make([]RegionalAllocation, 0, len(raw))
	for _, a := range raw {
		id := strings.ToUpper(strings.TrimSpace(a.RegionID))
		if id == "" || a.Weight <= 0 {
			continue
		}
		kept = append(kept, RegionalAllocation{RegionID: id, Weight: a.Weight})
		total += a.Weight
	}
	if len(kept) == 0 {
		return []RegionalAllocation{{RegionID: BaselineRegion, Weight: 1}}
	}
	if total < 1e-9 {
		total = 1e-9
	}
	for i := range kept {
		kept[i].Weight /= total
	}
	return kept
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
