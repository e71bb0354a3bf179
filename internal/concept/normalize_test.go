package concept

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

func TestParsePhase(t *testing.T) {
	cases := map[string]Phase{
		"Phase I":     PhaseI,
		"phase 1":     PhaseI,
		"Phase Ib":    PhaseI,
		"Phase I/II":  PhaseII,
		"2b":          PhaseII,
		"PHASE III":   PhaseIII,
		"Phase II-3":  PhaseIII,
		"Phase IV":    PhaseIV,
		"":            PhaseII,
		"exploratory": PhaseII,
	}
	for in, want := range cases {
		if got := ParsePhase(in); got != want {
			t.Errorf("ParsePhase(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNormalizeDefaults(t *testing.T) {
	n := Normalize(Descriptor{ID: " C-1 "}, fixedNow)
	if n.ID != "C-1" {
		t.Fatalf("id not trimmed: %q", n.ID)
	}
	if n.Phase != PhaseII {
		t.Fatalf("expected Phase II default, got %s", n.Phase)
	}
	if n.GeographyCount != 1 || n.Geographies[0] != "US" {
		t.Fatalf("expected default US geography, got %v", n.Geographies)
	}
	if len(n.Deployment) != 1 || n.Deployment[0].RegionID != BaselineRegion || n.Deployment[0].Weight != 1 {
		t.Fatalf("expected baseline deployment, got %+v", n.Deployment)
	}
	if !n.FPIDate.Equal(fixedNow.AddDate(0, 12, 0)) || n.FPIOverridden {
		t.Fatalf("unexpected FPI default %s", n.FPIDate)
	}
	if !n.LOEDate.Equal(fixedNow.AddDate(10, 0, 0)) || n.LOEOverridden {
		t.Fatalf("unexpected LOE default %s", n.LOEDate)
	}
	if n.HasBudgetCeiling || n.HasTimelineCeiling {
		t.Fatal("ceilings should be absent")
	}
}

func TestNormalizeInvalidDatesFallBack(t *testing.T) {
	n := Normalize(Descriptor{AnticipatedFPI: "next spring", LOEDate: "2031-13-40"}, fixedNow)
	if n.FPIOverridden || n.LOEOverridden {
		t.Fatal("invalid dates must not count as overrides")
	}
	if !n.FPIDate.Equal(fixedNow.AddDate(0, 12, 0)) {
		t.Fatalf("unexpected FPI %s", n.FPIDate)
	}
}

func TestNormalizeParsesDatesAsUTC(t *testing.T) {
	n := Normalize(Descriptor{AnticipatedFPI: "2027-01-10", LOEDate: "2034-06-30T00:00:00+02:00"}, fixedNow)
	if !n.FPIOverridden || !n.FPIDate.Equal(time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected FPI %s", n.FPIDate)
	}
	if !n.LOEOverridden || n.LOEDate.Location() != time.UTC || n.LOEDate.Hour() != 22 {
		t.Fatalf("unexpected LOE %s", n.LOEDate)
	}
}

func TestNormalizeGoalsAndGeographies(t *testing.T) {
	budget := -5.0
	n := Normalize(Descriptor{
		StrategicGoals:   []string{"Label Expansion", "rwe", "real-world-evidence", " "},
		Geographies:      []string{"us", "EU", "US", ""},
		Comparators:      []string{"placebo", " "},
		BudgetCeilingUSD: &budget,
	}, fixedNow)
	if len(n.Goals) != 2 || n.Goals[0] != GoalLabelExpansion || n.Goals[1] != GoalRealWorldEvidence {
		t.Fatalf("unexpected goals %v", n.Goals)
	}
	if !n.RealWorldEvidence {
		t.Fatal("expected RWE flag")
	}
	if n.GeographyCount != 2 {
		t.Fatalf("expected 2 geographies, got %v", n.Geographies)
	}
	if n.ComparatorCount != 1 {
		t.Fatalf("expected 1 comparator, got %d", n.ComparatorCount)
	}
	if n.HasBudgetCeiling {
		t.Fatal("negative ceiling must be ignored")
	}
}

func TestNormalizeDeploymentWeights(t *testing.T) {
	n := Normalize(Descriptor{RegionalDeployment: []RegionalAllocation{
		{RegionID: "us", Weight: 3},
		{RegionID: "eu", Weight: 1},
		{RegionID: "jp", Weight: 0},
	}}, fixedNow)
	if len(n.Deployment) != 2 {
		t.Fatalf("zero-weight region should be dropped: %+v", n.Deployment)
	}
	if n.Deployment[0].RegionID != "US" || n.Deployment[0].Weight != 0.75 {
		t.Fatalf("unexpected first allocation %+v", n.Deployment[0])
	}
}

func TestClassifiers(t *testing.T) {
	if !IsOncology("Metastatic NSCLC", "") {
		t.Fatal("expected oncology")
	}
	if !IsOncology("", "Relapsed multiple myeloma study") {
		t.Fatal("title keywords should count")
	}
	if IsOncology("Type 2 diabetes", "HbA1c reduction") {
		t.Fatal("diabetes is not oncology")
	}
	if !IsHighCostTherapy("Autologous CAR-T product", "", "") {
		t.Fatal("expected high-cost therapy")
	}
	if IsHighCostTherapy("metformin", "Type 2 diabetes", "") {
		t.Fatal("metformin is not high-cost")
	}
}
