package benchmarks

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/joelkehle/trialscope/internal/concept"
)

func TestDefaultTableValidity(t *testing.T) {
	tbl := Default()
	base := tbl.Baseline()
	if base.ID != concept.BaselineRegion {
		t.Fatalf("baseline id = %q", base.ID)
	}
	if base.VisitCostMultiplier != 1 || base.PricingMultiplier != 1 || base.FXRate != 1 {
		t.Fatalf("baseline must be neutral: %+v", base)
	}
	for _, id := range tbl.IDs() {
		r, ok := tbl.Lookup(id)
		if !ok {
			t.Fatalf("%s listed but not found", id)
		}
		if r.StartupLagMonths <= 0 {
			t.Fatalf("%s: start-up lag should be positive", id)
		}
		if r.CostBandLowUSD <= 0 || r.CostBandLowUSD >= r.CostBandHighUSD {
			t.Fatalf("%s: invalid cost band", id)
		}
	}
}

func TestResolveRenormalisesKnownRegions(t *testing.T) {
	tbl := Default()
	got := tbl.Resolve([]concept.RegionalAllocation{
		{RegionID: "us", Weight: 0.5},
		{RegionID: "ATLANTIS", Weight: 0.25},
		{RegionID: "EU", Weight: 0.25},
	})
	if len(got) != 2 {
		t.Fatalf("expected unknown region dropped, got %d entries", len(got))
	}
	if math.Abs(got[0].Weight-2.0/3.0) > 1e-9 || got[1].Region.ID != "EU" {
		t.Fatalf("unexpected allocation %+v", got)
	}
}

func TestResolveFallsBackToBaseline(t *testing.T) {
	got := Default().Resolve([]concept.RegionalAllocation{{RegionID: "MARS", Weight: 1}})
	if len(got) != 1 || got[0].Region.ID != concept.BaselineRegion || got[0].Weight != 1 {
		t.Fatalf("expected baseline fallback, got %+v", got)
	}
	if got := Default().Resolve(nil); got[0].Region.ID != concept.BaselineRegion {
		t.Fatalf("empty mix should resolve to baseline, got %+v", got)
	}
}

func TestLoadOverridesAndAddsRegions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.toml")
	override := `
[[region]]
id = "eu"
name = "EU (negotiated)"
currency = "EUR"
fx_rate = 0.9
visit_cost_multiplier = 0.8
startup_cost_multiplier = 0.9
monitoring_cost_multiplier = 0.9
regulatory_cost_multiplier = 1.0
incentive_cost_multiplier = 0.7
pricing_multiplier = 0.9
startup_lag_months = 4.0
loe_offset_months = 3

[[region]]
id = "MENA"
name = "Middle East & North Africa"
currency = "AED"
fx_rate = 3.67
visit_cost_multiplier = 0.7
startup_cost_multiplier = 0.8
monitoring_cost_multiplier = 0.8
regulatory_cost_multiplier = 0.9
incentive_cost_multiplier = 0.6
pricing_multiplier = 0.6
startup_lag_months = 6.0
loe_offset_months = 0
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	eu, _ := tbl.Lookup("EU")
	if eu.VisitCostMultiplier != 0.8 || eu.Name != "EU (negotiated)" {
		t.Fatalf("override not applied: %+v", eu)
	}
	if _, ok := tbl.Lookup("mena"); !ok {
		t.Fatal("new region missing")
	}
	if _, ok := tbl.Lookup("JP"); !ok {
		t.Fatal("defaults should survive an overlay")
	}
}

func TestParseRejectsInvalidRows(t *testing.T) {
	_, err := Parse([]byte(`
[[region]]
id = "GLOBAL"
currency = "USD"
fx_rate = 0.0
visit_cost_multiplier = 1.0
startup_cost_multiplier = 1.0
monitoring_cost_multiplier = 1.0
regulatory_cost_multiplier = 1.0
incentive_cost_multiplier = 1.0
pricing_multiplier = 1.0
`))
	if err == nil {
		t.Fatal("expected zero fx rate to be rejected")
	}
	if _, err := Parse([]byte("")); err == nil {
		t.Fatal("expected missing baseline to be rejected")
	}
}
