// Package benchmarks holds the static regional reference data the
// feasibility and commercial calculators consume: cost multipliers, pricing,
// FX and start-up lags per deployment region.
package benchmarks

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/joelkehle/trialscope/internal/concept"
)

//go:embed regions.toml
var defaultRegionsTOML []byte

type Region struct {
	ID                       string  `toml:"id" json:"id"`
	Name                     string  `toml:"name" json:"name"`
	Currency                 string  `toml:"currency" json:"currency"`
	FXRate                   float64 `toml:"fx_rate" json:"fx_rate"`
	VisitCostMultiplier      float64 `toml:"visit_cost_multiplier" json:"visit_cost_multiplier"`
	StartupCostMultiplier    float64 `toml:"startup_cost_multiplier" json:"startup_cost_multiplier"`
	MonitoringCostMultiplier float64 `toml:"monitoring_cost_multiplier" json:"monitoring_cost_multiplier"`
	RegulatoryCostMultiplier float64 `toml:"regulatory_cost_multiplier" json:"regulatory_cost_multiplier"`
	IncentiveCostMultiplier  float64 `toml:"incentive_cost_multiplier" json:"incentive_cost_multiplier"`
	PricingMultiplier        float64 `toml:"pricing_multiplier" json:"pricing_multiplier"`
	StartupLagMonths         float64 `toml:"startup_lag_months" json:"startup_lag_months"`
	LOEOffsetMonths          int     `toml:"loe_offset_months" json:"loe_offset_months"`
	CostBandLowUSD           float64 `toml:"cost_band_low_usd" json:"cost_band_low_usd"`
	CostBandHighUSD          float64 `toml:"cost_band_high_usd" json:"cost_band_high_usd"`
}

// Allocation is a resolved deployment entry: a known region and its share of
// patients, sites and spend. Weights across a resolved mix sum to 1.
type Allocation struct {
	Region Region
	Weight float64
}

type regionFile struct {
	Regions []Region `toml:"region"`
}

// Table is read-only after construction; lookups return copies.
type Table struct {
	regions map[string]Region
	order   []string
}

// Default returns the embedded benchmark table. The embedded file is part of
// the build, so a parse failure is a programming error.
func Default() *Table {
	t, err := Parse(defaultRegionsTOML)
	if err != nil {
		panic(fmt.Sprintf("benchmarks: embedded table invalid: %v", err))
	}
	return t
}

func Parse(data []byte) (*Table, error) {
	var f regionFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode benchmarks: %w", err)
	}
	t := &Table{regions: map[string]Region{}}
	for _, r := range f.Regions {
		if err := t.put(r); err != nil {
			return nil, err
		}
	}
	if _, ok := t.regions[concept.BaselineRegion]; !ok {
		return nil, fmt.Errorf("benchmarks: %s baseline region missing", concept.BaselineRegion)
	}
	return t, nil
}

// Load overlays the regions in path on top of the embedded defaults. Rows
// with an existing id replace the default row entirely.
func Load(path string) (*Table, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read benchmarks: %w", err)
	}
	var f regionFile
	if err := toml.Unmarshal(blob, &f); err != nil {
		return nil, fmt.Errorf("decode benchmarks %s: %w", path, err)
	}
	t := Default()
	for _, r := range f.Regions {
		if err := t.put(r); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return t, nil
}

func (t *Table) put(r Region) error {
	r.ID = strings.ToUpper(strings.TrimSpace(r.ID))
	if err := validateRegion(r); err != nil {
		return err
	}
	if _, exists := t.regions[r.ID]; !exists {
		t.order = append(t.order, r.ID)
	}
	t.regions[r.ID] = r
	return nil
}

func validateRegion(r Region) error {
	if r.ID == "" {
		return fmt.Errorf("benchmarks: region id required")
	}
	if strings.TrimSpace(r.Currency) == "" {
		return fmt.Errorf("benchmarks: region %s: currency required", r.ID)
	}
	positive := map[string]float64{
		"fx_rate":                    r.FXRate,
		"visit_cost_multiplier":      r.VisitCostMultiplier,
		"startup_cost_multiplier":    r.StartupCostMultiplier,
		"monitoring_cost_multiplier": r.MonitoringCostMultiplier,
		"regulatory_cost_multiplier": r.RegulatoryCostMultiplier,
		"incentive_cost_multiplier":  r.IncentiveCostMultiplier,
		"pricing_multiplier":         r.PricingMultiplier,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("benchmarks: region %s: %s must be > 0", r.ID, name)
		}
	}
	if r.StartupLagMonths < 0 {
		return fmt.Errorf("benchmarks: region %s: startup_lag_months must be >= 0", r.ID)
	}
	if r.CostBandLowUSD > r.CostBandHighUSD {
		return fmt.Errorf("benchmarks: region %s: cost band low exceeds high", r.ID)
	}
	return nil
}

func (t *Table) Lookup(id string) (Region, bool) {
	r, ok := t.regions[strings.ToUpper(strings.TrimSpace(id))]
	return r, ok
}

func (t *Table) Baseline() Region {
	return t.regions[concept.BaselineRegion]
}

// IDs lists region ids in file order.
func (t *Table) IDs() []string {
	return append([]string(nil), t.order...)
}

// Resolve maps a deployment mix onto known regions. Unknown ids are dropped
// and the remaining weights renormalised; when nothing matches, the baseline
// region carries the whole study.
func (t *Table) Resolve(mix []concept.RegionalAllocation) []Allocation {
	out := make([]Allocation, 0, len(mix))
	total := 0.0
	for _, a := range mix {
		r, ok := t.Lookup(a.RegionID)
		if !ok || a.Weight <= 0 {
			continue
		}
		out = append(out, Allocation{Region: r, Weight: a.Weight})
		total += a.Weight
	}
	if len(out) == 0 || total <= 0 {
		return []Allocation{{Region: t.Baseline(), Weight: 1}}
	}
	for i := range out {
		out[i].Weight /= total
	}
	return out
}
