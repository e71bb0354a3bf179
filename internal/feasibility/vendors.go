package feasibility

import (
	"strings"

	"github.com/joelkehle/trialscope/internal/concept"
)

// VendorScenario is one vendor's projected spend in three scenarios.
type VendorScenario struct {
	VendorID       string  `json:"vendor_id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	BaseUSD        float64 `json:"base_usd"`
	OptimisticUSD  float64 `json:"optimistic_usd"`
	PessimisticUSD float64 `json:"pessimistic_usd"`
}

type VendorEngine interface {
	Scenarios(vendorIDs []string, phase concept.Phase, baseSpendUSD, durationMonths float64) []VendorScenario
}

type vendorPricing struct {
	name         string
	category     string
	shareOfSpend float64
	monthlyUSD   float64
}

// CatalogVendorEngine prices vendors from a fixed catalogue. Vendors are
// either a share of base spend or a monthly fee over the study duration.
type CatalogVendorEngine struct {
	catalogue   map[string]vendorPricing
	phaseMult   map[concept.Phase]float64
	optimistic  float64
	pessimistic float64
}

func NewCatalogVendorEngine() CatalogVendorEngine {
	return CatalogVendorEngine{
		catalogue: map[string]vendorPricing{
			"cro_full_service": {name: "Full-service CRO", category: "cro", shareOfSpend: 0.12},
			"central_lab":      {name: "Central laboratory", category: "laboratory", shareOfSpend: 0.04},
			"imaging_core":     {name: "Imaging core lab", category: "imaging", shareOfSpend: 0.03},
			"site_network":     {name: "Site network / SMO", category: "sites", shareOfSpend: 0.06},
			"edc_platform":     {name: "EDC platform", category: "technology", monthlyUSD: 15000},
			"ecoa":             {name: "eCOA / ePRO", category: "technology", monthlyUSD: 8000},
			"irt":              {name: "IRT / RTSM", category: "technology", monthlyUSD: 5000},
		},
		phaseMult: map[concept.Phase]float64{
			concept.PhaseI: 0.9, concept.PhaseII: 1.0, concept.PhaseIII: 1.1, concept.PhaseIV: 0.85,
		},
		optimistic:  0.9,
		pessimistic: 1.2,
	}
}

func (c CatalogVendorEngine) Scenarios(vendorIDs []string, phase concept.Phase, baseSpendUSD, durationMonths float64) []VendorScenario {
	mult := c.phaseMult[phase]
	if mult <= 0 {
		mult = 1
	}
	seen := map[string]bool{}
	out := make([]VendorScenario, 0, len(vendorIDs))
	for _, raw := range vendorIDs {
		id := strings.ToLower(strings.TrimSpace(raw))
		v, ok := c.catalogue[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		base := (v.shareOfSpend*baseSpendUSD + v.monthlyUSD*durationMonths) * mult
		out = append(out, VendorScenario{
			VendorID:       id,
			Name:           v.name,
			Category:       v.category,
			BaseUSD:        base,
			OptimisticUSD:  base * c.optimistic,
			PessimisticUSD: base * c.pessimistic,
		})
	}
	return out
}
