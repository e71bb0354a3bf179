// Package feasibility estimates what a study concept will cost, how long it
// will take and how likely it is to finish, and hands the result to the
// commercial outlook.
package feasibility

import (
	"context"
	"math"

	"github.com/joelkehle/trialscope/internal/benchmarks"
	"github.com/joelkehle/trialscope/internal/commercial"
	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/samplesize"
)

// SampleSizer is satisfied by *samplesize.Service.
type SampleSizer interface {
	Size(ctx context.Context, n concept.Normalized) samplesize.Result
}

// Config wires the calculator's collaborators. Nil fields get the built-in
// defaults.
type Config struct {
	Tables     *Tables
	Benchmarks *benchmarks.Table
	Sizer      SampleSizer
	Classifier TherapeuticClassifier
	Vendors    VendorEngine
}

type Calculator struct {
	tables     Tables
	bench      *benchmarks.Table
	sizer      SampleSizer
	classifier TherapeuticClassifier
	vendors    VendorEngine
}

func NewCalculator(cfg Config) *Calculator {
	c := &Calculator{
		tables:     DefaultTables(),
		bench:      cfg.Benchmarks,
		sizer:      cfg.Sizer,
		classifier: cfg.Classifier,
		vendors:    cfg.Vendors,
	}
	if cfg.Tables != nil {
		c.tables = *cfg.Tables
	}
	if c.bench == nil {
		c.bench = benchmarks.Default()
	}
	if c.sizer == nil {
		c.sizer = samplesize.NewService(nil)
	}
	if c.classifier == nil {
		c.classifier = NewKeywordClassifier()
	}
	if c.vendors == nil {
		c.vendors = NewCatalogVendorEngine()
	}
	return c
}

// Classify exposes the therapeutic-area classification so callers can fetch
// area-specific commercial assumptions before estimating.
func (c *Calculator) Classify(n concept.Normalized) TherapeuticProfile {
	return c.classifier.Classify(n)
}

// Estimate runs the full pipeline. It never fails; the only blocking call is
// the sample sizer, which falls back internally.
func (c *Calculator) Estimate(ctx context.Context, n concept.Normalized, a commercial.Assumptions) Data {
	p := c.provisional(ctx, n)
	r := c.refine(p, a)
	return c.finalize(p, r)
}
