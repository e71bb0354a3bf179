// Package evaluation runs a concept through sample sizing, feasibility, the
// commercial outlook and MCDA scoring, one concept at a time or as a ranked
// batch.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/trialscope/internal/commercial"
	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/feasibility"
	"github.com/joelkehle/trialscope/internal/mcda"
)

const (
	TracerName         = "trialscope/evaluation"
	DefaultParallelism = 4
)

var ErrMissingConceptID = errors.New("concept id is required")

type Config struct {
	Feasibility *feasibility.Calculator
	Assumptions commercial.AssumptionsSource
	Scorer      *mcda.Scorer
	Tracer      trace.Tracer
	Now         func() time.Time
	NewID       func() string
	Parallelism int
}

type Service struct {
	feasibility *feasibility.Calculator
	assumptions commercial.AssumptionsSource
	scorer      *mcda.Scorer
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
	parallelism int
}

func NewService(cfg Config) (*Service, error) {
	s := &Service{
		feasibility: cfg.Feasibility,
		assumptions: cfg.Assumptions,
		scorer:      cfg.Scorer,
		tracer:      cfg.Tracer,
		now:         cfg.Now,
		newID:       cfg.NewID,
		parallelism: cfg.Parallelism,
	}
	if s.feasibility == nil {
		s.feasibility = feasibility.NewCalculator(feasibility.Config{})
	}
	if s.assumptions == nil {
		s.assumptions = commercial.DefaultAssumptions{}
	}
	if s.scorer == nil {
		scorer, err := mcda.NewScorer(mcda.DefaultWeights())
		if err != nil {
			return nil, fmt.Errorf("evaluation: %w", err)
		}
		s.scorer = scorer
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(TracerName)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	if s.parallelism <= 0 {
		s.parallelism = DefaultParallelism
	}
	return s, nil
}

// Evaluate never fails on content: missing dates, unknown regions and a
// failing assumptions source all degrade to defaults. The only error is a
// concept without an id.
func (s *Service) Evaluate(ctx context.Context, d concept.Descriptor) (Evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.Evaluate", trace.WithAttributes(
		attribute.String("concept.id", d.ID),
		attribute.String("concept.phase", d.Phase),
	))
	defer span.End()

	if strings.TrimSpace(d.ID) == "" {
		span.RecordError(ErrMissingConceptID)
		span.SetStatus(codes.Error, ErrMissingConceptID.Error())
		return Evaluation{}, ErrMissingConceptID
	}

	now := s.now().UTC()
	n := concept.Normalize(d, now)

	var profile feasibility.TherapeuticProfile
	s.stage(ctx, "classify", func(context.Context, trace.Span) {
		profile = s.feasibility.Classify(n)
	})

	var a commercial.Assumptions
	s.stage(ctx, "assumptions", func(ctx context.Context, sp trace.Span) {
		a = s.fetchAssumptions(ctx, n, profile.Area)
		sp.SetAttributes(attribute.String("assumptions.source", string(a.Source)))
	})

	var f feasibility.Data
	s.stage(ctx, "feasibility", func(ctx context.Context, sp trace.Span) {
		f = s.feasibility.Estimate(ctx, n, a)
		sp.SetAttributes(
			attribute.Int("feasibility.patients", f.Patients),
			attribute.String("samplesize.source", string(f.SampleSize.Source)),
			attribute.Float64("feasibility.estimated_cost_usd", f.EstimatedCostUSD),
		)
	})

	var score mcda.Score
	s.stage(ctx, "mcda", func(_ context.Context, sp trace.Span) {
		score = s.scorer.Score(n, f)
		sp.SetAttributes(
			attribute.Float64("mcda.overall", score.Overall),
			attribute.String("mcda.recommendation", string(score.Recommendation.Level)),
		)
	})

	span.SetAttributes(attribute.String("therapeutic.area", profile.Area))
	return Evaluation{
		ID:          s.newID(),
		ConceptID:   n.ID,
		Title:       n.Title,
		EvaluatedAt: now,
		Concept:     n,
		Feasibility: f,
		Score:       score,
	}, nil
}

func (s *Service) stage(ctx context.Context, name string, fn func(context.Context, trace.Span)) {
	ctx, span := s.tracer.Start(ctx, "evaluation."+name)
	defer span.End()
	fn(ctx, span)
}

func (s *Service) fetchAssumptions(ctx context.Context, n concept.Normalized, area string) commercial.Assumptions {
	a, err := s.assumptions.Assumptions(ctx, n, area)
	if err == nil {
		err = a.Validate()
	}
	if err != nil {
		log.Printf("evaluation: assumptions unavailable for %s, using %s defaults: %v", n.ID, area, err)
		return commercial.DefaultAssumptionsFor(area)
	}
	return a
}

// EvaluateBatch evaluates concepts concurrently and returns them ranked by
// overall MCDA score, highest first. Ties break on concept id so the order is
// stable across runs.
func (s *Service) EvaluateBatch(ctx context.Context, ds []concept.Descriptor) ([]Evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.EvaluateBatch", trace.WithAttributes(attribute.Int("batch.size", len(ds))))
	defer span.End()

	out := make([]Evaluation, len(ds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, d := range ds {
		g.Go(func() error {
			ev, err := s.Evaluate(gctx, d)
			if err != nil {
				return fmt.Errorf("concept %d (%q): %w", i, d.ID, err)
			}
			out[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	Rank(out)
	return out, nil
}

// Rank sorts evaluations by overall score descending, then concept id, and
// assigns 1-based ranks.
func Rank(evs []Evaluation) {
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].Score.Overall != evs[j].Score.Overall {
			return evs[i].Score.Overall > evs[j].Score.Overall
		}
		return evs[i].ConceptID < evs[j].ConceptID
	})
	for i := range evs {
		evs[i].Rank = i + 1
	}
}
