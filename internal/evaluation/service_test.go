package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/joelkehle/trialscope/internal/commercial"
	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/samplesize"
)

var fixedNow = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

type failingAssumptions struct{ calls atomic.Int32 }

func (f *failingAssumptions) Assumptions(context.Context, concept.Normalized, string) (commercial.Assumptions, error) {
	f.calls.Add(1)
	return commercial.Assumptions{}, errors.New("upstream unavailable")
}

type invalidAssumptions struct{}

func (invalidAssumptions) Assumptions(context.Context, concept.Normalized, string) (commercial.Assumptions, error) {
	return commercial.Assumptions{AddressablePatients: -1}, nil
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("eval-%d", n.Add(1)) }
}

func newTestService(t *testing.T, cfg Config) (*Service, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	cfg.Tracer = tp.Tracer(TracerName)
	cfg.Now = func() time.Time { return fixedNow }
	if cfg.NewID == nil {
		cfg.NewID = sequentialIDs()
	}
	s, err := NewService(cfg)
	require.NoError(t, err)
	return s, sr
}

func oncologyConcept() concept.Descriptor {
	return concept.Descriptor{
		ID:          "onc-001",
		Title:       "Adjuvant PD-1 in resected stage III melanoma",
		DrugName:    "PD-1 inhibitor",
		Indication:  "Resected stage III melanoma",
		Phase:       "Phase III",
		Geographies: []string{"US", "EU"},
		StrategicGoals: []string{
			"label_expansion",
		},
	}
}

func TestEvaluateRunsEveryStage(t *testing.T) {
	s, sr := newTestService(t, Config{})
	ev, err := s.Evaluate(context.Background(), oncologyConcept())
	require.NoError(t, err)

	assert.Equal(t, "eval-1", ev.ID)
	assert.Equal(t, "onc-001", ev.ConceptID)
	assert.True(t, ev.EvaluatedAt.Equal(fixedNow))
	assert.Equal(t, samplesize.EndpointSurvival, ev.Feasibility.SampleSize.Endpoint.Type)
	assert.Equal(t, samplesize.SourceFormula, ev.Feasibility.SampleSize.Source)
	assert.Equal(t, commercial.SourceDefaultTable, ev.Commercial().Assumptions.Source)
	assert.NotEmpty(t, ev.Score.Recommendation.Level)
	assert.Greater(t, ev.Score.Overall, 0.0)

	var names []string
	for _, sp := range sr.Ended() {
		names = append(names, sp.Name())
	}
	assert.ElementsMatch(t, []string{
		"evaluation.classify", "evaluation.assumptions", "evaluation.feasibility", "evaluation.mcda", "evaluation.Evaluate",
	}, names)

	root := sr.Ended()[len(sr.Ended())-1]
	require.Equal(t, "evaluation.Evaluate", root.Name())
	for _, sp := range sr.Ended()[:len(sr.Ended())-1] {
		assert.Equal(t, root.SpanContext().SpanID(), sp.Parent().SpanID(), sp.Name())
	}
}

func TestEvaluateRequiresID(t *testing.T) {
	s, sr := newTestService(t, Config{})
	_, err := s.Evaluate(context.Background(), concept.Descriptor{ID: "  ", Phase: "II"})
	require.ErrorIs(t, err, ErrMissingConceptID)
	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, "Error", sr.Ended()[0].Status().Code.String())
}

func TestEvaluateFallsBackWhenAssumptionsFail(t *testing.T) {
	src := &failingAssumptions{}
	s, _ := newTestService(t, Config{Assumptions: src})
	ev, err := s.Evaluate(context.Background(), oncologyConcept())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, commercial.DefaultAssumptionsFor("oncology"), ev.Commercial().Assumptions)

	s, _ = newTestService(t, Config{Assumptions: invalidAssumptions{}})
	ev, err = s.Evaluate(context.Background(), oncologyConcept())
	require.NoError(t, err)
	assert.Equal(t, commercial.SourceDefaultTable, ev.Commercial().Assumptions.Source)
}

func TestEvaluateIsDeterministicUnderFixedClock(t *testing.T) {
	render := func() string {
		s, _ := newTestService(t, Config{NewID: func() string { return "fixed" }})
		ev, err := s.Evaluate(context.Background(), oncologyConcept())
		require.NoError(t, err)
		blob, err := json.Marshal(ev)
		require.NoError(t, err)
		return string(blob)
	}
	assert.Equal(t, render(), render())
}

func TestDefaultIDsAreUUIDs(t *testing.T) {
	s, err := NewService(Config{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	a, err := s.Evaluate(context.Background(), oncologyConcept())
	require.NoError(t, err)
	b, err := s.Evaluate(context.Background(), oncologyConcept())
	require.NoError(t, err)
	assert.Len(t, a.ID, 36)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEvaluateBatchRanksByOverallScore(t *testing.T) {
	s, _ := newTestService(t, Config{Parallelism: 2})
	batch := []concept.Descriptor{
		{ID: "c-psoriasis", Phase: "II", Indication: "plaque psoriasis"},
		oncologyConcept(),
		{ID: "c-diabetes", Phase: "IV", Indication: "type 2 diabetes", StrategicGoals: []string{"rwe"}},
		{ID: "c-rare", Phase: "I", Indication: "Duchenne", DrugName: "AAV gene therapy", TargetSubpopulation: "ambulatory"},
		{ID: "c-alz", Phase: "III", Indication: "early Alzheimer's disease", Geographies: []string{"US", "EU", "JP"}},
	}
	got, err := s.EvaluateBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, got, len(batch))

	seen := map[string]bool{}
	for i, ev := range got {
		assert.Equal(t, i+1, ev.Rank)
		seen[ev.ConceptID] = true
		if i > 0 {
			prev := got[i-1]
			assert.True(t, prev.Score.Overall > ev.Score.Overall ||
				(prev.Score.Overall == ev.Score.Overall && prev.ConceptID < ev.ConceptID), "rank %d out of order", i+1)
		}
	}
	assert.Len(t, seen, len(batch))

	again, err := s.EvaluateBatch(context.Background(), batch)
	require.NoError(t, err)
	for i := range got {
		assert.Equal(t, got[i].ConceptID, again[i].ConceptID)
	}
}

func TestEvaluateBatchFailsOnMissingID(t *testing.T) {
	s, _ := newTestService(t, Config{})
	_, err := s.EvaluateBatch(context.Background(), []concept.Descriptor{oncologyConcept(), {Phase: "II"}})
	require.ErrorIs(t, err, ErrMissingConceptID)
	assert.True(t, strings.Contains(err.Error(), "concept 1"))
}

func TestRankBreaksTiesOnConceptID(t *testing.T) {
	evs := []Evaluation{{ConceptID: "b"}, {ConceptID: "a"}, {ConceptID: "c"}}
	evs[2].Score.Overall = 4
	Rank(evs)
	assert.Equal(t, []string{"c", "a", "b"}, []string{evs[0].ConceptID, evs[1].ConceptID, evs[2].ConceptID})
	assert.Equal(t, 3, evs[2].Rank)
}
