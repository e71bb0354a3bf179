package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/evaluation"
)

var fixedNow = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func evaluate(t *testing.T, ds ...concept.Descriptor) []evaluation.Evaluation {
	t.Helper()
	n := 0
	svc, err := evaluation.NewService(evaluation.Config{
		Now:   func() time.Time { return fixedNow },
		NewID: func() string { n++; return "ev-" + string(rune('a'+n-1)) },
	})
	require.NoError(t, err)
	var out []evaluation.Evaluation
	for _, d := range ds {
		ev, err := svc.Evaluate(context.Background(), d)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ev := evaluate(t, concept.Descriptor{ID: "c1", Title: "Melanoma adjuvant", Indication: "stage III melanoma", Phase: "III"})[0]
	require.NoError(t, s.Save(context.Background(), ev))

	got, err := s.Get(context.Background(), ev.ID)
	require.NoError(t, err)
	want, err := json.Marshal(ev)
	require.NoError(t, err)
	have, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))
	assert.True(t, got.EvaluatedAt.Equal(fixedNow))
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsEmptyID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Save(context.Background(), evaluation.Evaluation{}))
}

func TestListOrdersByScore(t *testing.T) {
	s := newTestStore(t)
	evs := evaluate(t,
		concept.Descriptor{ID: "c1", Phase: "II", Indication: "plaque psoriasis"},
		concept.Descriptor{ID: "c2", Phase: "III", Indication: "metastatic NSCLC", Geographies: []string{"US", "EU", "JP"}},
		concept.Descriptor{ID: "c3", Phase: "I", Indication: "chronic cough"},
	)
	require.NoError(t, s.SaveAll(context.Background(), evs))

	got, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].OverallScore, got[i].OverallScore)
	}

	top, err := s.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, got[0].ID, top[0].ID)
	assert.NotEmpty(t, top[0].Recommendation)
	assert.Greater(t, top[0].EstimatedCost, 0.0)
}

func TestSaveReplacesSameID(t *testing.T) {
	s := newTestStore(t)
	ev := evaluate(t, concept.Descriptor{ID: "c1", Phase: "II"})[0]
	require.NoError(t, s.Save(context.Background(), ev))
	ev.Title = "renamed"
	require.NoError(t, s.Save(context.Background(), ev))

	got, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "renamed", got[0].Title)
}

func TestFileBackedStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ev := evaluate(t, concept.Descriptor{ID: "c1", Phase: "II"})[0]

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), ev))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ConceptID)
}
