// Package store archives finished evaluations in SQLite. Nothing in the
// evaluation path reads from it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/trialscope/internal/evaluation"
)

var ErrNotFound = errors.New("evaluation not found")

const DefaultListLimit = 50

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id             TEXT PRIMARY KEY,
	concept_id     TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL,
	overall_score  REAL NOT NULL,
	estimated_cost REAL NOT NULL,
	evaluated_at   TEXT NOT NULL,
	payload        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS evaluations_concept ON evaluations (concept_id);
CREATE INDEX IF NOT EXISTS evaluations_score ON evaluations (overall_score DESC);
`

// Summary is one row of the archive without the JSON payload.
type Summary struct {
	ID             string  `db:"id" json:"id"`
	ConceptID      string  `db:"concept_id" json:"concept_id"`
	Title          string  `db:"title" json:"title"`
	Recommendation string  `db:"recommendation" json:"recommendation"`
	OverallScore   float64 `db:"overall_score" json:"overall_score"`
	EstimatedCost  float64 `db:"estimated_cost" json:"estimated_cost"`
	EvaluatedAt    string  `db:"evaluated_at" json:"evaluated_at"`
}

type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the archive at dbPath. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const insertEvaluation = `INSERT OR REPLACE INTO evaluations
	(id, concept_id, title, recommendation, overall_score, estimated_cost, evaluated_at, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Save writes ev, replacing any earlier row with the same id.
func (s *SQLiteStore) Save(ctx context.Context, ev evaluation.Evaluation) error {
	return insert(ctx, s.db, ev)
}

// SaveAll writes a batch in one transaction.
func (s *SQLiteStore) SaveAll(ctx context.Context, evs []evaluation.Evaluation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, ev := range evs {
		if err := insert(ctx, tx, ev); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insert(ctx context.Context, db sqlx.ExecerContext, ev evaluation.Evaluation) error {
	if ev.ID == "" {
		return fmt.Errorf("save evaluation: empty id")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode evaluation %s: %w", ev.ID, err)
	}
	_, err = db.ExecContext(ctx, insertEvaluation,
		ev.ID,
		ev.ConceptID,
		ev.Title,
		string(ev.Score.Recommendation.Level),
		ev.Score.Overall,
		ev.Feasibility.EstimatedCostUSD,
		ev.EvaluatedAt.UTC().Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save evaluation %s: %w", ev.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (evaluation.Evaluation, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM evaluations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluation.Evaluation{}, ErrNotFound
	}
	if err != nil {
		return evaluation.Evaluation{}, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	var ev evaluation.Evaluation
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return evaluation.Evaluation{}, fmt.Errorf("decode evaluation %s: %w", id, err)
	}
	return ev, nil
}

// List returns summaries ordered by overall score, highest first. A
// non-positive limit uses DefaultListLimit.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var out []Summary
	err := s.db.SelectContext(ctx, &out, `SELECT id, concept_id, title, recommendation, overall_score, estimated_cost, evaluated_at
		FROM evaluations ORDER BY overall_score DESC, concept_id ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return out, nil
}
