package evaluation

import (
	"time"

	"github.com/joelkehle/trialscope/internal/commercial"
	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/feasibility"
	"github.com/joelkehle/trialscope/internal/mcda"
)

// Evaluation is the finished record for one concept. It is never mutated
// after Evaluate returns, except for Rank which EvaluateBatch assigns.
type Evaluation struct {
	ID          string             `json:"id"`
	ConceptID   string             `json:"concept_id"`
	Title       string             `json:"title"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
	Rank        int                `json:"rank,omitempty"`
	Concept     concept.Normalized `json:"concept"`
	Feasibility feasibility.Data   `json:"feasibility"`
	Score       mcda.Score         `json:"mcda"`
}

// Commercial is the commercial outlook computed inside the feasibility run.
func (e Evaluation) Commercial() commercial.Outlook {
	return e.Feasibility.Commercial
}
