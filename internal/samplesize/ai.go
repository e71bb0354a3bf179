package samplesize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/llm"
)

const estimatorSystemPrompt = `You are a clinical trial biostatistician. You size studies from a short concept description using standard power calculations. Always answer with a single JSON object and nothing else.`

type aiAnswer struct {
	Patients      int    `json:"patients"`
	EndpointType  string `json:"endpoint_type"`
	Justification string `json:"justification"`
	PowerAnalysis string `json:"power_analysis"`
}

// AIEstimator asks a language model for a sample size. It makes exactly one
// call per concept; Service handles the fallback.
type AIEstimator struct {
	exec *llm.StageExecutor
}

func NewAIEstimator(caller llm.Caller) *AIEstimator {
	return &AIEstimator{exec: llm.NewStageExecutor(caller).WithMaxAttempts(1)}
}

func (a *AIEstimator) Estimate(ctx context.Context, n concept.Normalized) (Result, error) {
	var ans aiAnswer
	_, err := a.exec.Run(ctx, "sample_size", estimatorPrompt(n), &ans, func() error {
		return validateAnswer(ans)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Patients:      ans.Patients,
		Justification: strings.TrimSpace(ans.Justification),
		PowerAnalysis: strings.TrimSpace(ans.PowerAnalysis),
		Endpoint:      EndpointSpec{Type: EndpointType(strings.ToLower(strings.TrimSpace(ans.EndpointType)))},
		Source:        SourceAIEstimator,
	}, nil
}

func validateAnswer(a aiAnswer) error {
	var errs []string
	if a.Patients <= 0 {
		errs = append(errs, "patients must be a positive integer")
	}
	if strings.TrimSpace(a.Justification) == "" {
		errs = append(errs, "justification is required")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func estimatorPrompt(n concept.Normalized) string {
	summary := map[string]any{
		"title":                n.Title,
		"drug_name":            n.DrugName,
		"indication":           n.Indication,
		"phase":                n.Phase,
		"strategic_goals":      n.Goals,
		"geographies":          n.Geographies,
		"target_subpopulation": n.TargetSubpopulation,
		"comparators":          n.Comparators,
		"oncology":             n.Oncology,
	}
	if n.HasBudgetCeiling {
		summary["budget_ceiling_usd"] = n.BudgetCeilingUSD
	}
	return fmt.Sprintf(`Estimate the total number of patients to enrol for this study concept.

Concept:
%s

Use a two-sided alpha of 0.05 and the conventional power for the phase. Account for dropout.

Return JSON:
{
  "patients": <integer total enrolment>,
  "endpoint_type": "survival" | "response_rate" | "continuous" | "safety" | "biomarker",
  "justification": "<two or three sentences>",
  "power_analysis": "<the formula and inputs used>"
}`, llm.MustJSON(summary))
}

// NewAnthropicEstimator wires an AIEstimator to the Anthropic API using the
// environment configuration.
func NewAnthropicEstimator() (*AIEstimator, error) {
	caller, err := llm.NewAnthropicCallerFromEnv(estimatorSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("sample size estimator: %w", err)
	}
	return NewAIEstimator(caller), nil
}
