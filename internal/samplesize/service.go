package samplesize

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/joelkehle/trialscope/internal/concept"
)

const DefaultEstimatorTimeout = 20 * time.Second

// Estimator is an external sizing source tried before the formulas.
type Estimator interface {
	Estimate(ctx context.Context, n concept.Normalized) (Result, error)
}

// Service sizes concepts, preferring the estimator when one is configured.
// It never fails: every estimator problem falls back to Calculate.
type Service struct {
	estimator Estimator
	timeout   time.Duration
}

func NewService(estimator Estimator) *Service {
	return &Service{estimator: estimator, timeout: DefaultEstimatorTimeout}
}

func (s *Service) WithTimeout(d time.Duration) *Service {
	cp := *s
	if d > 0 {
		cp.timeout = d
	}
	return &cp
}

func (s *Service) Size(ctx context.Context, n concept.Normalized) Result {
	if s == nil || s.estimator == nil {
		return Calculate(n)
	}
	res, err := s.tryEstimator(ctx, n)
	if err != nil {
		log.Printf("samplesize: estimator unavailable for concept=%s, using formula: %v", n.ID, err)
		return Calculate(n)
	}
	return res
}

func (s *Service) tryEstimator(ctx context.Context, n concept.Normalized) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.estimator.Estimate(callCtx, n)
	if err != nil {
		return Result{}, err
	}
	if res.Patients <= 0 {
		return Result{}, errors.New("estimator returned a non-positive patient count")
	}

	formula := Calculate(n)
	res.Parameters = formula.Parameters
	if !res.Endpoint.Type.Valid() {
		res.Endpoint = formula.Endpoint
	}
	if res.PowerAnalysis == "" {
		res.PowerAnalysis = formula.PowerAnalysis
	}
	if res.Justification == "" {
		res.Justification = formula.Justification
	}
	var notes []string
	res.Patients, notes = Bound(res.Patients, n)
	res.Adjustments = append(res.Adjustments, notes...)
	res.Source = SourceAIEstimator
	return res, nil
}
