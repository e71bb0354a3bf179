package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type scriptedCaller struct {
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedCaller) GenerateJSON(_ context.Context, prompt string) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	resp := ""
	if i < len(s.responses) {
		resp = s.responses[i]
	}
	return resp, err
}

func (s *scriptedCaller) ModelName() string { return "scripted" }

type answer struct {
	Patients int `json:"patients"`
}

func noSleep(context.Context, time.Duration) {}

func TestStripCodeFences(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	if got := stripCodeFences(in); got != "{\"a\":1}" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	if backoffDelay(1).Seconds() != 1 {
		t.Fatal("attempt 1 should be 1s")
	}
	if backoffDelay(2).Seconds() != 2 {
		t.Fatal("attempt 2 should be 2s")
	}
}

func TestClassifyTransportError(t *testing.T) {
	cases := []struct {
		err  error
		want failureClass
	}{
		{errors.New("failed after 5 retries while waiting 4 seconds"), failureServer},
		{errors.New("status code: 400 bad request"), failureClient},
		{errors.New("status=500 upstream error"), failureServer},
		{errors.New("POST: status 429 too many requests"), failureRateLimit},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), failureTimeout},
	}
	for _, tc := range cases {
		if got := classifyTransportError(tc.err); got != tc.want {
			t.Errorf("classify(%q) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRunRetriesInvalidJSONWithFeedback(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"not json", "```json\n{\"patients\": 120}\n```"}}
	exec := NewStageExecutor(caller)
	exec.sleep = noSleep
	var out answer
	m, err := exec.Run(context.Background(), "sample_size", "size it", &out, func() error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Patients != 120 || m.Attempts != 2 || m.ContentRetries != 1 {
		t.Fatalf("unexpected result out=%+v metrics=%+v", out, m)
	}
	if !strings.Contains(caller.prompts[1], "not valid JSON") {
		t.Fatalf("expected corrective feedback in retry prompt: %q", caller.prompts[1])
	}
}

func TestRunSingleAttemptDoesNotRetry(t *testing.T) {
	caller := &scriptedCaller{errs: []error{errors.New("status 503 overloaded")}}
	exec := NewStageExecutor(caller).WithMaxAttempts(1)
	exec.sleep = noSleep
	var out answer
	_, err := exec.Run(context.Background(), "sample_size", "size it", &out, func() error { return nil })
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(caller.prompts) != 1 {
		t.Fatalf("expected exactly one call, got %d", len(caller.prompts))
	}
	if StageNameFromError(err) != "sample_size" {
		t.Fatalf("unexpected stage name %q", StageNameFromError(err))
	}
}

func TestRunValidationFailureSurfaces(t *testing.T) {
	caller := &scriptedCaller{responses: []string{`{"patients": 0}`, `{"patients": 0}`, `{"patients": 0}`}}
	exec := NewStageExecutor(caller)
	exec.sleep = noSleep
	var out answer
	m, err := exec.Run(context.Background(), "sample_size", "size it", &out, func() error {
		if out.Patients <= 0 {
			return errors.New("patients must be positive")
		}
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "patients must be positive") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if m.Attempts != 3 || m.ContentRetries != 2 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestNewAnthropicCallerFromEnvRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropicCallerFromEnv("system"); err == nil {
		t.Fatal("expected error without API key")
	}
}
