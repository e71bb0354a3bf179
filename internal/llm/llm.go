package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultModel = "claude-sonnet-4-20250514"

var statusCodeRe = regexp.MustCompile(`status(?:\s+code)?[:=\s]+(\d{3})`)

type failureClass int

const (
	failureNone failureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

type Caller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    string
	system   string
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// NewAnthropicCallerFromEnv reads ANTHROPIC_API_KEY and, optionally,
// TRIALSCOPE_LLM_MODEL. system is sent as the system prompt on every call.
func NewAnthropicCallerFromEnv(system string) (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	model := strings.TrimSpace(os.Getenv("TRIALSCOPE_LLM_MODEL"))
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: model, system: system}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

// WithSystem returns a caller sharing the same client but a different system prompt.
func (a *AnthropicCaller) WithSystem(system string) *AnthropicCaller {
	cp := *a
	cp.system = system
	return &cp
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   2048,
		System:      []anthropic.TextBlockParam{{Text: a.system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

type Metrics struct {
	Attempts       int
	ContentRetries int
}

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageNameFromError returns the failing stage name, or "llm" when err did
// not come from an executor.
func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "llm"
}

type StageExecutor struct {
	caller      Caller
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration)
}

func NewStageExecutor(caller Caller) *StageExecutor {
	return &StageExecutor{caller: caller, maxAttempts: 3, sleep: sleepCtx}
}

// WithMaxAttempts returns a copy of the executor limited to n calls per stage.
// n = 1 disables both transport and content retries.
func (e *StageExecutor) WithMaxAttempts(n int) *StageExecutor {
	if n < 1 {
		n = 1
	}
	cp := *e
	cp.maxAttempts = n
	return &cp
}

func (e *StageExecutor) ModelName() string {
	if e == nil || e.caller == nil {
		return DefaultModel
	}
	return e.caller.ModelName()
}

// Run sends prompt, decodes the JSON answer into out and checks it with
// validate. Content failures are retried with corrective feedback.
func (e *StageExecutor) Run(ctx context.Context, stageName, prompt string, out any, validate func() error) (Metrics, error) {
	metrics := Metrics{}
	feedback := ""
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		metrics.Attempts = attempt
		last := attempt == e.maxAttempts
		fullPrompt := prompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		start := time.Now()
		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			log.Printf("llm transport_error stage=%s attempt=%d class=%d elapsed_ms=%d err=%q", stageName, attempt, class, time.Since(start).Milliseconds(), err.Error())
			if !last && (class == failureTimeout || class == failureRateLimit || class == failureServer) && ctx.Err() == nil {
				e.sleep(ctx, backoffDelay(attempt))
				continue
			}
			return metrics, &StageError{Stage: stageName, Err: fmt.Errorf("transport failure: %w", err)}
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			if !last {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return metrics, &StageError{Stage: stageName, Err: errors.New("empty response")}
		}

		clean := stripCodeFences(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			if !last {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return metrics, &StageError{Stage: stageName, Err: fmt.Errorf("json parse: %w", err)}
		}
		if err := validate(); err != nil {
			if !last {
				metrics.ContentRetries++
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
				continue
			}
			return metrics, &StageError{Stage: stageName, Err: fmt.Errorf("validation: %w", err)}
		}
		return metrics, nil
	}
	return metrics, &StageError{Stage: stageName, Err: errors.New("failed after retries")}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) failureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		switch {
		case m[1] == "429":
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	if strings.Contains(msg, "rate limit") {
		return failureRateLimit
	}
	return failureServer
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// MustJSON renders v for inclusion in a prompt.
func MustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
