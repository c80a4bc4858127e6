// Package provider turns a screen plus task context into one proposed
// desktop action.
//
//	Planner (interface)
//	  ├── Stub    deterministic, no network
//	  ├── Remote  HTTP vision-language endpoint
//	  └── LLM     langchaingo chat model with the screenshot attached
//
// Providers return the action as raw wire JSON; the planner validates and
// normalizes it, so a provider can never smuggle an unchecked action past
// the schema.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gzhole/deskpilot/internal/config"
)

// MaxContextItems caps the OCR tokens and candidate texts forwarded to a
// provider.
const MaxContextItems = 200

const (
	defaultConfidence      = 0.5
	defaultExpectedOutcome = "state change"
)

// Input is everything a provider may look at for one turn.
type Input struct {
	Task              string
	StepIndex         int
	ImageBase64       string
	Width             int
	Height            int
	ActiveWindow      string
	OCRText           []string
	CandidateText     []string
	LastResultMessage string
}

// Output is a provider's proposal. Action is the unvalidated wire envelope.
type Output struct {
	Observation     string          `json:"observation"`
	Reasoning       string          `json:"reasoning"`
	Action          json.RawMessage `json:"action"`
	Confidence      float64         `json:"confidence"`
	ExpectedOutcome string          `json:"expected_outcome"`
}

// Planner is implemented by every planning backend.
type Planner interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	PlanNextAction(ctx context.Context, in Input) (Output, error)
}

// ErrIncompleteResponse is returned when a provider reply lacks a required
// field.
var ErrIncompleteResponse = errors.New("provider response incomplete")

// wireOutput distinguishes absent optional fields from zero values.
type wireOutput struct {
	Observation     *string         `json:"observation"`
	Reasoning       *string         `json:"reasoning"`
	Action          json.RawMessage `json:"action"`
	Confidence      *float64        `json:"confidence"`
	ExpectedOutcome *string         `json:"expected_outcome"`
}

// decodeOutput parses a provider reply body. observation, reasoning and
// action are required; confidence and expected_outcome have defaults.
func decodeOutput(body []byte) (Output, error) {
	var w wireOutput
	if err := json.Unmarshal(body, &w); err != nil {
		return Output{}, fmt.Errorf("decode provider response: %w", err)
	}
	switch {
	case w.Observation == nil:
		return Output{}, fmt.Errorf("%w: missing observation", ErrIncompleteResponse)
	case w.Reasoning == nil:
		return Output{}, fmt.Errorf("%w: missing reasoning", ErrIncompleteResponse)
	case len(w.Action) == 0 || string(w.Action) == "null":
		return Output{}, fmt.Errorf("%w: missing action", ErrIncompleteResponse)
	}

	out := Output{
		Observation:     *w.Observation,
		Reasoning:       *w.Reasoning,
		Action:          w.Action,
		Confidence:      defaultConfidence,
		ExpectedOutcome: defaultExpectedOutcome,
	}
	if w.Confidence != nil {
		out.Confidence = *w.Confidence
	}
	if w.ExpectedOutcome != nil {
		out.ExpectedOutcome = *w.ExpectedOutcome
	}
	return out, nil
}

func capItems(items []string) []string {
	if len(items) > MaxContextItems {
		return items[:MaxContextItems]
	}
	if items == nil {
		return []string{}
	}
	return items
}

// New builds the provider named by cfg.Kind. The remote and llm kinds fall
// back to the stub when their endpoint or key is not configured.
func New(cfg config.ProviderConfig, logger *zap.Logger) (Planner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	switch cfg.Kind {
	case config.ProviderStub:
		return NewStub(), nil
	case config.ProviderRemote:
		if cfg.URL == "" {
			logger.Info("No provider URL configured, using stub planner")
			return NewStub(), nil
		}
		return NewRemote(cfg.URL, cfg.APIKey, cfg.Timeout, limiter), nil
	case config.ProviderLLM:
		if cfg.APIKey == "" {
			logger.Info("No provider API key configured, using stub planner")
			return NewStub(), nil
		}
		return NewOpenAI(cfg, limiter)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
