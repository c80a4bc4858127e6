package provider

import (
	"context"
	"encoding/json"
	"strings"
)

// Stub is the deterministic offline planner: a screenshot on the first
// step, a fail when a login screen is visible, otherwise a short wait.
type Stub struct{}

func NewStub() *Stub { return &Stub{} }

func (s *Stub) Name() string { return "stub" }

func (s *Stub) PlanNextAction(ctx context.Context, in Input) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	if in.StepIndex == 0 {
		return Output{
			Observation:     "Initial screen captured; waiting for first interaction.",
			Reasoning:       "Need another screenshot baseline before acting.",
			Action:          json.RawMessage(`{"action":"screenshot","parameters":{}}`),
			Confidence:      0.62,
			ExpectedOutcome: "fresh screenshot context",
		}, nil
	}

	for _, token := range in.OCRText {
		if strings.Contains(strings.ToLower(token), "login") {
			return Output{
				Observation:     "Login-related text detected.",
				Reasoning:       "Cannot authenticate on behalf of user without explicit input.",
				Action:          json.RawMessage(`{"action":"fail","parameters":{"reason":"Login required. User authentication needed."}}`),
				Confidence:      0.91,
				ExpectedOutcome: "pause for user authentication",
			}, nil
		}
	}

	return Output{
		Observation:     "No deterministic UI target identified in stub mode.",
		Reasoning:       "Retry after short wait.",
		Action:          json.RawMessage(`{"action":"wait","parameters":{"seconds":1.0}}`),
		Confidence:      0.4,
		ExpectedOutcome: "updated screen state",
	}, nil
}
