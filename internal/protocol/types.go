package protocol

import (
	"encoding/json"
	"time"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/policy"
)

type ResultStatus string

const (
	ResultExecuted             ResultStatus = "executed"
	ResultFailed               ResultStatus = "failed"
	ResultBlocked              ResultStatus = "blocked"
	ResultSkipped              ResultStatus = "skipped"
	ResultConfirmationRequired ResultStatus = "confirmation_required"
)

func (s ResultStatus) Valid() bool {
	switch s {
	case ResultExecuted, ResultFailed, ResultBlocked, ResultSkipped, ResultConfirmationRequired:
		return true
	}
	return false
}

// ActionResult is the executor's report on the previous action.
type ActionResult struct {
	Status    ResultStatus `json:"status" jsonschema:"enum=executed,enum=failed,enum=blocked,enum=skipped,enum=confirmation_required"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewResult(status ResultStatus, message string) *ActionResult {
	return &ActionResult{Status: status, Message: message, Timestamp: time.Now().UTC()}
}

type ScreenCapture struct {
	ImageBase64 string `json:"image_base64" jsonschema:"minLength=1"`
	Width       int    `json:"width" jsonschema:"minimum=1"`
	Height      int    `json:"height" jsonschema:"minimum=1"`
}

// TurnContext is rebuilt by the executor every turn.
type TurnContext struct {
	StepIndex    int              `json:"step_index" jsonschema:"minimum=0"`
	LastAction   *action.Envelope `json:"last_action,omitempty"`
	LastResult   *ActionResult    `json:"last_result,omitempty"`
	ActiveWindow string           `json:"active_window,omitempty"`
	TraceID      string           `json:"trace_id,omitempty"`
}

type TurnRequest struct {
	SessionID   string              `json:"session_id" jsonschema:"minLength=3,maxLength=128"`
	Task        string              `json:"task" jsonschema:"minLength=1,maxLength=10000"`
	Screen      ScreenCapture       `json:"screen"`
	Context     TurnContext         `json:"context"`
	Constraints *policy.Constraints `json:"constraints,omitempty"`
}

type TurnResponse struct {
	Observation          string          `json:"observation"`
	Reasoning            string          `json:"reasoning"`
	Action               action.Envelope `json:"action"`
	Risk                 policy.Risk     `json:"risk" jsonschema:"enum=low,enum=sensitive,enum=destructive"`
	Confidence           float64         `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	ExpectedOutcome      string          `json:"expected_outcome"`
	ConfirmationRequired bool            `json:"confirmation_required"`
	ConfirmationID       string          `json:"confirmation_id,omitempty"`
	TraceID              string          `json:"trace_id"`
}

type StartSessionRequest struct {
	Task        string              `json:"task" jsonschema:"minLength=1,maxLength=10000"`
	Constraints *policy.Constraints `json:"constraints,omitempty"`
}

type StartSessionResponse struct {
	SessionID   string             `json:"session_id"`
	CreatedAt   time.Time          `json:"created_at"`
	Constraints policy.Constraints `json:"constraints"`
}

// ConfirmRequest resolves a pending confirmation. Approved defaults to true
// when absent from the JSON body.
type ConfirmRequest struct {
	ConfirmationID string `json:"confirmation_id" jsonschema:"minLength=1"`
	Approved       bool   `json:"approved" jsonschema:"default=true"`
}

func (r *ConfirmRequest) UnmarshalJSON(data []byte) error {
	type plain ConfirmRequest
	p := plain{Approved: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ConfirmRequest(p)
	return nil
}

type ConfirmStatus string

const (
	ConfirmApproved ConfirmStatus = "approved"
	ConfirmRejected ConfirmStatus = "rejected"
	ConfirmNotFound ConfirmStatus = "not_found"
)

type ConfirmResponse struct {
	SessionID      string        `json:"session_id"`
	ConfirmationID string        `json:"confirmation_id"`
	Status         ConfirmStatus `json:"status" jsonschema:"enum=approved,enum=rejected,enum=not_found"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx planner reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
