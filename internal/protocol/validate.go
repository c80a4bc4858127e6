package protocol

import (
	"fmt"
	"unicode/utf8"

	"github.com/gzhole/deskpilot/internal/action"
)

func invalid(format string, args ...any) error {
	return &action.ValidationError{Code: action.CodeInvalidParameters, Message: fmt.Sprintf(format, args...)}
}

func checkLen(field, v string, lo, hi int) error {
	n := utf8.RuneCountInString(v)
	if n < lo {
		return invalid("%s must be at least %d characters", field, lo)
	}
	if hi > 0 && n > hi {
		return invalid("%s must be at most %d characters", field, hi)
	}
	return nil
}

func (s ScreenCapture) Validate() error {
	if s.ImageBase64 == "" {
		return invalid("screen.image_base64 must not be empty")
	}
	if s.Width <= 0 || s.Height <= 0 {
		return invalid("screen dimensions must be positive, got %dx%d", s.Width, s.Height)
	}
	return nil
}

func (c TurnContext) Validate() error {
	if c.StepIndex < 0 {
		return invalid("context.step_index must be >= 0, got %d", c.StepIndex)
	}
	if c.LastResult != nil && !c.LastResult.Status.Valid() {
		return invalid("context.last_result.status %q is not recognized", c.LastResult.Status)
	}
	return nil
}

func (r TurnRequest) Validate() error {
	if err := checkLen("session_id", r.SessionID, 3, 128); err != nil {
		return err
	}
	if err := checkLen("task", r.Task, 1, 10000); err != nil {
		return err
	}
	if err := r.Screen.Validate(); err != nil {
		return err
	}
	if err := r.Context.Validate(); err != nil {
		return err
	}
	if r.Constraints != nil {
		return r.Constraints.Validate()
	}
	return nil
}

func (r TurnResponse) Validate() error {
	if r.Action.Action == nil {
		return invalid("action is required")
	}
	if !r.Risk.Valid() {
		return invalid("risk %q is not recognized", r.Risk)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return invalid("confidence must be within [0, 1], got %g", r.Confidence)
	}
	if r.ConfirmationRequired && r.ConfirmationID == "" {
		return invalid("confirmation_id required when confirmation_required is true")
	}
	if r.TraceID == "" {
		return invalid("trace_id is required")
	}
	return nil
}

func (r StartSessionRequest) Validate() error {
	if err := checkLen("task", r.Task, 1, 10000); err != nil {
		return err
	}
	if r.Constraints != nil {
		return r.Constraints.Validate()
	}
	return nil
}

func (r ConfirmRequest) Validate() error {
	return checkLen("confirmation_id", r.ConfirmationID, 1, 0)
}
