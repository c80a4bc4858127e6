package action

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// Validation error codes.
const (
	CodeUnsupportedAction = "unsupported_action"
	CodeInvalidParameters = "invalid_parameters"
	CodeInvalidHotkey     = "invalid_hotkey"
	CodeMalformedAction   = "malformed_action"
)

// ValidationError reports why an action or request was rejected.
type ValidationError struct {
	Code    string
	Kind    Kind
	Message string
	// Keys holds the offending key names for CodeInvalidHotkey.
	Keys []string
	Err  error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Kind != "" {
		fmt.Fprintf(&b, " (%s)", e.Kind)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Keys) > 0 {
		fmt.Fprintf(&b, " %v", e.Keys)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError with CodeInvalidParameters.
func Invalid(kind Kind, format string, args ...any) *ValidationError {
	return &ValidationError{Code: CodeInvalidParameters, Kind: kind, Message: fmt.Sprintf(format, args...)}
}
