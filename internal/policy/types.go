package policy

import (
	"fmt"
	"strings"

	"github.com/gzhole/deskpilot/internal/action"
)

// Risk is an ordered risk tier: low < sensitive < destructive.
type Risk string

const (
	RiskLow         Risk = "low"
	RiskSensitive   Risk = "sensitive"
	RiskDestructive Risk = "destructive"
)

// Rank orders risk tiers. Unknown tiers rank below low.
func (r Risk) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskSensitive:
		return 2
	case RiskDestructive:
		return 3
	default:
		return 0
	}
}

// NeedsConfirmation reports whether r is sensitive or destructive.
func (r Risk) NeedsConfirmation() bool {
	return r.Rank() >= RiskSensitive.Rank()
}

func (r Risk) Valid() bool { return r.Rank() > 0 }

type Status string

const (
	StatusAllow   Status = "allow"
	StatusConfirm Status = "confirm"
	StatusBlock   Status = "block"
)

type Decision struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
	Risk   Risk   `json:"risk"`
}

const (
	DefaultMaxSteps = 50
	MinMaxSteps     = 1
	MaxMaxSteps     = 1000

	MaxForbiddenTerms = 64
)

// Constraints are per-session execution limits.
type Constraints struct {
	BlockedApps []string `json:"blocked_apps" yaml:"blocked_apps"`
	// MaxSteps of 0 means DefaultMaxSteps.
	MaxSteps int `json:"max_steps,omitempty" yaml:"max_steps,omitempty" jsonschema:"minimum=1,maximum=1000,default=50"`
	// ForbiddenTerms block any action whose context or payload mentions
	// one of them, case-insensitively.
	ForbiddenTerms []string `json:"forbidden_terms,omitempty" yaml:"forbidden_terms,omitempty" jsonschema:"maxItems=64"`
}

// EffectiveMaxSteps returns MaxSteps or the default when unset.
func (c Constraints) EffectiveMaxSteps() int {
	if c.MaxSteps == 0 {
		return DefaultMaxSteps
	}
	return c.MaxSteps
}

func (c Constraints) Validate() error {
	if c.MaxSteps != 0 && (c.MaxSteps < MinMaxSteps || c.MaxSteps > MaxMaxSteps) {
		return &action.ValidationError{
			Code:    action.CodeInvalidParameters,
			Message: fmt.Sprintf("max_steps must be between %d and %d, got %d", MinMaxSteps, MaxMaxSteps, c.MaxSteps),
		}
	}
	if len(c.ForbiddenTerms) > MaxForbiddenTerms {
		return &action.ValidationError{
			Code:    action.CodeInvalidParameters,
			Message: fmt.Sprintf("at most %d forbidden_terms allowed, got %d", MaxForbiddenTerms, len(c.ForbiddenTerms)),
		}
	}
	for i, term := range c.ForbiddenTerms {
		if strings.TrimSpace(term) == "" {
			return &action.ValidationError{
				Code:    action.CodeInvalidParameters,
				Message: fmt.Sprintf("forbidden_terms[%d] is blank", i),
			}
		}
	}
	return nil
}

// WithDefaults fills MaxSteps and guarantees a non-nil BlockedApps slice.
func (c Constraints) WithDefaults() Constraints {
	out := Constraints{MaxSteps: c.EffectiveMaxSteps()}
	out.BlockedApps = append([]string{}, c.BlockedApps...)
	out.ForbiddenTerms = append([]string(nil), c.ForbiddenTerms...)
	return out
}

// Input is everything the engine looks at for one proposed action.
type Input struct {
	Action       action.Action
	Task         string
	Observation  string
	Reasoning    string
	ActiveWindow string
	Constraints  *Constraints
}

// Policy holds the term lists driving classification and evaluation.
type Policy struct {
	Version     string   `yaml:"version"`
	Terms       Terms    `yaml:"terms"`
	BlockedApps []string `yaml:"blocked_apps"`
}

type Terms struct {
	Destructive []string `yaml:"destructive"`
	Sensitive   []string `yaml:"sensitive"`
	Block       []string `yaml:"block"`
	Confirm     []string `yaml:"confirm"`
}
