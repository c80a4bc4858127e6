// Package guardian scans what the agent reads and types for prompt
// injection aimed at the planner: text on screen that tries to override
// the task, leak instructions, switch off safety controls or hide itself
// with invisible characters.
//
// Signals are advisory. The planner logs, counts and audits them; it does
// not change the proposed action or its risk.
package guardian

// Signal is one detected indicator.
type Signal struct {
	// ID is a short, unique identifier (e.g., "instruction_override").
	ID string

	// Category groups related signals (e.g., "prompt-injection", "obfuscation").
	Category string

	// Severity is "critical", "high", "medium" or "low".
	Severity string

	// Confidence is 0.0-1.0.
	Confidence float64

	Description string
}

// Request is the text observed and produced during one turn.
type Request struct {
	// ScreenText is the OCR text of the current screenshot.
	ScreenText string

	// TypedText is the text of a proposed type action, if any.
	TypedText string

	// ActiveWindow is the focused window title reported by the executor.
	ActiveWindow string

	Task string
}

// Suggested verdicts, most to least permissive.
const (
	VerdictAllow = "allow"
	VerdictAudit = "audit"
	VerdictBlock = "block"
)

type Response struct {
	Signals []Signal

	// Verdict is the most restrictive verdict of the fired rules.
	Verdict string

	Explanation string
}

// Flagged reports whether any signal fired.
func (r Response) Flagged() bool { return len(r.Signals) > 0 }

// IDs returns the signal identifiers in rule order.
func (r Response) IDs() []string {
	ids := make([]string, 0, len(r.Signals))
	for _, s := range r.Signals {
		ids = append(ids, s.ID)
	}
	return ids
}

// Provider is any guardian implementation.
type Provider interface {
	Name() string
	Analyze(req Request) (Response, error)
}
