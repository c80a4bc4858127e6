package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gzhole/deskpilot/internal/action"
)

type Engine struct {
	policy *Policy

	destructive []string
	sensitive   []string
	block       []string
	confirm     []string
	blockedApps []string
}

func NewEngine(p *Policy) (*Engine, error) {
	if p == nil {
		return nil, errors.New("policy is nil")
	}
	e := &Engine{
		policy:      p,
		destructive: lowerAll(p.Terms.Destructive),
		sensitive:   lowerAll(p.Terms.Sensitive),
		block:       lowerAll(p.Terms.Block),
		confirm:     lowerAll(p.Terms.Confirm),
		blockedApps: lowerAll(p.BlockedApps),
	}
	if len(e.destructive) == 0 && len(e.sensitive) == 0 && len(e.block) == 0 {
		return nil, errors.New("policy defines no terms")
	}
	return e, nil
}

// Policy returns the engine's policy (for inspection/testing).
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Classify derives the risk tier of a from the textual context around it.
// Context terms dominate action content.
func (e *Engine) Classify(a action.Action, task, observation, reasoning string) Risk {
	joined := strings.ToLower(strings.Join([]string{task, observation, reasoning}, " "))
	if containsAny(joined, e.destructive) {
		return RiskDestructive
	}
	if containsAny(joined, e.sensitive) {
		return RiskSensitive
	}
	switch v := a.(type) {
	case action.Hotkey:
		for _, k := range v.Keys {
			if k == "delete" {
				return RiskDestructive
			}
		}
	case action.Type:
		if containsAny(strings.ToLower(v.Text), e.sensitive) {
			return RiskSensitive
		}
	}
	return RiskLow
}

// Evaluate decides allow, confirm or block for one proposed action. The
// first matching rule wins.
func (e *Engine) Evaluate(in Input) Decision {
	joined := strings.ToLower(in.Task + " " + in.Observation + " " + in.Reasoning)
	payload := strings.ToLower(actionText(in.Action))
	risk := e.Classify(in.Action, in.Task, in.Observation, in.Reasoning)

	if containsAny(joined, e.block) {
		return Decision{Status: StatusBlock, Reason: "security or anti-bot content detected", Risk: RiskDestructive}
	}

	if in.Constraints != nil {
		if term := firstMatch(joined+" "+payload, lowerAll(in.Constraints.ForbiddenTerms)); term != "" {
			return Decision{Status: StatusBlock, Reason: "blocked by session constraint: " + term, Risk: RiskSensitive}
		}
	}

	if in.ActiveWindow != "" {
		win := strings.ToLower(in.ActiveWindow)
		blocked := e.blockedApps
		if in.Constraints != nil {
			blocked = append(lowerAll(in.Constraints.BlockedApps), blocked...)
		}
		if containsAny(win, blocked) {
			return Decision{Status: StatusBlock, Reason: fmt.Sprintf("active window blocked by policy: %s", in.ActiveWindow), Risk: RiskSensitive}
		}
	}

	if risk.NeedsConfirmation() {
		return Decision{Status: StatusConfirm, Reason: fmt.Sprintf("risk level is %s", risk), Risk: risk}
	}

	if containsAny(joined, e.confirm) {
		return Decision{Status: StatusConfirm, Reason: "potentially destructive context", Risk: RiskSensitive}
	}

	if containsAny(payload, e.confirm) {
		return Decision{Status: StatusConfirm, Reason: "potentially destructive payload", Risk: RiskSensitive}
	}

	return Decision{Status: StatusAllow, Reason: "low risk action", Risk: RiskLow}
}

// Explain renders a decision for terminal output.
func Explain(a action.Action, d Decision) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Decision: %s\n", strings.ToUpper(string(d.Status)))
	fmt.Fprintf(&sb, "Action: %s\n", action.Describe(a, nil))
	fmt.Fprintf(&sb, "Risk: %s\n", d.Risk)
	if d.Reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", d.Reason)
	}
	return sb.String()
}

// containsAny reports whether text contains any non-empty term. Both sides
// are expected to be lower-cased already.
func containsAny(text string, terms []string) bool {
	return firstMatch(text, terms) != ""
}

func firstMatch(text string, terms []string) string {
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			return t
		}
	}
	return ""
}

// actionText is the free text an action carries into the desktop.
func actionText(a action.Action) string {
	switch v := a.(type) {
	case action.Type:
		return v.Text
	case action.Hotkey:
		return strings.Join(v.Keys, "+")
	}
	return ""
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
