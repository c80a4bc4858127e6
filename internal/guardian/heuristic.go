package guardian

import (
	"regexp"
	"strings"

	"github.com/gzhole/deskpilot/internal/unicode"
)

// HeuristicProvider detects injection signals with pattern matching.
type HeuristicProvider struct {
	rules []heuristicRule
}

type heuristicRule struct {
	signal   Signal
	match    func(req Request) bool
	escalate string
}

func NewHeuristicProvider() *HeuristicProvider {
	p := &HeuristicProvider{}
	p.rules = p.buildRules()
	return p
}

func (p *HeuristicProvider) Name() string { return "heuristic" }

// Analyze runs all rules against the request.
func (p *HeuristicProvider) Analyze(req Request) (Response, error) {
	var signals []Signal
	verdict := VerdictAllow

	for _, r := range p.rules {
		if r.match(req) {
			signals = append(signals, r.signal)
			verdict = mostRestrictive(verdict, r.escalate)
		}
	}

	var parts []string
	for _, s := range signals {
		parts = append(parts, s.Description)
	}

	return Response{
		Signals:     signals,
		Verdict:     verdict,
		Explanation: strings.Join(parts, "; "),
	}, nil
}

func (p *HeuristicProvider) buildRules() []heuristicRule {
	return []heuristicRule{
		{
			signal: Signal{
				ID:          "instruction_override",
				Category:    "prompt-injection",
				Severity:    "high",
				Confidence:  0.85,
				Description: "Screen text contains instruction override language (e.g., 'ignore previous')",
			},
			match: func(req Request) bool {
				return matchesAnyPattern(req.ScreenText, instructionOverridePatterns)
			},
			escalate: VerdictBlock,
		},
		{
			signal: Signal{
				ID:          "prompt_exfiltration",
				Category:    "prompt-injection",
				Severity:    "medium",
				Confidence:  0.75,
				Description: "Screen text asks the agent to reveal its prompt or instructions",
			},
			match: func(req Request) bool {
				return matchesAnyPattern(req.ScreenText, promptExfilPatterns)
			},
			escalate: VerdictAudit,
		},
		{
			signal: Signal{
				ID:          "disable_security",
				Category:    "security-bypass",
				Severity:    "critical",
				Confidence:  0.90,
				Description: "Screen text asks the agent to disable or bypass security controls",
			},
			match: func(req Request) bool {
				return matchesAnyPattern(req.ScreenText, disableSecurityPatterns)
			},
			escalate: VerdictBlock,
		},
		{
			signal: Signal{
				ID:          "indirect_injection",
				Category:    "prompt-injection",
				Severity:    "critical",
				Confidence:  0.80,
				Description: "Screen text embeds model control markup or hidden instructions",
			},
			match: func(req Request) bool {
				return matchesAnyPattern(req.ScreenText, indirectInjectionPatterns)
			},
			escalate: VerdictBlock,
		},
		{
			signal: Signal{
				ID:          "secrets_on_screen",
				Category:    "credential-exposure",
				Severity:    "medium",
				Confidence:  0.70,
				Description: "Screen shows what appears to be an API key or secret token",
			},
			match: func(req Request) bool {
				return secretsPattern.MatchString(req.ScreenText)
			},
			escalate: VerdictAudit,
		},
		{
			signal: Signal{
				ID:          "secrets_in_typed_text",
				Category:    "credential-exposure",
				Severity:    "high",
				Confidence:  0.75,
				Description: "Proposed text to type contains an API key or secret token",
			},
			match: func(req Request) bool {
				return secretsPattern.MatchString(req.TypedText)
			},
			escalate: VerdictAudit,
		},
		{
			signal: Signal{
				ID:          "typed_shell_command",
				Category:    "destructive-command",
				Severity:    "critical",
				Confidence:  0.85,
				Description: "Proposed text typed into a terminal is a destructive or download-and-run shell command",
			},
			match: func(req Request) bool {
				return looksLikeTerminal(req.ActiveWindow) && dangerousShellCommand(req.TypedText)
			},
			escalate: VerdictBlock,
		},
		{
			signal: Signal{
				ID:          "hidden_characters",
				Category:    "obfuscation",
				Severity:    "high",
				Confidence:  0.80,
				Description: "Text contains invisible, bidi or tag characters",
			},
			match: func(req Request) bool {
				return unicode.Scan(req.ScreenText).HasHigh() || unicode.Scan(req.TypedText).HasHigh()
			},
			escalate: VerdictAudit,
		},
		{
			signal: Signal{
				ID:          "lookalike_typed_text",
				Category:    "obfuscation",
				Severity:    "medium",
				Confidence:  0.60,
				Description: "Proposed text to type mixes Latin letters with look-alike characters",
			},
			match: func(req Request) bool {
				return mixedLookalikes(req.TypedText)
			},
			escalate: VerdictAudit,
		},
	}
}

var instructionOverridePatterns = compilePatterns([]string{
	`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|rules?)`,
	`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(previous\s+)?(instructions?|rules?|guidelines?|task)`,
	`(?i)forget\s+(all\s+)?(your|previous)\s+(instructions?|rules?|task)`,
	`(?i)override\s+(all\s+)?(safety|security)\s+(rules?|protocols?|guidelines?)`,
	`(?i)you\s+are\s+now\s+(free|unrestricted|unfiltered)`,
	`(?i)new\s+(instructions?|task):\s+`,
})

var promptExfilPatterns = compilePatterns([]string{
	`(?i)(show|reveal|display|print|type)\s+(me\s+)?(your|the)\s+(system\s+)?prompt`,
	`(?i)(what\s+are|tell\s+me)\s+(your|the)\s+(instructions?|rules?|guidelines?)`,
	`(?i)repeat\s+(your\s+)?(system\s+)?(prompt|instructions?)`,
})

var disableSecurityPatterns = compilePatterns([]string{
	`(?i)(disable|turn\s+off|bypass|skip|ignore)\s+(the\s+)?(deskpilot|security|guard|policy|policies|antivirus|firewall|defender)`,
	`(?i)(remove|delete|uninstall)\s+(deskpilot|security\s+guard|antivirus)`,
	`(?i)DESKPILOT_DISABLE`,
})

var indirectInjectionPatterns = compilePatterns([]string{
	`(?i)SYSTEM:\s*(ignore|forget|override|you\s+are)`,
	`(?i)\[INST\]`,
	`(?i)<\|im_start\|>system`,
	`(?i)BEGIN\s+HIDDEN\s+INSTRUCTIONS?`,
	`(?i)IMPORTANT:\s*(ignore|disregard|override)`,
	`(?i)(note|message)\s+to\s+(the\s+)?(ai\s+)?(agent|assistant|ai)\s*:`,
})

var secretsPattern = regexp.MustCompile(
	`(?i)(` +
		`(api[_-]?key|api[_-]?secret|auth[_-]?token|access[_-]?token)\s*[=:]\s*\S{8,}` +
		`|Bearer\s+[A-Za-z0-9._\-]{20,}` +
		`|ghp_[A-Za-z0-9]{36,}` +
		`|\bsk-[A-Za-z0-9]{20,}` +
		`|AKIA[A-Z0-9]{16}` +
		`)`,
)

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func matchesAnyPattern(s string, patterns []*regexp.Regexp) bool {
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// mixedLookalikes is true when a look-alike character sits next to ASCII
// letters, as in a spoofed domain name.
func mixedLookalikes(s string) bool {
	result := unicode.Scan(s)
	if result.Clean {
		return false
	}
	hasHomoglyph := false
	for _, t := range result.Threats {
		if strings.HasPrefix(t.Category, "homoglyph-") {
			hasHomoglyph = true
			break
		}
	}
	if !hasHomoglyph {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func mostRestrictive(a, b string) string {
	order := map[string]int{VerdictAllow: 0, VerdictAudit: 1, VerdictBlock: 2}
	if order[b] > order[a] {
		return b
	}
	return a
}
