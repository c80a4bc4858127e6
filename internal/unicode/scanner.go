// Package unicode finds characters that make text read differently on
// screen than it is typed or matched: invisible, bidi and tag characters,
// raw control codes and Latin look-alikes.
package unicode

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Severities of a Threat.
const (
	SeverityHigh = "high"
	SeverityLow  = "low"
)

// Threat is one suspicious character.
type Threat struct {
	Category  string // zero-width, bidi-override, tag-char, control-char, invalid-utf8, homoglyph-*
	Codepoint string // e.g. "U+200B"
	Position  int    // byte offset in the input
	Severity  string
}

func (t Threat) String() string {
	return fmt.Sprintf("%s %s at %d", t.Category, t.Codepoint, t.Position)
}

// ScanResult holds the output of a Scan.
type ScanResult struct {
	Clean   bool
	Threats []Threat
	// Sanitized is the input without high-severity characters.
	Sanitized string
}

// HasHigh reports whether any threat is high severity.
func (r ScanResult) HasHigh() bool {
	for _, t := range r.Threats {
		if t.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Categories returns the distinct threat categories in first-seen order.
func (r ScanResult) Categories() []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range r.Threats {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	return out
}

// Scan inspects text for smuggling characters.
func Scan(input string) ScanResult {
	result := ScanResult{Clean: true}
	var sanitized strings.Builder
	sanitized.Grow(len(input))

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRuneInString(input[i:])

		if r == utf8.RuneError && size == 1 {
			result.Clean = false
			result.Threats = append(result.Threats, Threat{
				Category:  "invalid-utf8",
				Codepoint: fmt.Sprintf("0x%02X", input[i]),
				Position:  i,
				Severity:  SeverityHigh,
			})
			i++
			continue
		}

		if category, severity := classifyRune(r); category != "" {
			result.Clean = false
			result.Threats = append(result.Threats, Threat{
				Category:  category,
				Codepoint: fmt.Sprintf("U+%04X", r),
				Position:  i,
				Severity:  severity,
			})
			if severity == SeverityHigh {
				i += size
				continue
			}
		}

		sanitized.WriteRune(r)
		i += size
	}

	result.Sanitized = sanitized.String()
	return result
}

func classifyRune(r rune) (category, severity string) {
	switch {
	case isZeroWidth(r):
		return "zero-width", SeverityHigh
	case isBidiOverride(r):
		return "bidi-override", SeverityHigh
	case r >= 0xE0001 && r <= 0xE007F:
		return "tag-char", SeverityHigh
	case isUnsafeControl(r):
		return "control-char", SeverityHigh
	}
	if unicode.Is(unicode.Cyrillic, r) {
		if _, ok := cyrillicHomoglyphs[r]; ok {
			return "homoglyph-cyrillic", SeverityLow
		}
	}
	if unicode.Is(unicode.Greek, r) {
		if _, ok := greekHomoglyphs[r]; ok {
			return "homoglyph-greek", SeverityLow
		}
	}
	return "", ""
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u180E', '\u200E', '\u200F':
		return true
	}
	return false
}

func isBidiOverride(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

// isUnsafeControl flags C0, DEL and C1 controls. Tab, newline and carriage
// return are typed legitimately.
func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return r <= 0x1F || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}

// Cyrillic letters confusable with Latin ones.
var cyrillicHomoglyphs = map[rune]rune{
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'К': 'K', 'М': 'M', 'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P', 'Т': 'T', 'х': 'x', 'Х': 'X', 'у': 'y', 'У': 'Y',
}

// Greek letters confusable with Latin ones.
var greekHomoglyphs = map[rune]rune{
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y', 'Ζ': 'Z',
}
