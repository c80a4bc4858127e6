// Package perception turns a screen capture into OCR tokens and grounded UI
// candidates for the planner.
package perception

import (
	"context"
	"sort"
	"strings"

	"github.com/gzhole/deskpilot/internal/protocol"
)

// BBox is x1, y1, x2, y2 in screen pixels.
type BBox [4]int

type Token struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

type CandidateKind string

const (
	CandidateButton CandidateKind = "button"
	CandidateInput  CandidateKind = "input"
	CandidateText   CandidateKind = "text"
)

type Candidate struct {
	Kind   CandidateKind `json:"kind"`
	Center [2]int        `json:"center"`
	Text   string        `json:"text"`
	BBox   BBox          `json:"bbox"`
	Score  float64       `json:"score"`
}

type Snapshot struct {
	Tokens     []Token
	Candidates []Candidate
}

// Texts returns at most limit token texts in reading order.
func (s Snapshot) Texts(limit int) []string {
	n := min(limit, len(s.Tokens))
	out := make([]string, 0, n)
	for _, t := range s.Tokens[:n] {
		out = append(out, t.Text)
	}
	return out
}

// CandidateTexts returns at most limit candidate texts, best first.
func (s Snapshot) CandidateTexts(limit int) []string {
	n := min(limit, len(s.Candidates))
	out := make([]string, 0, n)
	for _, c := range s.Candidates[:n] {
		out = append(out, c.Text)
	}
	return out
}

// Analyzer extracts a Snapshot from a capture. Implementations are best
// effort: missing OCR tooling yields an empty snapshot, not an error.
type Analyzer interface {
	Analyze(ctx context.Context, screen protocol.ScreenCapture) (Snapshot, error)
}

// Nop returns empty snapshots.
type Nop struct{}

func (Nop) Analyze(context.Context, protocol.ScreenCapture) (Snapshot, error) {
	return Snapshot{}, nil
}

// Static returns a fixed set of tokens, grounded on every call. Useful for
// tests and scripted demos.
type Static struct {
	Tokens []Token
}

func (s Static) Analyze(_ context.Context, screen protocol.ScreenCapture) (Snapshot, error) {
	tokens := append([]Token(nil), s.Tokens...)
	return Snapshot{Tokens: tokens, Candidates: Candidates(tokens, screen.Width, screen.Height)}, nil
}

var buttonTerms = map[string]bool{
	"ok": true, "save": true, "send": true, "submit": true, "continue": true,
	"next": true, "search": true, "open": true, "cancel": true, "allow": true,
}

var inputTerms = map[string]bool{
	"search": true, "username": true, "email": true, "password": true, "name": true, "address": true,
}

// Candidates grounds tokens into UI candidates sorted by score, highest
// first. Button terms take precedence over input terms.
func Candidates(tokens []Token, width, height int) []Candidate {
	out := make([]Candidate, 0, len(tokens))
	for _, t := range tokens {
		lowered := strings.ToLower(t.Text)
		kind := CandidateText
		score := t.Confidence
		switch {
		case buttonTerms[lowered]:
			kind = CandidateButton
			score = max(0.6, score)
		case inputTerms[lowered] || strings.HasSuffix(lowered, ":"):
			kind = CandidateInput
			score = max(0.55, score)
		}
		out = append(out, Candidate{
			Kind:   kind,
			Center: [2]int{(t.BBox[0] + t.BBox[2]) / 2, (t.BBox[1] + t.BBox[3]) / 2},
			Text:   t.Text,
			BBox:   t.BBox,
			Score:  score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// NormalizeConfidence maps raw OCR confidence (0-1 or 0-100) into [0, 1].
func NormalizeConfidence(raw float64) float64 {
	if raw > 1 {
		raw /= 100
	}
	return max(0, min(1, raw))
}
