package perception

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/deskpilot/internal/protocol"
)

func TestCandidates_Grounding(t *testing.T) {
	tokens := []Token{
		{Text: "Hello", BBox: BBox{0, 0, 10, 10}, Confidence: 0.9},
		{Text: "Save", BBox: BBox{10, 20, 30, 40}, Confidence: 0.3},
		{Text: "Email", BBox: BBox{0, 0, 4, 4}, Confidence: 0.2},
		{Text: "Search", BBox: BBox{0, 0, 2, 2}, Confidence: 0.7},
		{Text: "Phone:", BBox: BBox{0, 0, 2, 2}, Confidence: 0.1},
	}

	got := Candidates(tokens, 100, 100)
	require.Len(t, got, 5)

	byText := map[string]Candidate{}
	for _, c := range got {
		byText[c.Text] = c
	}

	assert.Equal(t, CandidateButton, byText["Save"].Kind)
	assert.Equal(t, 0.6, byText["Save"].Score)
	assert.Equal(t, [2]int{20, 30}, byText["Save"].Center)

	// "search" is both a button and an input term; button wins.
	assert.Equal(t, CandidateButton, byText["Search"].Kind)
	assert.Equal(t, 0.7, byText["Search"].Score)

	assert.Equal(t, CandidateInput, byText["Email"].Kind)
	assert.Equal(t, 0.55, byText["Email"].Score)
	assert.Equal(t, CandidateInput, byText["Phone:"].Kind)
	assert.Equal(t, CandidateText, byText["Hello"].Kind)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	assert.Equal(t, "Hello", got[0].Text)
}

func TestNormalizeConfidence(t *testing.T) {
	assert.Equal(t, 0.5, NormalizeConfidence(0.5))
	assert.Equal(t, 0.87, NormalizeConfidence(87))
	assert.Equal(t, 1.0, NormalizeConfidence(250))
	assert.Equal(t, 0.0, NormalizeConfidence(-1))
}

func TestParseTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t10\t20\t30\t12\t96.5\tLogin\n" +
		"5\t1\t1\t1\t1\t2\t50\t20\t40\t12\tbad\tPassword:\n" +
		"5\t1\t1\t1\t1\t3\tx\t20\t40\t12\t90\tbroken\n"

	tokens := ParseTSV([]byte(tsv))
	require.Len(t, tokens, 2)
	assert.Equal(t, "Login", tokens[0].Text)
	assert.Equal(t, BBox{10, 20, 40, 32}, tokens[0].BBox)
	assert.InDelta(t, 0.965, tokens[0].Confidence, 1e-9)
	assert.Equal(t, "Password:", tokens[1].Text)
	assert.Equal(t, 0.0, tokens[1].Confidence)
}

func TestSnapshotHelpers(t *testing.T) {
	snap, err := Static{Tokens: []Token{
		{Text: "Please verify: I am not a robot"},
		{Text: "OK", Confidence: 0.1},
	}}.Analyze(context.Background(), protocol.ScreenCapture{Width: 10, Height: 10})
	require.NoError(t, err)

	assert.Equal(t, []string{"Please verify: I am not a robot"}, snap.Texts(1))
	assert.Equal(t, "OK", snap.CandidateTexts(5)[0])
	assert.Len(t, snap.CandidateTexts(5), 2)
}

func TestTesseract_MissingBinaryIsEmpty(t *testing.T) {
	ts := &Tesseract{}
	snap, err := ts.Analyze(context.Background(), protocol.ScreenCapture{ImageBase64: "aGk=", Width: 1, Height: 1})
	require.NoError(t, err)
	assert.Empty(t, snap.Tokens)
}

func TestNop(t *testing.T) {
	snap, err := Nop{}.Analyze(context.Background(), protocol.ScreenCapture{})
	require.NoError(t, err)
	assert.Empty(t, snap.Candidates)
}
