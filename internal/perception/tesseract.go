package perception

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gzhole/deskpilot/internal/protocol"
)

// Tesseract runs the tesseract CLI over the capture. When the binary is not
// on PATH every call returns an empty snapshot.
type Tesseract struct {
	Binary string
	Logger *zap.Logger
}

func NewTesseract(logger *zap.Logger) *Tesseract {
	if logger == nil {
		logger = zap.NewNop()
	}
	bin, err := exec.LookPath("tesseract")
	if err != nil {
		logger.Debug("tesseract not found; OCR disabled")
		bin = ""
	}
	return &Tesseract{Binary: bin, Logger: logger}
}

func (t *Tesseract) Analyze(ctx context.Context, screen protocol.ScreenCapture) (Snapshot, error) {
	if t.Binary == "" {
		return Snapshot{}, nil
	}
	img, err := base64.StdEncoding.DecodeString(screen.ImageBase64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode screenshot: %w", err)
	}

	f, err := os.CreateTemp("", "deskpilot-ocr-*.png")
	if err != nil {
		return Snapshot{}, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(img); err != nil {
		f.Close()
		return Snapshot{}, err
	}
	if err := f.Close(); err != nil {
		return Snapshot{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Binary, f.Name(), "stdout", "tsv")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Snapshot{}, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	tokens := ParseTSV(stdout.Bytes())
	return Snapshot{Tokens: tokens, Candidates: Candidates(tokens, screen.Width, screen.Height)}, nil
}

// ParseTSV reads tesseract's TSV output (level, page_num, block_num,
// par_num, line_num, word_num, left, top, width, height, conf, text) and
// keeps rows with non-empty text.
func ParseTSV(data []byte) []Token {
	var tokens []Token
	sc := bufio.NewScanner(bytes.NewReader(data))
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		left, err1 := strconv.Atoi(cols[6])
		top, err2 := strconv.Atoi(cols[7])
		w, err3 := strconv.Atoi(cols[8])
		h, err4 := strconv.Atoi(cols[9])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil {
			conf = 0
		}
		tokens = append(tokens, Token{
			Text:       text,
			BBox:       BBox{left, top, left + w, top + h},
			Confidence: NormalizeConfidence(conf),
		})
	}
	return tokens
}
