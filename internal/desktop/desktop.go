// Package desktop defines the executor's collaborators for seeing and
// driving the desktop, plus headless implementations.
package desktop

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"go.uber.org/zap"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/protocol"
)

// Screen captures the current display.
type Screen interface {
	Capture(ctx context.Context) (protocol.ScreenCapture, error)
}

// Window reports the focused window title. Best effort: empty when unknown.
type Window interface {
	ActiveWindow(ctx context.Context) string
}

// Input performs one action and returns a short result message. done and
// fail return their summary and reason verbatim.
type Input interface {
	Execute(ctx context.Context, a action.Action) (string, error)
}

// DryRun logs actions instead of performing them.
type DryRun struct {
	logger *zap.Logger
}

func NewDryRun(logger *zap.Logger) *DryRun {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRun{logger: logger.Named("dryrun")}
}

func (d *DryRun) Execute(ctx context.Context, a action.Action) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch v := a.(type) {
	case action.Done:
		return v.Summary, nil
	case action.Fail:
		return v.Reason, nil
	case nil:
		return "", fmt.Errorf("no action to execute")
	}
	d.logger.Info("Dry-run execute", zap.String("action", action.Describe(a, nil)))
	return "dry-run:" + string(a.Kind()), nil
}

// StaticScreen serves the same blank PNG on every capture.
type StaticScreen struct {
	capture protocol.ScreenCapture
}

// NewStaticScreen renders a blank width x height frame.
func NewStaticScreen(width, height int) (*StaticScreen, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("screen size must be positive, got %dx%d", width, height)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	encoded, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &StaticScreen{capture: protocol.ScreenCapture{ImageBase64: encoded, Width: width, Height: height}}, nil
}

func (s *StaticScreen) Capture(ctx context.Context) (protocol.ScreenCapture, error) {
	if err := ctx.Err(); err != nil {
		return protocol.ScreenCapture{}, err
	}
	return s.capture, nil
}

// StaticWindow always reports the same title.
type StaticWindow string

func (w StaticWindow) ActiveWindow(context.Context) string { return string(w) }

// EncodePNG returns img as base64-encoded PNG.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
