// Package robot drives the real desktop through robotgo.
package robot

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-vgo/robotgo"
	"go.uber.org/zap"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/desktop"
	"github.com/gzhole/deskpilot/internal/protocol"
)

// keyNames maps normalized hotkey names to robotgo key names.
var keyNames = map[string]string{
	"ctrl": "control",
	"cmd":  "command",
	"win":  "command",
	"esc":  "escape",
}

var modifiers = map[string]bool{
	"ctrl": true, "alt": true, "shift": true, "cmd": true, "win": true,
}

// Desktop implements desktop.Screen, desktop.Window and desktop.Input.
type Desktop struct {
	logger *zap.Logger
}

var (
	_ desktop.Screen = (*Desktop)(nil)
	_ desktop.Window = (*Desktop)(nil)
	_ desktop.Input  = (*Desktop)(nil)
)

func New(logger *zap.Logger) *Desktop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Desktop{logger: logger.Named("robot")}
}

func (d *Desktop) Capture(ctx context.Context) (protocol.ScreenCapture, error) {
	if err := ctx.Err(); err != nil {
		return protocol.ScreenCapture{}, err
	}
	img, err := robotgo.CaptureImg()
	if err != nil {
		return protocol.ScreenCapture{}, fmt.Errorf("capture screen: %w", err)
	}
	encoded, err := desktop.EncodePNG(img)
	if err != nil {
		return protocol.ScreenCapture{}, err
	}
	b := img.Bounds()
	return protocol.ScreenCapture{ImageBase64: encoded, Width: b.Dx(), Height: b.Dy()}, nil
}

// ActiveWindow returns "title (pid=N)" or "" when no titled window has
// focus.
func (d *Desktop) ActiveWindow(context.Context) string {
	title := strings.TrimSpace(robotgo.GetTitle())
	if title == "" {
		return ""
	}
	return fmt.Sprintf("%s (pid=%d)", title, robotgo.GetPid())
}

// Execute performs a. wait is a no-op here; the control loop owns the
// delay.
func (d *Desktop) Execute(ctx context.Context, a action.Action) (msg string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("input backend panic: %v", r)
		}
	}()

	switch v := a.(type) {
	case action.Click:
		robotgo.Move(v.X, v.Y)
		robotgo.Click("left", false)
	case action.DoubleClick:
		robotgo.Move(v.X, v.Y)
		robotgo.Click("left", true)
	case action.RightClick:
		robotgo.Move(v.X, v.Y)
		robotgo.Click("right", false)
	case action.Move:
		robotgo.Move(v.X, v.Y)
	case action.Type:
		robotgo.TypeStr(v.Text)
	case action.Hotkey:
		if err := tapHotkey(v.Keys); err != nil {
			return "", err
		}
	case action.Scroll:
		robotgo.ScrollDir(v.Amount, string(v.Direction))
	case action.Drag:
		robotgo.Move(v.From.X, v.From.Y)
		robotgo.Toggle("left")
		robotgo.MoveSmooth(v.To.X, v.To.Y)
		robotgo.Toggle("left", "up")
	case action.Wait, action.Screenshot:
	case action.Done:
		return v.Summary, nil
	case action.Fail:
		return v.Reason, nil
	default:
		return "", fmt.Errorf("unsupported action: %T", a)
	}

	d.logger.Debug("Executed", zap.String("action", action.Describe(a, nil)))
	return "executed:" + string(a.Kind()), nil
}

// tapHotkey presses the last non-modifier key with every modifier held. A
// chord made only of modifiers taps the last one.
func tapHotkey(keys []string) error {
	key, mods := splitChord(keys)
	if key == "" {
		return fmt.Errorf("empty hotkey")
	}
	args := make([]interface{}, len(mods))
	for i, m := range mods {
		args[i] = m
	}
	if err := robotgo.KeyTap(key, args...); err != nil {
		return fmt.Errorf("hotkey %v: %w", keys, err)
	}
	return nil
}

// splitChord separates keys into the main key and robotgo modifier names.
func splitChord(keys []string) (string, []string) {
	var key string
	var mods []string
	for _, k := range keys {
		name := k
		if mapped, ok := keyNames[k]; ok {
			name = mapped
		}
		if modifiers[k] {
			mods = append(mods, name)
			continue
		}
		if key != "" {
			// Extra non-modifier keys are held like modifiers.
			mods = append(mods, key)
		}
		key = name
	}
	if key == "" && len(mods) > 0 {
		key, mods = mods[len(mods)-1], mods[:len(mods)-1]
	}
	return key, mods
}
