package normalize

import (
	"fmt"
	"strings"

	"github.com/gzhole/deskpilot/internal/action"
)

const (
	MaxTextRunes    = 10000
	MinScrollAmount = 1
	MaxScrollAmount = 2000
)

var hotkeyAllowed = map[string]bool{
	"ctrl": true, "alt": true, "shift": true, "win": true, "cmd": true,
	"tab": true, "enter": true, "esc": true, "space": true,
	"up": true, "down": true, "left": true, "right": true,
	"delete": true, "backspace": true,
	"a": true, "c": true, "v": true, "x": true, "s": true, "n": true, "w": true,
	"f": true, "t": true, "r": true, "p": true, "z": true, "y": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

// HotkeyAllowed reports whether key (already lower-cased and trimmed) may
// appear in a hotkey chord.
func HotkeyAllowed(key string) bool {
	return hotkeyAllowed[key]
}

// Raw parses a wire-form action and normalizes it for a width x height screen.
func Raw(raw []byte, width, height int) (action.Action, error) {
	a, err := action.Parse(raw)
	if err != nil {
		return nil, err
	}
	return Action(a, width, height)
}

// Action clamps coordinates to the screen, canonicalizes hotkey names,
// bounds scroll amounts and truncates typed text.
func Action(a action.Action, width, height int) (action.Action, error) {
	maxX := max(0, width-1)
	maxY := max(0, height-1)

	switch v := a.(type) {
	case action.Click:
		return action.Click{X: clamp(v.X, 0, maxX), Y: clamp(v.Y, 0, maxY)}, nil
	case action.DoubleClick:
		return action.DoubleClick{X: clamp(v.X, 0, maxX), Y: clamp(v.Y, 0, maxY)}, nil
	case action.RightClick:
		return action.RightClick{X: clamp(v.X, 0, maxX), Y: clamp(v.Y, 0, maxY)}, nil
	case action.Move:
		return action.Move{X: clamp(v.X, 0, maxX), Y: clamp(v.Y, 0, maxY)}, nil
	case action.Drag:
		return action.Drag{
			From: clampPoint(v.From, maxX, maxY),
			To:   clampPoint(v.To, maxX, maxY),
		}, nil
	case action.Hotkey:
		return normalizeHotkey(v)
	case action.Scroll:
		return action.Scroll{Direction: v.Direction, Amount: clamp(v.Amount, MinScrollAmount, MaxScrollAmount)}, nil
	case action.Type:
		return action.Type{Text: truncateRunes(v.Text, MaxTextRunes)}, nil
	case action.Wait, action.Screenshot, action.Done, action.Fail:
		return v, nil
	default:
		return nil, &action.ValidationError{
			Code:    action.CodeUnsupportedAction,
			Message: fmt.Sprintf("unsupported action type %T", a),
		}
	}
}

func normalizeHotkey(h action.Hotkey) (action.Action, error) {
	keys := make([]string, 0, len(h.Keys))
	var invalid []string
	for _, k := range h.Keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if !hotkeyAllowed[k] {
			invalid = append(invalid, k)
		}
		keys = append(keys, k)
	}
	if len(invalid) > 0 {
		return nil, &action.ValidationError{
			Code:    action.CodeInvalidHotkey,
			Kind:    action.KindHotkey,
			Message: "invalid hotkey key(s)",
			Keys:    invalid,
		}
	}
	return action.Hotkey{Keys: keys}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampPoint(p action.Point, maxX, maxY int) action.Point {
	return action.Point{X: clamp(p.X, 0, maxX), Y: clamp(p.Y, 0, maxY)}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
