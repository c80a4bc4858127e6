package action

import "fmt"

// Kind names one of the twelve supported desktop actions.
type Kind string

const (
	KindClick       Kind = "click"
	KindDoubleClick Kind = "double_click"
	KindRightClick  Kind = "right_click"
	KindType        Kind = "type"
	KindHotkey      Kind = "hotkey"
	KindScroll      Kind = "scroll"
	KindMove        Kind = "move"
	KindDrag        Kind = "drag"
	KindWait        Kind = "wait"
	KindScreenshot  Kind = "screenshot"
	KindDone        Kind = "done"
	KindFail        Kind = "fail"
)

// Kinds lists every supported kind in wire order.
var Kinds = []Kind{
	KindClick, KindDoubleClick, KindRightClick, KindType, KindHotkey, KindScroll,
	KindMove, KindDrag, KindWait, KindScreenshot, KindDone, KindFail,
}

// Supported reports whether k is one of the twelve known kinds.
func Supported(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Action is a closed sum over the supported kinds. Only types in this
// package implement it.
type Action interface {
	Kind() Kind
	sealed()
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Click struct{ X, Y int }
type DoubleClick struct{ X, Y int }
type RightClick struct{ X, Y int }
type Move struct{ X, Y int }

type Type struct{ Text string }

type Hotkey struct{ Keys []string }

type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

type Scroll struct {
	Direction ScrollDirection
	Amount    int
}

type Drag struct{ From, To Point }

type Wait struct{ Seconds float64 }

type Screenshot struct{}

type Done struct{ Summary string }

type Fail struct{ Reason string }

func (Click) Kind() Kind       { return KindClick }
func (DoubleClick) Kind() Kind { return KindDoubleClick }
func (RightClick) Kind() Kind  { return KindRightClick }
func (Type) Kind() Kind        { return KindType }
func (Hotkey) Kind() Kind      { return KindHotkey }
func (Scroll) Kind() Kind      { return KindScroll }
func (Move) Kind() Kind        { return KindMove }
func (Drag) Kind() Kind        { return KindDrag }
func (Wait) Kind() Kind        { return KindWait }
func (Screenshot) Kind() Kind  { return KindScreenshot }
func (Done) Kind() Kind        { return KindDone }
func (Fail) Kind() Kind        { return KindFail }

func (Click) sealed()       {}
func (DoubleClick) sealed() {}
func (RightClick) sealed()  {}
func (Type) sealed()        {}
func (Hotkey) sealed()      {}
func (Scroll) sealed()      {}
func (Move) sealed()        {}
func (Drag) sealed()        {}
func (Wait) sealed()        {}
func (Screenshot) sealed()  {}
func (Done) sealed()        {}
func (Fail) sealed()        {}

// Terminal reports whether a ends a session.
func Terminal(a Action) bool {
	switch a.(type) {
	case Done, Fail:
		return true
	}
	return false
}

// Describe renders a one-line summary of a for logs and prompts. Typed text
// is passed through redactFn when non-nil.
func Describe(a Action, redactFn func(string) string) string {
	switch v := a.(type) {
	case Click:
		return fmt.Sprintf("click(%d, %d)", v.X, v.Y)
	case DoubleClick:
		return fmt.Sprintf("double_click(%d, %d)", v.X, v.Y)
	case RightClick:
		return fmt.Sprintf("right_click(%d, %d)", v.X, v.Y)
	case Move:
		return fmt.Sprintf("move(%d, %d)", v.X, v.Y)
	case Type:
		text := v.Text
		if redactFn != nil {
			text = redactFn(text)
		}
		if r := []rune(text); len(r) > 60 {
			text = string(r[:60]) + "..."
		}
		return fmt.Sprintf("type(%q)", text)
	case Hotkey:
		return fmt.Sprintf("hotkey(%v)", v.Keys)
	case Scroll:
		return fmt.Sprintf("scroll(%s, %d)", v.Direction, v.Amount)
	case Drag:
		return fmt.Sprintf("drag(%d,%d -> %d,%d)", v.From.X, v.From.Y, v.To.X, v.To.Y)
	case Wait:
		return fmt.Sprintf("wait(%gs)", v.Seconds)
	case Screenshot:
		return "screenshot()"
	case Done:
		return fmt.Sprintf("done(%q)", v.Summary)
	case Fail:
		return fmt.Sprintf("fail(%q)", v.Reason)
	case nil:
		return "<none>"
	default:
		return fmt.Sprintf("<unknown %T>", a)
	}
}
