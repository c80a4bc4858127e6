package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// wireEnvelope is the tagged form exchanged with planners and executors.
type wireEnvelope struct {
	Action     string          `json:"action"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Parse decodes the wire form {"action": kind, "parameters": {...}} into a
// typed Action. Parameters are checked against the per-kind schema but not
// normalized.
func Parse(raw []byte) (Action, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ValidationError{Code: CodeMalformedAction, Message: "action is not a JSON object", Err: err}
	}
	kind := Kind(env.Action)
	if env.Action == "" {
		return nil, &ValidationError{Code: CodeUnsupportedAction, Message: "missing action tag"}
	}
	if !Supported(kind) {
		return nil, &ValidationError{Code: CodeUnsupportedAction, Kind: kind, Message: fmt.Sprintf("unsupported action: %s", env.Action)}
	}

	params := env.Parameters
	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = []byte("{}")
	}
	var generic any
	if err := json.Unmarshal(params, &generic); err != nil {
		return nil, &ValidationError{Code: CodeMalformedAction, Kind: kind, Message: "parameters are not valid JSON", Err: err}
	}
	if err := validateParams(kind, generic); err != nil {
		return nil, err
	}
	return decodeParams(kind, params)
}

type coordParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type dragParams struct {
	From [2]float64 `json:"from"`
	To   [2]float64 `json:"to"`
}

func toInt(v float64) int {
	switch {
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func decodeParams(kind Kind, params []byte) (Action, error) {
	fail := func(err error) (Action, error) {
		return nil, &ValidationError{Code: CodeInvalidParameters, Kind: kind, Message: "cannot decode parameters", Err: err}
	}
	switch kind {
	case KindClick, KindDoubleClick, KindRightClick, KindMove:
		var p coordParams
		if err := json.Unmarshal(params, &p); err != nil {
			return fail(err)
		}
		x, y := toInt(p.X), toInt(p.Y)
		switch kind {
		case KindClick:
			return Click{X: x, Y: y}, nil
		case KindDoubleClick:
			return DoubleClick{X: x, Y: y}, nil
		case KindRightClick:
			return RightClick{X: x, Y: y}, nil
		default:
			return Move{X: x, Y: y}, nil
		}
	case KindType:
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fail(err)
		}
		return Type{Text: p.Text}, nil
	case KindHotkey:
		var p struct {
			Keys []string `json:"keys"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fail(err)
		}
		return Hotkey{Keys: p.Keys}, nil
	case KindScroll:
		var p struct {
			Direction string  `json:"direction"`
			Amount    float64 `json:"amount"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fail(err)
		}
		return Scroll{Direction: ScrollDirection(p.Direction), Amount: toInt(p.Amount)}, nil
	case KindDrag:
		var p dragParams
		if err := json.Unmarshal(params, &p); err != nil {
			return fail(err)
		}
		return Drag{
			From: Point{X: toInt(p.From[0]), Y: toInt(p.From[1])},
			To:   Point{X: toInt(p.To[0]), Y: toInt(p.To[1])},
		}, nil
	case KindWait:
		var p struct {
			Seconds float64 `json:"seconds"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fail(err)
		}
		return Wait{Seconds: p.Seconds}, nil
	case KindScreenshot:
		return Screenshot{}, nil
	case KindDone:
		var p struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fail(err)
		}
		return Done{Summary: p.Summary}, nil
	case KindFail:
		var p struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fail(err)
		}
		return Fail{Reason: p.Reason}, nil
	default:
		return nil, &ValidationError{Code: CodeUnsupportedAction, Kind: kind, Message: "unsupported action"}
	}
}

// Params returns the wire parameters of a as a generic map.
func Params(a Action) (map[string]any, error) {
	switch v := a.(type) {
	case Click:
		return map[string]any{"x": v.X, "y": v.Y}, nil
	case DoubleClick:
		return map[string]any{"x": v.X, "y": v.Y}, nil
	case RightClick:
		return map[string]any{"x": v.X, "y": v.Y}, nil
	case Move:
		return map[string]any{"x": v.X, "y": v.Y}, nil
	case Type:
		return map[string]any{"text": v.Text}, nil
	case Hotkey:
		keys := v.Keys
		if keys == nil {
			keys = []string{}
		}
		return map[string]any{"keys": keys}, nil
	case Scroll:
		return map[string]any{"direction": string(v.Direction), "amount": v.Amount}, nil
	case Drag:
		return map[string]any{
			"from": []int{v.From.X, v.From.Y},
			"to":   []int{v.To.X, v.To.Y},
		}, nil
	case Wait:
		return map[string]any{"seconds": v.Seconds}, nil
	case Screenshot:
		return map[string]any{}, nil
	case Done:
		return map[string]any{"summary": v.Summary}, nil
	case Fail:
		return map[string]any{"reason": v.Reason}, nil
	default:
		return nil, &ValidationError{Code: CodeUnsupportedAction, Message: fmt.Sprintf("unsupported action type %T", a)}
	}
}

// Marshal encodes a in canonical wire form: sorted keys, compact, no HTML
// escaping.
func Marshal(a Action) ([]byte, error) {
	if a == nil {
		return nil, &ValidationError{Code: CodeUnsupportedAction, Message: "nil action"}
	}
	params, err := Params(a)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any{"action": string(a.Kind()), "parameters": params}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Envelope carries an Action through encoding/json in wire form.
type Envelope struct {
	Action Action
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Action == nil {
		return []byte("null"), nil
	}
	return Marshal(e.Action)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		e.Action = nil
		return nil
	}
	a, err := Parse(data)
	if err != nil {
		return err
	}
	e.Action = a
	return nil
}
