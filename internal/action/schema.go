package action

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const pointSchema = `{"type":"array","items":{"type":"integer"},"minItems":2,"maxItems":2}`

const coordParamsSchema = `{
  "type": "object",
  "required": ["x", "y"],
  "properties": {
    "x": {"type": "integer"},
    "y": {"type": "integer"}
  }
}`

// Type text has no upper bound here; oversized text is truncated during
// normalization.
var paramSchemas = map[Kind]string{
	KindClick:       coordParamsSchema,
	KindDoubleClick: coordParamsSchema,
	KindRightClick:  coordParamsSchema,
	KindMove:        coordParamsSchema,
	KindType: `{
  "type": "object",
  "required": ["text"],
  "properties": {"text": {"type": "string", "minLength": 1}}
}`,
	KindHotkey: `{
  "type": "object",
  "required": ["keys"],
  "properties": {
    "keys": {"type": "array", "items": {"type": "string"}, "minItems": 1, "maxItems": 6}
  }
}`,
	KindScroll: `{
  "type": "object",
  "required": ["direction", "amount"],
  "properties": {
    "direction": {"enum": ["up", "down"]},
    "amount": {"type": "integer", "minimum": 1, "maximum": 5000}
  }
}`,
	KindDrag: `{
  "type": "object",
  "required": ["from", "to"],
  "properties": {"from": ` + pointSchema + `, "to": ` + pointSchema + `}
}`,
	KindWait: `{
  "type": "object",
  "required": ["seconds"],
  "properties": {"seconds": {"type": "number", "minimum": 0, "maximum": 60}}
}`,
	KindScreenshot: `{"type": "object", "additionalProperties": false}`,
	KindDone: `{
  "type": "object",
  "required": ["summary"],
  "properties": {"summary": {"type": "string", "minLength": 1, "maxLength": 5000}}
}`,
	KindFail: `{
  "type": "object",
  "required": ["reason"],
  "properties": {"reason": {"type": "string", "minLength": 1, "maxLength": 5000}}
}`,
}

type schemaRegistry struct {
	once    sync.Once
	initErr error
	byKind  map[Kind]*jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		schemas.byKind = make(map[Kind]*jsonschema.Schema, len(paramSchemas))
		for kind, src := range paramSchemas {
			compiled, err := jsonschema.CompileString("action_"+string(kind)+".json", src)
			if err != nil {
				schemas.initErr = fmt.Errorf("compile %s schema: %w", kind, err)
				return
			}
			schemas.byKind[kind] = compiled
		}
	})
	return schemas.initErr
}

// validateParams checks decoded parameters against the schema for kind.
func validateParams(kind Kind, params any) error {
	if err := initSchemas(); err != nil {
		return err
	}
	schema, ok := schemas.byKind[kind]
	if !ok {
		return &ValidationError{Code: CodeUnsupportedAction, Kind: kind, Message: "unsupported action"}
	}
	if err := schema.Validate(params); err != nil {
		return &ValidationError{Code: CodeInvalidParameters, Kind: kind, Message: "parameters do not match schema", Err: err}
	}
	return nil
}

// ParamSchema returns the JSON Schema source for the parameters of kind.
func ParamSchema(kind Kind) (string, bool) {
	src, ok := paramSchemas[kind]
	return src, ok
}
