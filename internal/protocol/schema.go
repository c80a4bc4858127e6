package protocol

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/gzhole/deskpilot/internal/action"
)

var envelopeType = reflect.TypeOf(action.Envelope{})

// actionSchema describes the tagged action union as a oneOf over kinds.
func actionSchema() *jsonschema.Schema {
	union := &jsonschema.Schema{Title: "DesktopAction"}
	for _, kind := range action.Kinds {
		params, _ := action.ParamSchema(kind)
		src := fmt.Sprintf(`{"type":"object","required":["action"],"properties":{"action":{"const":%q},"parameters":%s}}`, kind, params)
		var s jsonschema.Schema
		if err := json.Unmarshal([]byte(src), &s); err != nil {
			// The sources are package constants; a failure here is a programming error.
			panic(fmt.Sprintf("action schema for %s: %v", kind, err))
		}
		union.OneOf = append(union.OneOf, &s)
	}
	return union
}

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == envelopeType {
				return actionSchema()
			}
			return nil
		},
	}
}

// Schemas returns the JSON Schema of every planner wire contract keyed by
// file name.
func Schemas() (map[string][]byte, error) {
	r := reflector()
	models := map[string]any{
		"turn_request.schema.json":           &TurnRequest{},
		"turn_response.schema.json":          &TurnResponse{},
		"start_session_request.schema.json":  &StartSessionRequest{},
		"start_session_response.schema.json": &StartSessionResponse{},
		"confirm_request.schema.json":        &ConfirmRequest{},
		"confirm_response.schema.json":       &ConfirmResponse{},
	}
	out := make(map[string][]byte, len(models))
	for name, model := range models {
		data, err := json.MarshalIndent(r.Reflect(model), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// ExportSchemas writes Schemas into dir, creating it when needed, and
// returns the written paths in sorted order.
func ExportSchemas(dir string) ([]string, error) {
	schemas, err := Schemas()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create schema dir: %w", err)
	}
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, schemas[name], 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
