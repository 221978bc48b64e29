package tools

import (
	"encoding/json"
	"errors"
	"testing"
)

var sampleSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"path":    map[string]any{"type": "string"},
		"count":   map[string]any{"type": "integer"},
		"ratio":   map[string]any{"type": "number"},
		"verbose": map[string]any{"type": "boolean"},
		"tags":    map[string]any{"type": "array"},
		"extra":   map[string]any{"type": "object"},
	},
	"required": []string{"path"},
}

func TestValidateArgsAccepts(t *testing.T) {
	cases := []string{
		`{"path": "a.txt"}`,
		`{"path": "a.txt", "count": 3, "ratio": 0.5, "verbose": true}`,
		`{"path": "a.txt", "tags": ["x"], "extra": {"k": "v"}}`,
		`{"path": "a.txt", "undeclared": "allowed"}`,
	}
	for _, c := range cases {
		if err := ValidateArgs("t", sampleSchema, json.RawMessage(c)); err != nil {
			t.Errorf("%s: unexpected error %v", c, err)
		}
	}
}

func TestValidateArgsRejects(t *testing.T) {
	cases := []string{
		`{}`,                            // missing required
		`{"path": 7}`,                   // wrong type
		`{"path": "x", "count": 1.5}`,   // non-integral integer
		`{"path": "x", "verbose": "y"}`, // wrong type
		`[1,2,3]`,                       // not an object
		`{"path": "x", "tags": "nope"}`,
	}
	for _, c := range cases {
		err := ValidateArgs("t", sampleSchema, json.RawMessage(c))
		var te *ToolError
		if !errors.As(err, &te) || te.Kind != ErrInvalidInput {
			t.Errorf("%s: err = %v, want invalid_input", c, err)
		}
	}
}

func TestValidateArgsEmptyTreatedAsEmptyObject(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
	if err := ValidateArgs("t", schema, nil); err != nil {
		t.Errorf("nil args against empty schema: %v", err)
	}
}

func TestValidateArgsRequiredFromJSON(t *testing.T) {
	// Schemas decoded from JSON carry required as []any.
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
		"required": []any{"path"},
	}
	if err := ValidateArgs("t", schema, json.RawMessage(`{}`)); err == nil {
		t.Error("missing required key accepted when required is []any")
	}
	if err := ValidateArgs("t", schema, json.RawMessage(`{"path":"p"}`)); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}
}
