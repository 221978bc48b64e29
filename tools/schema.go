package tools

import (
	"encoding/json"
	"fmt"
)

// ValidateArgs checks a tool's arguments against its declared schema before
// dispatch. The schema dialect is the subset the built-in tools declare:
// a top-level object with typed properties and a required list. Arguments
// failing validation never reach the tool.
func ValidateArgs(tool string, schema map[string]any, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	var parsed map[string]any
	if err := json.Unmarshal(args, &parsed); err != nil {
		return NewToolError(tool, ErrInvalidInput, "arguments are not a JSON object: %v", err)
	}

	if t, _ := schema["type"].(string); t != "" && t != "object" {
		return NewToolError(tool, ErrInvalidInput, "tool schema has unsupported top-level type %q", t)
	}

	properties, _ := schema["properties"].(map[string]any)

	for _, name := range requiredKeys(schema) {
		if _, present := parsed[name]; !present {
			return NewToolError(tool, ErrInvalidInput, "missing required argument %q", name)
		}
	}

	for name, value := range parsed {
		propAny, declared := properties[name]
		if !declared {
			continue // undeclared arguments are permitted, per JSON Schema defaults
		}
		prop, _ := propAny.(map[string]any)
		wantType, _ := prop["type"].(string)
		if wantType == "" {
			continue
		}
		if err := checkType(value, wantType); err != nil {
			return NewToolError(tool, ErrInvalidInput, "argument %q: %v", name, err)
		}
	}

	return nil
}

// requiredKeys extracts the required list, tolerating both []string and the
// []any produced by unmarshalling a schema from JSON.
func requiredKeys(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		keys := make([]string, 0, len(req))
		for _, k := range req {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return nil
	}
}

func checkType(value any, wantType string) error {
	switch wantType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("expected number, got %T", value)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("expected integer, got %v", value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
	}
	return nil
}
