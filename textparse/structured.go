package textparse

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Formats accepted by Structured.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Structured parses content as YAML or JSON and returns the top-level
// mapping or sequence. Parse errors, scalar top levels, and unknown formats
// all return nil: Tier A treats structure extraction as best-effort.
func Structured(content, format string) any {
	var v any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return nil
		}
	case FormatYAML:
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			return nil
		}
	default:
		return nil
	}

	switch v.(type) {
	case map[string]any, []any:
		return v
	}
	return nil
}
