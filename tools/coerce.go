package tools

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
)

// scalarTypes returns the declared JSON type of each top-level property
// whose type is integer, number or boolean. Union types contribute their
// first scalar member.
func scalarTypes(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var schema struct {
		Properties map[string]struct {
			Type any `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	var out map[string]string
	for name, p := range schema.Properties {
		var candidates []any
		switch t := p.Type.(type) {
		case string:
			candidates = []any{t}
		case []any:
			candidates = t
		}
		for _, c := range candidates {
			s, _ := c.(string)
			if s != "integer" && s != "number" && s != "boolean" {
				continue
			}
			if out == nil {
				out = make(map[string]string)
			}
			out[name] = s
			break
		}
	}
	return out
}

// coerceArgs converts string values of scalar properties to their declared
// type, using the same weak decoding rules the MCP servers apply, so that
// "3" reaches a backend as 3. Values that do not parse are left for schema
// validation to reject.
func coerceArgs(types map[string]string, args map[string]any) {
	for name, typ := range types {
		s, ok := args[name].(string)
		if !ok || s == "" {
			continue
		}
		var (
			target any
			err    error
		)
		switch typ {
		case "integer":
			var n int64
			err = mapstructure.WeakDecode(s, &n)
			target = n
		case "number":
			var f float64
			err = mapstructure.WeakDecode(s, &f)
			target = f
		case "boolean":
			var b bool
			err = mapstructure.WeakDecode(s, &b)
			target = b
		}
		if err == nil {
			args[name] = target
		}
	}
}
