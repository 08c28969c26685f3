package json

import (
	"encoding/json"
	"fmt"
)

// Normalize converts a tool result into the text sent back to the LLM.
// Strings pass through unchanged. Raw JSON and byte slices pass through as
// text. Everything else is encoded as indented JSON with HTML escaping off,
// so unicode and nested structures survive intact. Nothing is truncated.
func Normalize(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.RawMessage:
		return string(val), nil
	case []byte:
		return string(val), nil
	case nil:
		return "null", nil
	}
	b, err := encode(v, true)
	if err != nil {
		return "", fmt.Errorf("normalize %T: %w", v, err)
	}
	return string(b), nil
}

// ErrorPayload returns the compact failure payload {"error": msg}.
func ErrorPayload(msg string) string {
	b, err := encode(struct {
		Error string `json:"error"`
	}{msg}, false)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, msg)
	}
	return string(b)
}
