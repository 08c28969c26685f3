// Package json provides the canonical JSON encodings used by the assistant:
// normalization of tool results into text for the LLM, and the transcript
// export format.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/aide"
)

// envelope is the v1 wire format for an exported conversation.
type envelope struct {
	Version      int          `json:"version"`
	ID           string       `json:"id"`
	SystemPrompt string       `json:"system_prompt"`
	CreatedAt    time.Time    `json:"created_at"`
	Messages     []messageDTO `json:"messages"`
}

// MarshalConversation serializes a Conversation to JSON in v1 envelope format.
func MarshalConversation(c *aide.Conversation) ([]byte, error) {
	msgs := c.Transcript.Messages()
	env := envelope{
		Version:      1,
		ID:           c.ID,
		SystemPrompt: c.SystemPrompt,
		CreatedAt:    c.CreatedAt,
		Messages:     make([]messageDTO, len(msgs)),
	}
	for i, msg := range msgs {
		dto, err := marshalMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		env.Messages[i] = dto
	}
	return encode(env, true)
}

// Save writes a Conversation to a JSON file, creating parent directories as needed.
func Save(path string, c *aide.Conversation) error {
	data, err := MarshalConversation(c)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// encode marshals v without HTML escaping so that payloads reach the LLM
// byte-for-byte. The trailing newline added by json.Encoder is removed.
func encode(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
