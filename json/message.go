package json

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/aide"
)

// messageDTO is the JSON representation of a Message with a type discriminator.
type messageDTO struct {
	Type          string          `json:"type"`
	Content       []contentBlock  `json:"content,omitempty"`
	Results       []toolResultDTO `json:"results,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	StopReason    string          `json:"stop_reason,omitempty"`
	RawStopReason string          `json:"raw_stop_reason,omitempty"`
	Usage         *usageDTO       `json:"usage,omitempty"`
}

type toolResultDTO struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// contentBlock is the JSON representation of a ContentBlock with a type discriminator.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type usageDTO struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

func marshalMessage(msg aide.Message) (messageDTO, error) {
	switch m := msg.(type) {
	case aide.UserMessage:
		blocks, err := marshalContentBlocks(m.Content)
		if err != nil {
			return messageDTO{}, err
		}
		return messageDTO{Type: "user", Content: blocks, Timestamp: m.Timestamp}, nil
	case aide.AssistantMessage:
		blocks, err := marshalContentBlocks(m.Content)
		if err != nil {
			return messageDTO{}, err
		}
		return messageDTO{
			Type:          "assistant",
			Content:       blocks,
			Timestamp:     m.Timestamp,
			StopReason:    string(m.StopReason),
			RawStopReason: m.RawStopReason,
			Usage: &usageDTO{
				InputTokens:      m.Usage.InputTokens,
				OutputTokens:     m.Usage.OutputTokens,
				CacheReadTokens:  m.Usage.CacheReadTokens,
				CacheWriteTokens: m.Usage.CacheWriteTokens,
			},
		}, nil
	case aide.ToolResultMessage:
		results := make([]toolResultDTO, len(m.Results))
		for i, r := range m.Results {
			results[i] = toolResultDTO(r)
		}
		return messageDTO{Type: "tool_result", Results: results, Timestamp: m.Timestamp}, nil
	default:
		return messageDTO{}, fmt.Errorf("unknown message type: %T", msg)
	}
}

func marshalContentBlocks(blocks []aide.ContentBlock) ([]contentBlock, error) {
	result := make([]contentBlock, len(blocks))
	for i, b := range blocks {
		switch v := b.(type) {
		case aide.TextBlock:
			result[i] = contentBlock{Type: "text", Text: v.Text}
		case aide.ThinkingBlock:
			result[i] = contentBlock{Type: "thinking", Thinking: v.Thinking, Signature: encodeSignature(v.Signature)}
		case aide.ToolCallBlock:
			result[i] = contentBlock{Type: "tool_call", ID: v.ID, Name: v.Name, Arguments: v.Arguments, Signature: encodeSignature(v.Signature)}
		default:
			return nil, fmt.Errorf("content block %d: unknown content block type: %T", i, b)
		}
	}
	return result, nil
}

func encodeSignature(sig []byte) string {
	if len(sig) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(sig)
}
