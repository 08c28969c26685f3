package aide_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fwojciec/aide"
	"github.com/stretchr/testify/assert"
)

func TestMessageTypeSwitch_Exhaustive(t *testing.T) {
	t.Parallel()
	messages := []aide.Message{
		aide.UserMessage{Content: []aide.ContentBlock{aide.TextBlock{Text: "hello"}}},
		aide.AssistantMessage{Content: []aide.ContentBlock{aide.TextBlock{Text: "hi"}}},
		aide.ToolResultMessage{Results: []aide.ToolResult{{ToolCallID: "tc_1", ToolName: "list-messages"}}},
	}
	for _, msg := range messages {
		switch msg.(type) {
		case aide.UserMessage:
		case aide.AssistantMessage:
		case aide.ToolResultMessage:
		default:
			t.Fatalf("unexpected message type: %T", msg)
		}
	}
}

func TestMessage_Role(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  aide.Message
		want aide.Role
	}{
		{"UserMessage", aide.UserMessage{}, aide.RoleUser},
		{"AssistantMessage", aide.AssistantMessage{}, aide.RoleAssistant},
		{"ToolResultMessage", aide.ToolResultMessage{}, aide.RoleToolResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.msg.Role())
		})
	}
}

func TestNewUserMessage(t *testing.T) {
	t.Parallel()
	before := time.Now()
	msg := aide.NewUserMessage("what's on my calendar?")
	assert.Equal(t, []aide.ContentBlock{aide.TextBlock{Text: "what's on my calendar?"}}, msg.Content)
	assert.False(t, msg.Timestamp.Before(before))
}

func TestAssistantMessage_Text(t *testing.T) {
	t.Parallel()

	t.Run("joins text blocks with newline", func(t *testing.T) {
		t.Parallel()
		msg := aide.AssistantMessage{Content: []aide.ContentBlock{
			aide.TextBlock{Text: "first"},
			aide.ThinkingBlock{Thinking: "ignored"},
			aide.TextBlock{Text: "second"},
		}}
		assert.Equal(t, "first\nsecond", msg.Text())
	})

	t.Run("empty without text blocks", func(t *testing.T) {
		t.Parallel()
		msg := aide.AssistantMessage{Content: []aide.ContentBlock{
			aide.ToolCallBlock{ID: "tc_1", Name: "list-calendar-events"},
		}}
		assert.Empty(t, msg.Text())
	})
}

func TestAssistantMessage_ToolCalls(t *testing.T) {
	t.Parallel()
	msg := aide.AssistantMessage{Content: []aide.ContentBlock{
		aide.TextBlock{Text: "checking"},
		aide.ToolCallBlock{ID: "a", Name: "list-messages", Arguments: json.RawMessage(`{}`)},
		aide.ToolCallBlock{ID: "b", Name: "list-calendar-events", Arguments: json.RawMessage(`{}`)},
	}}
	calls := msg.ToolCalls()
	assert.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "b", calls[1].ID)
}

func TestContentBlockTypeSwitch_Exhaustive(t *testing.T) {
	t.Parallel()
	blocks := []aide.ContentBlock{
		aide.TextBlock{Text: "hello"},
		aide.ThinkingBlock{Thinking: "reasoning", Signature: []byte("sig")},
		aide.ToolCallBlock{ID: "tc_1", Name: "get-message-body", Arguments: json.RawMessage(`{}`)},
	}
	for _, block := range blocks {
		switch block.(type) {
		case aide.TextBlock:
		case aide.ThinkingBlock:
		case aide.ToolCallBlock:
		default:
			t.Fatalf("unexpected content block type: %T", block)
		}
	}
}
