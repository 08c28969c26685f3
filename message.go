package aide

import (
	"encoding/json"
	"strings"
	"time"
)

// Message is a sealed interface representing a transcript turn.
// The unexported marker method prevents external implementations.
// Role() returns the message's role without requiring a type switch.
type Message interface {
	isMessage()
	Role() Role
}

// UserMessage represents a message from the user.
type UserMessage struct {
	Content   []ContentBlock
	Timestamp time.Time
}

func (UserMessage) isMessage() {}

// Role returns RoleUser.
func (UserMessage) Role() Role { return RoleUser }

// NewUserMessage returns a UserMessage holding a single text block.
func NewUserMessage(text string) UserMessage {
	return UserMessage{Content: []ContentBlock{TextBlock{Text: text}}, Timestamp: time.Now()}
}

// AssistantMessage represents a provider response. Content is kept in the
// order the provider produced it.
type AssistantMessage struct {
	Content       []ContentBlock
	StopReason    StopReason
	RawStopReason string
	Usage         Usage
	Timestamp     time.Time
}

func (AssistantMessage) isMessage() {}

// Role returns RoleAssistant.
func (AssistantMessage) Role() Role { return RoleAssistant }

// ToolCalls returns the tool call blocks in request order.
func (m AssistantMessage) ToolCalls() []ToolCallBlock {
	var calls []ToolCallBlock
	for _, b := range m.Content {
		if tc, ok := b.(ToolCallBlock); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// Text joins all text blocks with newlines. Returns "" when there are none.
func (m AssistantMessage) Text() string {
	var parts []string
	for _, b := range m.Content {
		if tb, ok := b.(TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolResultMessage carries the results of one batch of tool calls, one
// result per call in the order the calls were requested.
type ToolResultMessage struct {
	Results   []ToolResult
	Timestamp time.Time
}

func (ToolResultMessage) isMessage() {}

// Role returns RoleToolResult.
func (ToolResultMessage) Role() Role { return RoleToolResult }

// ToolResult is the outcome of a single tool call, correlated by ToolCallID.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Content    string
	IsError    bool
}

// ContentBlock is a sealed interface representing a block of content.
// The unexported marker method prevents external implementations.
type ContentBlock interface {
	contentBlock()
}

// TextBlock contains text content.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ThinkingBlock contains thinking/reasoning content. Signature is opaque
// provider data that must be echoed back on the next request.
type ThinkingBlock struct {
	Thinking  string
	Signature []byte
}

func (ThinkingBlock) contentBlock() {}

// ToolCallBlock represents a tool call from the assistant.
type ToolCallBlock struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Signature []byte
}

func (ToolCallBlock) contentBlock() {}

// Interface compliance checks.
var (
	_ Message = UserMessage{}
	_ Message = AssistantMessage{}
	_ Message = ToolResultMessage{}

	_ ContentBlock = TextBlock{}
	_ ContentBlock = ThinkingBlock{}
	_ ContentBlock = ToolCallBlock{}
)
