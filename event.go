package aide

import "time"

// Event is a sealed interface representing a streaming event.
// Events are purely semantic. Transport/protocol errors come from
// Next()'s error return, not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventTextDelta represents a text content delta. Index is the position of
// the content block the delta belongs to.
type EventTextDelta struct {
	Index int
	Delta string
}

func (EventTextDelta) event() {}

// EventThinkingDelta represents a thinking content delta.
type EventThinkingDelta struct {
	Index int
	Delta string
}

func (EventThinkingDelta) event() {}

// EventToolCallBegin signals the start of a tool call.
type EventToolCallBegin struct {
	ID   string
	Name string
}

func (EventToolCallBegin) event() {}

// EventToolCallDelta represents an argument delta for a tool call.
type EventToolCallDelta struct {
	ID    string
	Delta string
}

func (EventToolCallDelta) event() {}

// EventToolCallEnd signals the completion of a tool call with the assembled block.
type EventToolCallEnd struct {
	Call ToolCallBlock
}

func (EventToolCallEnd) event() {}

// EventToolResult is emitted by the orchestration loop after a tool call
// has been executed. Providers never produce it.
type EventToolResult struct {
	Result   ToolResult
	Duration time.Duration
}

func (EventToolResult) event() {}

// Interface compliance checks.
var (
	_ Event = EventTextDelta{}
	_ Event = EventThinkingDelta{}
	_ Event = EventToolCallBegin{}
	_ Event = EventToolCallDelta{}
	_ Event = EventToolCallEnd{}
	_ Event = EventToolResult{}
)
