package aide

import (
	"context"
	"encoding/json"
)

// Tool is the schema sent to the LLM describing a tool's capabilities.
// It carries no routing information.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Backend is a running tool provider, typically an MCP server session.
// Structured failures are reported as errors, never as silent empty results.
type Backend interface {
	// Name identifies the backend in logs and in the tool catalog.
	Name() string
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
	Close() error
}

// ToolExecutor runs tool calls on behalf of the orchestration loop. Execute
// never returns an error: failures are reported through ToolOutput.IsError
// so they can be sent back to the LLM.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) ToolOutput
}

// ToolOutput is the outcome of a tool invocation: the normalized success
// payload, or a failure message when IsError is set.
type ToolOutput struct {
	Content string
	IsError bool
	Backend string
}
