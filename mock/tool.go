package mock

import (
	"context"
	"encoding/json"

	"github.com/fwojciec/aide"
)

// ToolExecutor is a test double for aide.ToolExecutor.
// Set ExecuteFn before calling Execute.
type ToolExecutor struct {
	ExecuteFn func(ctx context.Context, name string, args json.RawMessage) aide.ToolOutput
}

// Execute delegates to ExecuteFn.
func (e *ToolExecutor) Execute(ctx context.Context, name string, args json.RawMessage) aide.ToolOutput {
	return e.ExecuteFn(ctx, name, args)
}

// Backend is a test double for aide.Backend. NameValue is returned by Name.
// CloseFn is nil-safe.
type Backend struct {
	NameValue   string
	ListToolsFn func(ctx context.Context) ([]aide.Tool, error)
	CallToolFn  func(ctx context.Context, name string, args map[string]any) (any, error)
	CloseFn     func() error
}

// Name returns NameValue.
func (b *Backend) Name() string { return b.NameValue }

// ListTools delegates to ListToolsFn.
func (b *Backend) ListTools(ctx context.Context) ([]aide.Tool, error) {
	return b.ListToolsFn(ctx)
}

// CallTool delegates to CallToolFn.
func (b *Backend) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	return b.CallToolFn(ctx, name, args)
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (b *Backend) Close() error {
	if b.CloseFn == nil {
		return nil
	}
	return b.CloseFn()
}
