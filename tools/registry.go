// Package tools maintains the catalog of tools advertised to the LLM and
// routes tool calls to the backend that owns them.
package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fwojciec/aide"
	"github.com/xeipuuv/gojsonschema"
)

// Descriptor is a registry entry: the LLM-facing tool plus the backend that
// executes it.
type Descriptor struct {
	aide.Tool
	Backend string

	handle    aide.Backend
	schema    *gojsonschema.Schema
	schemaErr error
	scalars   map[string]string
}

// Registry maps tool names to descriptors. Names are unique across all
// backends. It is safe for concurrent readers.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds every tool of one backend. Registration is all-or-nothing:
// if any name collides with the registry or with another tool in the same
// batch, ErrDuplicateTool is returned and the registry is unchanged.
func (r *Registry) Register(backend string, tools []aide.Tool, handle aide.Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]Descriptor, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return fmt.Errorf("backend %q advertised a tool without a name: %w", backend, aide.ErrValidation)
		}
		if existing, ok := r.tools[t.Name]; ok {
			return fmt.Errorf("tool %q from backend %q already registered by %q: %w", t.Name, backend, existing.Backend, aide.ErrDuplicateTool)
		}
		if _, ok := batch[t.Name]; ok {
			return fmt.Errorf("tool %q listed twice by backend %q: %w", t.Name, backend, aide.ErrDuplicateTool)
		}
		schema, err := compileSchema(t.InputSchema)
		batch[t.Name] = Descriptor{Tool: t, Backend: backend, handle: handle, schema: schema, schemaErr: err, scalars: scalarTypes(t.InputSchema)}
	}
	for name, d := range batch {
		r.tools[name] = d
	}
	return nil
}

// Resolve returns the descriptor for name, or ErrUnknownTool.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%s: %w", name, aide.ErrUnknownTool)
	}
	return d, nil
}

// Catalog returns the LLM-facing view of every tool, sorted by name.
func (r *Registry) Catalog() []aide.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]aide.Tool, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d.Tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Descriptors returns every registry entry sorted by backend, then name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Backend != out[j].Backend {
			return out[i].Backend < out[j].Backend
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SchemaErrors returns, for the tools of backend whose input schema failed
// to compile, the compile error keyed by tool name. Arguments of those
// tools reach the backend unchecked.
func (r *Registry) SchemaErrors(backend string) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out map[string]error
	for name, d := range r.tools {
		if d.Backend != backend || d.schemaErr == nil {
			continue
		}
		if out == nil {
			out = make(map[string]error)
		}
		out[name] = d.schemaErr
	}
	return out
}

// compileSchema returns a nil schema when the tool has none, and the
// compile error when the one it has is unusable.
func compileSchema(raw []byte) (*gojsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return s, nil
}
