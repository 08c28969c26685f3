// Package mcp connects to tool backends over the Model Context Protocol and
// serves the calendar and mail tools as MCP servers.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fwojciec/aide"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// DefaultInitTimeout bounds the MCP handshake.
const DefaultInitTimeout = 10 * time.Second

// Backend is an aide.Backend backed by an MCP client session.
type Backend struct {
	name   string
	client *client.Client
	logger zerolog.Logger
}

var _ aide.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. Subprocess stderr is forwarded to it.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// Connect spawns the server described by cfg as a subprocess speaking MCP
// over stdio and performs the handshake. Failures wrap ErrBackendUnavailable.
func Connect(ctx context.Context, cfg aide.BackendConfig, opts ...Option) (*Backend, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%s: no command configured: %w", cfg.Name, aide.ErrBackendUnavailable)
	}
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s: spawn %s: %w: %w", cfg.Name, cfg.Command, aide.ErrBackendUnavailable, err)
	}
	b := newBackend(cfg.Name, c, opts)
	if stderr, ok := client.GetStderr(c); ok {
		go b.forward(stderr)
	}
	if err := b.initialize(ctx, cfg.InitTimeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	return b, nil
}

// ConnectInProcess connects to srv running in the same process.
func ConnectInProcess(ctx context.Context, name string, srv *server.MCPServer, opts ...Option) (*Backend, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, aide.ErrBackendUnavailable, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("%s: start: %w: %w", name, aide.ErrBackendUnavailable, err)
	}
	b := newBackend(name, c, opts)
	if err := b.initialize(ctx, DefaultInitTimeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	return b, nil
}

func newBackend(name string, c *client.Client, opts []Option) *Backend {
	b := &Backend{name: name, client: c, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("backend", name).Logger()
	return b
}

func (b *Backend) initialize(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultInitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "aide", Version: aide.Version}
	res, err := b.client.Initialize(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: no handshake within %s: %w", b.name, timeout, aide.ErrBackendUnavailable)
		}
		return fmt.Errorf("%s: initialize: %w: %w", b.name, aide.ErrBackendUnavailable, err)
	}
	b.logger.Debug().
		Str("server", res.ServerInfo.Name).
		Str("version", res.ServerInfo.Version).
		Msg("mcp session initialized")
	return nil
}

// forward copies subprocess stderr lines to the logger until EOF.
func (b *Backend) forward(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		b.logger.Info().Str("stream", "stderr").Msg(sc.Text())
	}
}

// Name returns the configured backend name.
func (b *Backend) Name() string { return b.name }

// ListTools returns the tools advertised by the server with their input
// schemas as raw JSON.
func (b *Backend) ListTools(ctx context.Context) ([]aide.Tool, error) {
	res, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("%s: list tools: %w: %w", b.name, aide.ErrBackendUnavailable, err)
	}
	out := make([]aide.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := inputSchemaOf(t)
		if err != nil {
			return nil, fmt.Errorf("%s: tool %s: %w", b.name, t.Name, err)
		}
		out = append(out, aide.Tool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out, nil
}

// CallTool invokes a tool. A result flagged as an error by the server is
// returned as an error wrapping ErrToolExecution. Structured content is
// preferred over text when the server provides it.
func (b *Backend) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := b.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: call %s: %w", b.name, name, err)
	}
	text := joinText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, fmt.Errorf("%w: %s", aide.ErrToolExecution, text)
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	return text, nil
}

// Close ends the session and, for stdio backends, the subprocess.
func (b *Backend) Close() error {
	return b.client.Close()
}

// inputSchemaOf extracts the tool's input schema exactly as the server
// serialized it, whether it was built from options or supplied raw.
func inputSchemaOf(t mcp.Tool) (json.RawMessage, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var wire struct {
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return wire.InputSchema, nil
}

func joinText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
