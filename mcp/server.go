package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/aide"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
)

// ServerOption configures the calendar and mail servers.
type ServerOption func(*serverConfig)

type serverConfig struct {
	now func() time.Time
}

// WithClock overrides the clock used for default time windows.
func WithClock(now func() time.Time) ServerOption {
	return func(c *serverConfig) { c.now = now }
}

func newServerConfig(opts []ServerOption) serverConfig {
	cfg := serverConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func newServer(name string) *server.MCPServer {
	return server.NewMCPServer(name, aide.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
}

// Serve runs srv on stdin and stdout until the peer disconnects.
func Serve(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}

// addTool registers a tool whose input schema is reflected from P and whose
// arguments are decoded into P before fn runs. A non-nil error from fn is
// reported to the caller as a tool error result.
func addTool[P, R any](srv *server.MCPServer, name, description string, fn func(context.Context, P) (R, error)) {
	srv.AddTool(mcp.NewToolWithRawSchema(name, description, schemaFor[P]()), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var params P
		if err := decode(req.GetArguments(), &params); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		out, err := fn(ctx, params)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultStructured(out, string(text)), nil
	})
}

// schemaFor reflects the JSON schema of P with every property inlined.
// Fields without omitempty are required.
func schemaFor[P any]() json.RawMessage {
	r := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(new(P))
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("mcp: reflect schema: %v", err))
	}
	return data
}

func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
