package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/agent"
	"github.com/fwojciec/aide/google"
	"github.com/fwojciec/aide/mcp"
	"github.com/fwojciec/aide/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// newAuthenticator returns the Google authenticator for cfg.
func newAuthenticator(cfg aide.Config, logger zerolog.Logger) *google.Authenticator {
	auth := google.NewAuthenticator(cfg.Google.ClientSecretFile, cfg.Google.TokenDir)
	auth.Logger = logger
	return auth
}

// connectors turns the configured backends into session connectors.
// Stdio backends without a command run exe, the current executable, so the
// default configuration spawns "aide serve calendar" and "aide serve gmail".
func connectors(cfg aide.Config, exe string, auth *google.Authenticator, logger zerolog.Logger) []agent.Connector {
	out := make([]agent.Connector, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		c := agent.Connector{
			Name:   b.Name,
			Filter: tools.Filter{Include: b.Include, Exclude: b.Exclude},
		}
		switch b.Transport {
		case aide.TransportInProcess:
			c.Start = func(ctx context.Context) (aide.Backend, error) {
				srv, err := googleServer(b.Name, auth)
				if err != nil {
					return nil, err
				}
				backend, err := mcp.ConnectInProcess(ctx, b.Name, srv, mcp.WithLogger(logger))
				if err != nil {
					return nil, err
				}
				return backend, nil
			}
		default:
			bc := subprocessConfig(b, cfg.Google, exe)
			c.Start = func(ctx context.Context) (aide.Backend, error) {
				backend, err := mcp.Connect(ctx, bc, mcp.WithLogger(logger))
				if err != nil {
					return nil, err
				}
				return backend, nil
			}
		}
		out = append(out, c)
	}
	return out
}

// subprocessConfig fills in the executable and hands the Google settings to
// the child through its environment.
func subprocessConfig(b aide.BackendConfig, g aide.GoogleConfig, exe string) aide.BackendConfig {
	if b.Command == "" {
		b.Command = exe
	}
	env := make(map[string]string, len(b.Env)+2)
	if g.ClientSecretFile != "" {
		env[google.SecretFileEnv] = g.ClientSecretFile
	}
	if g.TokenDir != "" {
		env[tokenDirEnv] = g.TokenDir
	}
	for k, v := range b.Env {
		env[k] = v
	}
	b.Env = env
	return b
}

// googleServer builds the named MCP server over the Google APIs. It refuses
// when the client secret is missing.
func googleServer(name string, auth *google.Authenticator) (*server.MCPServer, error) {
	if err := auth.Validate(); err != nil {
		return nil, err
	}
	switch name {
	case "calendar":
		return mcp.NewCalendarServer(google.NewCalendarService(google.CalendarOpener(auth))), nil
	case "gmail":
		return mcp.NewGmailServer(google.NewGmailService(google.GmailOpener(auth))), nil
	default:
		return nil, fmt.Errorf("no built-in server named %q: %w", name, aide.ErrValidation)
	}
}
