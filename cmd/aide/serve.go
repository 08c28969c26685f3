package main

import (
	"github.com/fwojciec/aide/mcp"
	"github.com/spf13/cobra"
)

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a tool backend as an MCP server on stdin/stdout",
	}
	for _, name := range []string{"calendar", "gmail"} {
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "Serve the " + name + " tools",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, o, name)
			},
		})
	}
	return cmd
}

// runServe serves one Google backend. Stdout carries the protocol, so logs
// and the consent prompt go to stderr.
func runServe(cmd *cobra.Command, o *options, name string) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	auth := newAuthenticator(cfg, logger)
	auth.Prompt = cmd.ErrOrStderr()
	srv, err := googleServer(name, auth)
	if err != nil {
		return err
	}
	logger.Debug().Str("server", name).Msg("serving on stdio")
	return mcp.Serve(srv)
}
