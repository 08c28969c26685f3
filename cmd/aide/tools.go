package main

import (
	"fmt"
	"sort"

	"github.com/fwojciec/aide"
	"github.com/spf13/cobra"
)

func newToolsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Start the backends and list the tools they offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTools(cmd, o)
		},
	}
}

// runTools needs no provider: the session is opened only to build the
// catalog.
func runTools(cmd *cobra.Command, o *options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	session, err := openSession(cmd.Context(), cfg, nil, "", aide.NopMetrics, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	out := cmd.OutOrStdout()
	printTools(out, session)

	report := session.Report()
	failed := make([]string, 0, len(report.Failed))
	for name := range report.Failed {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	fmt.Fprintf(out, "\nstatus: %s\n", session.Status())
	for _, name := range failed {
		fmt.Fprintf(out, "  %s: %v\n", name, report.Failed[name])
	}
	for _, name := range report.Empty {
		fmt.Fprintf(out, "  %s: no tools\n", name)
	}
	return nil
}
