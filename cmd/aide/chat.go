package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/agent"
	"github.com/fwojciec/aide/prometheus"
	"github.com/fwojciec/aide/tools"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newChatCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, o)
		},
	}
}

func runChat(cmd *cobra.Command, o *options) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	provider, providerName, err := resolveProvider(ctx, cfg.Provider, o.apiKey, keysFromEnv())
	if err != nil {
		return err
	}

	var metrics aide.Metrics = aide.NopMetrics
	if cfg.MetricsAddr != "" {
		m := prometheus.New()
		metrics = m
		go serveMetrics(ctx, cfg.MetricsAddr, m.Handler(), logger)
	}

	session, err := openSession(ctx, cfg, provider, providerName, metrics, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	r := newREPL(session, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	return r.run(ctx)
}

// openSession starts the configured backends and wires the loop and invoker
// from cfg.
func openSession(ctx context.Context, cfg aide.Config, provider aide.Provider, providerName string, metrics aide.Metrics, logger zerolog.Logger) (*agent.Session, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	auth := newAuthenticator(cfg, logger)
	return agent.Open(ctx, provider, connectors(cfg, exe, auth, logger), sessionOptions(cfg, providerName, metrics, logger)...)
}

func sessionOptions(cfg aide.Config, providerName string, metrics aide.Metrics, logger zerolog.Logger) []agent.SessionOption {
	return []agent.SessionOption{
		agent.WithSessionLogger(logger),
		agent.WithSystemPrompt(cfg.SystemPrompt),
		agent.WithLoopOptions(
			agent.WithLogger(logger),
			agent.WithMetrics(metrics, providerName),
			agent.WithMaxRounds(cfg.MaxRounds),
			agent.WithRequestTimeout(cfg.RequestTimeout),
			agent.WithRetries(cfg.ProviderRetries, agent.DefaultRetryDelay),
			agent.WithParallelTools(cfg.ParallelTools),
		),
		agent.WithInvokerOptions(
			tools.WithLogger(logger),
			tools.WithMetrics(metrics),
			tools.WithCallTimeout(cfg.CallTimeout),
			tools.WithPreviewLength(cfg.ResultPreview),
		),
		agent.WithRunOptions(
			agent.WithModel(cfg.Model),
			agent.WithMaxTokens(cfg.MaxTokens),
		),
	}
}

// serveMetrics exposes h on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, h http.Handler, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server")
	}
}
