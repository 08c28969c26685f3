package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/google"
	"github.com/fwojciec/aide/yaml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	defaultEnvFile = ".env"
	tokenDirEnv    = "AIDE_GOOGLE_TOKEN_DIR"
)

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	envFile    string
	provider   string
	model      string
	apiKey     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "aide",
		Short:         "Chat with an assistant that manages your email and calendar",
		Version:       aide.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnv(o.envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, o)
		},
	}
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "Path to config file (default: <user config dir>/aide/config.yaml)")
	f.StringVar(&o.envFile, "env-file", defaultEnvFile, "Path to a .env file with API keys")
	f.StringVar(&o.provider, "provider", "", "Provider: anthropic, gemini, openai (auto-detected from env vars if omitted)")
	f.StringVar(&o.model, "model", "", "Model ID (provider-specific)")
	f.StringVar(&o.apiKey, "api-key", "", "API key (overrides provider's env var)")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newChatCmd(o), newServeCmd(o), newToolsCmd(o))
	return cmd
}

// loadEnv loads a .env file without overriding variables already set. A
// missing default file is tolerated.
func loadEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || (errors.Is(err, os.ErrNotExist) && path == defaultEnvFile) {
		return nil
	}
	return fmt.Errorf("load env file: %w", err)
}

// loadConfig reads the config file and applies flag and environment
// overrides. A missing file at the default location yields the defaults.
func loadConfig(o *options) (aide.Config, error) {
	path, explicit := o.configPath, o.configPath != ""
	if !explicit {
		path = defaultConfigPath()
	}
	cfg, err := yaml.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !explicit:
		cfg = aide.DefaultConfig()
	default:
		return aide.Config{}, err
	}

	if o.provider != "" {
		cfg.Provider = o.provider
	}
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if cfg.Google.ClientSecretFile == "" {
		cfg.Google.ClientSecretFile = os.Getenv(google.SecretFileEnv)
	}
	if cfg.Google.TokenDir == "" {
		cfg.Google.TokenDir = os.Getenv(tokenDirEnv)
	}
	if err := cfg.Validate(); err != nil {
		return aide.Config{}, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".aide", "config.yaml")
	}
	return filepath.Join(dir, "aide", "config.yaml")
}

// newLogger returns a console logger on w at the named level.
func newLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, aide.ErrValidation)
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
