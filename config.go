package aide

import (
	"fmt"
	"time"
)

// Backend transports.
const (
	TransportStdio     = "stdio"
	TransportInProcess = "inprocess"
)

// Config is the assistant configuration. Zero values are replaced by
// DefaultConfig when loaded from a file.
type Config struct {
	Provider        string          `yaml:"provider"`
	Model           string          `yaml:"model"`
	MaxTokens       int             `yaml:"max_tokens"`
	MaxRounds       int             `yaml:"max_rounds"`
	RequestTimeout  time.Duration   `yaml:"request_timeout"`
	ProviderRetries int             `yaml:"provider_retries"`
	CallTimeout     time.Duration   `yaml:"call_timeout"`
	ParallelTools   bool            `yaml:"parallel_tools"`
	ResultPreview   int             `yaml:"result_preview"`
	LogLevel        string          `yaml:"log_level"`
	MetricsAddr     string          `yaml:"metrics_addr"`
	SystemPrompt    string          `yaml:"system_prompt"`
	Google          GoogleConfig    `yaml:"google"`
	Backends        []BackendConfig `yaml:"backends"`
}

// GoogleConfig locates the OAuth client secret and the token cache.
type GoogleConfig struct {
	ClientSecretFile string `yaml:"client_secret_file"`
	TokenDir         string `yaml:"token_dir"`
}

// BackendConfig describes how to start one tool backend.
type BackendConfig struct {
	Name        string            `yaml:"name"`
	Transport   string            `yaml:"transport"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	InitTimeout time.Duration     `yaml:"init_timeout"`
	Include     []string          `yaml:"include"`
	Exclude     []string          `yaml:"exclude"`
}

// DefaultConfig returns the configuration used when no file is present:
// the calendar and gmail servers spawned from the running executable.
func DefaultConfig() Config {
	return Config{
		MaxTokens:       4096,
		MaxRounds:       10,
		RequestTimeout:  2 * time.Minute,
		ProviderRetries: 2,
		CallTimeout:     60 * time.Second,
		ResultPreview:   200,
		LogLevel:        "info",
		Backends: []BackendConfig{
			{Name: "calendar", Transport: TransportStdio, Args: []string{"serve", "calendar"}, InitTimeout: 10 * time.Second},
			{Name: "gmail", Transport: TransportStdio, Args: []string{"serve", "gmail"}, InitTimeout: 10 * time.Second},
		},
	}
}

// Validate checks the configuration for values no component can work with.
func (c Config) Validate() error {
	if c.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be at least 1, got %d: %w", c.MaxRounds, ErrValidation)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", c.MaxTokens, ErrValidation)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive: %w", ErrValidation)
	}
	if c.ProviderRetries < 0 {
		return fmt.Errorf("provider_retries must be non-negative, got %d: %w", c.ProviderRetries, ErrValidation)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive: %w", ErrValidation)
	}
	switch c.Provider {
	case "", "anthropic", "gemini", "openai":
	default:
		return fmt.Errorf("unknown provider %q: %w", c.Provider, ErrValidation)
	}
	names := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend %d: name is required: %w", i, ErrValidation)
		}
		if names[b.Name] {
			return fmt.Errorf("backend %q configured twice: %w", b.Name, ErrValidation)
		}
		names[b.Name] = true
		switch b.Transport {
		case "", TransportStdio, TransportInProcess:
		default:
			return fmt.Errorf("backend %q: unknown transport %q: %w", b.Name, b.Transport, ErrValidation)
		}
	}
	return nil
}
