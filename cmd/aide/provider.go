package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/anthropic"
	"github.com/fwojciec/aide/gemini"
	"github.com/fwojciec/aide/openai"
)

// apiKeys holds provider keys read from the environment.
type apiKeys struct {
	anthropic string
	gemini    string
	openai    string
}

func keysFromEnv() apiKeys {
	return apiKeys{
		anthropic: os.Getenv("ANTHROPIC_API_KEY"),
		gemini:    os.Getenv("GEMINI_API_KEY"),
		openai:    os.Getenv("OPENAI_API_KEY"),
	}
}

// resolveProvider selects and constructs the provider, returning it with its
// name. All env var values are passed in; env is only read by keysFromEnv.
func resolveProvider(ctx context.Context, name, apiKeyFlag string, keys apiKeys) (aide.Provider, string, error) {
	// Auto-detect from env vars if not configured.
	if name == "" {
		var found []string
		if keys.anthropic != "" {
			found = append(found, "anthropic")
		}
		if keys.gemini != "" {
			found = append(found, "gemini")
		}
		if keys.openai != "" {
			found = append(found, "openai")
		}
		switch len(found) {
		case 0:
			return nil, "", fmt.Errorf("no API key found: set ANTHROPIC_API_KEY, GEMINI_API_KEY or OPENAI_API_KEY (or use --provider and --api-key): %w", aide.ErrNotConfigured)
		case 1:
			name = found[0]
		default:
			return nil, "", fmt.Errorf("multiple API keys found (%v): use --provider to select", found)
		}
	}

	// Explicit flag overrides the env var.
	key := apiKeyFlag
	switch name {
	case "anthropic":
		if key == "" {
			key = keys.anthropic
		}
		if key == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set (use --api-key or environment variable): %w", aide.ErrNotConfigured)
		}
		return anthropic.New(key), name, nil
	case "gemini":
		if key == "" {
			key = keys.gemini
		}
		if key == "" {
			return nil, "", fmt.Errorf("GEMINI_API_KEY not set (use --api-key or environment variable): %w", aide.ErrNotConfigured)
		}
		client, err := gemini.New(ctx, key)
		if err != nil {
			return nil, "", err
		}
		return client, name, nil
	case "openai":
		if key == "" {
			key = keys.openai
		}
		if key == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY not set (use --api-key or environment variable): %w", aide.ErrNotConfigured)
		}
		return openai.New(key), name, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q: must be anthropic, gemini or openai: %w", name, aide.ErrValidation)
	}
}
