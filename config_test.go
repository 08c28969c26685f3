package aide_test

import (
	"testing"

	"github.com/fwojciec/aide"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_Valid(t *testing.T) {
	t.Parallel()
	cfg := aide.DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.MaxRounds)
	assert.Equal(t, 200, cfg.ResultPreview)
	assert.Len(t, cfg.Backends, 2)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*aide.Config)
	}{
		{"zero max rounds", func(c *aide.Config) { c.MaxRounds = 0 }},
		{"negative max tokens", func(c *aide.Config) { c.MaxTokens = -1 }},
		{"zero request timeout", func(c *aide.Config) { c.RequestTimeout = 0 }},
		{"negative retries", func(c *aide.Config) { c.ProviderRetries = -1 }},
		{"zero call timeout", func(c *aide.Config) { c.CallTimeout = 0 }},
		{"unknown provider", func(c *aide.Config) { c.Provider = "llama" }},
		{"unnamed backend", func(c *aide.Config) { c.Backends[0].Name = "" }},
		{"duplicate backend", func(c *aide.Config) { c.Backends[1].Name = c.Backends[0].Name }},
		{"unknown transport", func(c *aide.Config) { c.Backends[0].Transport = "http" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := aide.DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), aide.ErrValidation)
		})
	}
}
