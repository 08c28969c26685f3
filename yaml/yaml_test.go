package yaml_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("empty document yields defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := yaml.Decode(nil)
		require.NoError(t, err)
		assert.Equal(t, aide.DefaultConfig(), cfg)
	})

	t.Run("overrides keep remaining defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := yaml.Decode([]byte(`
provider: gemini
max_rounds: 4
request_timeout: 45s
parallel_tools: true
google:
  client_secret_file: /etc/aide/secret.json
backends:
  - name: calendar
    transport: inprocess
    exclude: ["delete-*"]
`))
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.Provider)
		assert.Equal(t, 4, cfg.MaxRounds)
		assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
		assert.True(t, cfg.ParallelTools)
		assert.Equal(t, 60*time.Second, cfg.CallTimeout)
		assert.Equal(t, "/etc/aide/secret.json", cfg.Google.ClientSecretFile)
		require.Len(t, cfg.Backends, 1)
		assert.Equal(t, aide.TransportInProcess, cfg.Backends[0].Transport)
		assert.Equal(t, []string{"delete-*"}, cfg.Backends[0].Exclude)
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()
		_, err := yaml.Decode([]byte("max_round: 3\n"))
		require.ErrorIs(t, err, aide.ErrValidation)
		assert.Contains(t, err.Error(), "max_round")
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()
		_, err := yaml.Decode([]byte("max_rounds: 0\n"))
		assert.ErrorIs(t, err, aide.ErrValidation)
		_, err = yaml.Decode([]byte("provider: mistral\n"))
		assert.ErrorIs(t, err, aide.ErrValidation)
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))

	cfg, err := yaml.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = yaml.Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
