// Package yaml loads [aide.Config] from YAML files.
package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fwojciec/aide"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration at path. Keys absent from the file keep
// their [aide.DefaultConfig] values; unknown keys are rejected. The result
// is validated.
func Load(path string) (aide.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return aide.Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(data)
	if err != nil {
		return aide.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a YAML document over the defaults and validates it.
func Decode(data []byte) (aide.Config, error) {
	cfg := aide.DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return aide.Config{}, fmt.Errorf("parse config: %w: %w", aide.ErrValidation, err)
	}
	if err := cfg.Validate(); err != nil {
		return aide.Config{}, err
	}
	return cfg, nil
}
