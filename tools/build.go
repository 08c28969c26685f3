package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/aide"
	"github.com/rs/zerolog"
)

// Report summarizes catalog construction per backend.
type Report struct {
	// Ready lists backends that contributed at least one tool.
	Ready []string
	// Empty lists backends that started but advertised no tools.
	Empty []string
	// Failed maps backends that contributed nothing to the reason.
	Failed map[string]error
}

// Status classifies the outcome: failed when no backend contributed (or
// there were none), ready when every backend did, partial otherwise.
func (r Report) Status() aide.InitStatus {
	switch {
	case len(r.Ready) == 0:
		return aide.InitFailed
	case len(r.Failed) == 0 && len(r.Empty) == 0:
		return aide.InitReady
	default:
		return aide.InitPartial
	}
}

// Filter selects tools of one backend by glob patterns. A tool is kept when
// it matches any Include pattern (or Include is empty) and no Exclude pattern.
type Filter struct {
	Include []string
	Exclude []string
}

func (f Filter) keep(name string) (bool, error) {
	for _, p := range f.Exclude {
		ok, err := doublestar.Match(p, name)
		if err != nil {
			return false, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		if ok {
			return false, nil
		}
	}
	if len(f.Include) == 0 {
		return true, nil
	}
	for _, p := range f.Include {
		ok, err := doublestar.Match(p, name)
		if err != nil {
			return false, fmt.Errorf("include pattern %q: %w", p, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	logger  zerolog.Logger
	filters map[string]Filter
}

// WithBuildLogger sets the logger used to report backend failures.
func WithBuildLogger(l zerolog.Logger) BuildOption {
	return func(c *buildConfig) { c.logger = l }
}

// WithFilter restricts the tools registered for backend.
func WithFilter(backend string, f Filter) BuildOption {
	return func(c *buildConfig) { c.filters[backend] = f }
}

// Build lists the tools of every backend and registers them. A backend that
// fails to list, or whose tools collide with an earlier backend, is logged
// and reported; it contributes no tools but does not abort the build.
func Build(ctx context.Context, backends []aide.Backend, opts ...BuildOption) (*Registry, Report) {
	cfg := buildConfig{logger: zerolog.Nop(), filters: make(map[string]Filter)}
	for _, opt := range opts {
		opt(&cfg)
	}

	reg := NewRegistry()
	report := Report{Failed: make(map[string]error)}
	for _, b := range backends {
		name := b.Name()
		log := cfg.logger.With().Str("backend", name).Logger()

		listed, err := b.ListTools(ctx)
		if err != nil {
			if !errors.Is(err, aide.ErrBackendUnavailable) {
				err = fmt.Errorf("list tools: %w: %w", aide.ErrBackendUnavailable, err)
			}
			log.Warn().Err(err).Msg("backend unavailable, skipping")
			report.Failed[name] = err
			continue
		}

		selected, err := applyFilter(listed, cfg.filters[name])
		if err != nil {
			log.Warn().Err(err).Msg("invalid tool filter, skipping backend")
			report.Failed[name] = err
			continue
		}
		if len(selected) == 0 {
			log.Warn().Int("listed", len(listed)).Msg("backend advertised no usable tools")
			report.Empty = append(report.Empty, name)
			continue
		}

		if err := reg.Register(name, selected, b); err != nil {
			log.Error().Err(err).Msg("tool registration rejected")
			report.Failed[name] = err
			continue
		}
		for tool, err := range reg.SchemaErrors(name) {
			log.Warn().Err(err).Str("tool", tool).Msg("input schema does not compile, arguments go unchecked")
		}
		log.Info().Int("tools", len(selected)).Msg("backend ready")
		report.Ready = append(report.Ready, name)
	}
	return reg, report
}

func applyFilter(tools []aide.Tool, f Filter) ([]aide.Tool, error) {
	for _, p := range append(append([]string{}, f.Include...), f.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool pattern %q: %w", p, aide.ErrValidation)
		}
	}
	out := make([]aide.Tool, 0, len(tools))
	for _, t := range tools {
		ok, err := f.keep(t.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}
