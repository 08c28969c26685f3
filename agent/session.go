package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/tools"
	"github.com/rs/zerolog"
)

// Connector starts one named tool backend. Filter narrows the tools it may
// contribute to the catalog.
type Connector struct {
	Name   string
	Start  func(ctx context.Context) (aide.Backend, error)
	Filter tools.Filter
}

// Session is one logical conversation together with the backends serving
// its tools. Chat calls are serialized. Close releases every backend and is
// safe to call more than once.
type Session struct {
	mu       sync.Mutex
	conv     *aide.Conversation
	loop     *Loop
	registry *tools.Registry
	report   tools.Report
	backends []aide.Backend
	runOpts  []RunOption
	logger   zerolog.Logger

	closed    bool
	poisoned  error
	closeOnce sync.Once
	closeErr  error
}

// SessionOption configures Open.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	logger       zerolog.Logger
	systemPrompt string
	loopOpts     []Option
	invokerOpts  []tools.InvokerOption
	runOpts      []RunOption
}

// WithSessionLogger sets the logger for backend startup and lifecycle.
func WithSessionLogger(l zerolog.Logger) SessionOption {
	return func(c *sessionConfig) { c.logger = l }
}

// WithSystemPrompt sets the conversation's system prompt.
func WithSystemPrompt(p string) SessionOption {
	return func(c *sessionConfig) { c.systemPrompt = p }
}

// WithLoopOptions configures the orchestration loop.
func WithLoopOptions(opts ...Option) SessionOption {
	return func(c *sessionConfig) { c.loopOpts = append(c.loopOpts, opts...) }
}

// WithInvokerOptions configures tool invocation.
func WithInvokerOptions(opts ...tools.InvokerOption) SessionOption {
	return func(c *sessionConfig) { c.invokerOpts = append(c.invokerOpts, opts...) }
}

// WithRunOptions sets options applied to every Chat call.
func WithRunOptions(opts ...RunOption) SessionOption {
	return func(c *sessionConfig) { c.runOpts = append(c.runOpts, opts...) }
}

// Open starts every backend, builds the tool catalog and returns a session
// ready for Chat. A backend that fails to start or list its tools is logged
// and left out of the catalog; Status reports the degradation. Open fails
// only when ctx is cancelled, after releasing what it started.
func Open(ctx context.Context, provider aide.Provider, connectors []Connector, opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		conv:    aide.NewConversation(cfg.systemPrompt),
		runOpts: cfg.runOpts,
		logger:  cfg.logger,
	}

	failed := make(map[string]error)
	buildOpts := []tools.BuildOption{tools.WithBuildLogger(cfg.logger)}
	for _, c := range connectors {
		b, err := c.Start(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			if b != nil {
				s.backends = append(s.backends, b)
			}
			_ = s.Close()
			return nil, ctxErr
		}
		if err != nil {
			if !errors.Is(err, aide.ErrBackendUnavailable) {
				err = fmt.Errorf("start %s: %w: %w", c.Name, aide.ErrBackendUnavailable, err)
			}
			cfg.logger.Warn().Str("backend", c.Name).Err(err).Msg("backend failed to start, skipping")
			failed[c.Name] = err
			continue
		}
		s.backends = append(s.backends, b)
		buildOpts = append(buildOpts, tools.WithFilter(b.Name(), c.Filter))
	}

	s.registry, s.report = tools.Build(ctx, s.backends, buildOpts...)
	for name, err := range failed {
		s.report.Failed[name] = err
	}

	invoker := tools.NewInvoker(s.registry, cfg.invokerOpts...)
	s.loop = New(provider, invoker, cfg.loopOpts...)

	cfg.logger.Info().
		Str("status", string(s.report.Status())).
		Int("tools", s.registry.Len()).
		Str("conversation", s.conv.ID).
		Msg("session open")
	return s, nil
}

// Chat sends one user message and returns the assistant's answer.
//
// Errors from the provider or the round limit abort only this turn; the
// session stays usable. A malformed transcript poisons the session: every
// later call returns the same error. Cancelling ctx terminates the session.
func (s *Session) Chat(ctx context.Context, input string, opts ...RunOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", aide.ErrSessionClosed
	}
	if s.poisoned != nil {
		return "", s.poisoned
	}
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("empty message: %w", aide.ErrValidation)
	}

	runOpts := append(append([]RunOption{}, s.runOpts...), opts...)
	reply, err := s.loop.Run(ctx, s.conv, input, s.registry.Catalog(), runOpts...)
	if err == nil {
		return reply, nil
	}

	switch {
	case errors.Is(err, aide.ErrMalformedTranscript):
		s.poisoned = err
		s.logger.Error().Err(err).Msg("transcript corrupted, session unusable")
	case ctx.Err() != nil:
		s.logger.Info().Err(err).Msg("chat cancelled, closing session")
		s.closed = true
		s.release()
		return "", fmt.Errorf("%w: %w", aide.ErrSessionClosed, err)
	}
	return "", err
}

// Status reports how much of the tool catalog came up.
func (s *Session) Status() aide.InitStatus { return s.report.Status() }

// Report returns the per-backend startup report.
func (s *Session) Report() tools.Report { return s.report }

// Tools returns the registered tools with their backends.
func (s *Session) Tools() []tools.Descriptor { return s.registry.Descriptors() }

// Conversation returns the session's conversation.
func (s *Session) Conversation() *aide.Conversation { return s.conv }

// Close releases every backend. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.release()
}

// release closes backends in reverse start order exactly once.
func (s *Session) release() error {
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.backends) - 1; i >= 0; i-- {
			b := s.backends[i]
			if err := b.Close(); err != nil {
				s.logger.Warn().Str("backend", b.Name()).Err(err).Msg("close backend")
				errs = append(errs, fmt.Errorf("close %s: %w", b.Name(), err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
