// Package agent orchestrates the conversation loop between a Provider and a
// ToolExecutor, and owns the lifecycle of a chat session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fwojciec/aide"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// NoResponse is returned when the final provider turn contains no text.
const NoResponse = "No response"

// DefaultSystemPrompt is used when the conversation has none.
const DefaultSystemPrompt = "You are a helpful personal assistant with access to the user's email and calendar. " +
	"Use the available tools to look up and change data instead of guessing, and answer concisely."

// Defaults applied by New.
const (
	DefaultMaxRounds      = 10
	DefaultRequestTimeout = 2 * time.Minute
	DefaultRetries        = 2
	DefaultRetryDelay     = time.Second
)

// State is the position of a run in the orchestration state machine.
type State int

const (
	StateAwaitingInput State = iota
	StateCallingProvider
	StateExecutingTools
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateCallingProvider:
		return "calling_provider"
	case StateExecutingTools:
		return "executing_tools"
	case StateResponding:
		return "responding"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loop orchestrates the conversation between a Provider and a ToolExecutor.
type Loop struct {
	provider aide.Provider
	executor aide.ToolExecutor

	logger         zerolog.Logger
	metrics        aide.Metrics
	providerName   string
	maxRounds      int
	requestTimeout time.Duration
	retries        int
	retryDelay     time.Duration
	parallel       bool
	now            func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithMetrics sets the metrics sink. name labels provider observations.
func WithMetrics(m aide.Metrics, name string) Option {
	return func(lp *Loop) {
		lp.metrics = m
		lp.providerName = name
	}
}

// WithMaxRounds bounds how many tool batches one user turn may execute.
func WithMaxRounds(n int) Option {
	return func(lp *Loop) {
		if n > 0 {
			lp.maxRounds = n
		}
	}
}

// WithRequestTimeout sets the local deadline for a single provider call.
func WithRequestTimeout(d time.Duration) Option {
	return func(lp *Loop) {
		if d > 0 {
			lp.requestTimeout = d
		}
	}
}

// WithRetries sets how many times a timed out provider call is retried and
// the base delay between attempts. The delay grows linearly.
func WithRetries(n int, delay time.Duration) Option {
	return func(lp *Loop) {
		if n >= 0 {
			lp.retries = n
		}
		if delay >= 0 {
			lp.retryDelay = delay
		}
	}
}

// WithParallelTools executes the calls of one batch concurrently. Results
// keep request order either way.
func WithParallelTools(enabled bool) Option {
	return func(lp *Loop) { lp.parallel = enabled }
}

// WithClock overrides the clock used for the date in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(lp *Loop) { lp.now = now }
}

// New creates a new Loop with the given provider and tool executor.
func New(provider aide.Provider, executor aide.ToolExecutor, opts ...Option) *Loop {
	l := &Loop{
		provider:       provider,
		executor:       executor,
		logger:         zerolog.Nop(),
		metrics:        aide.NopMetrics,
		providerName:   "provider",
		maxRounds:      DefaultMaxRounds,
		requestTimeout: DefaultRequestTimeout,
		retries:        DefaultRetries,
		retryDelay:     DefaultRetryDelay,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunOption configures a single Run invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent   func(aide.Event)
	onState   func(State)
	model     string
	maxTokens int
}

// WithEventHandler sets a callback that receives each streaming event and
// each tool result during the run. If nil or not set, events are discarded.
func WithEventHandler(h func(aide.Event)) RunOption {
	return func(c *runConfig) { c.onEvent = h }
}

// WithStateHandler sets a callback invoked on every state transition.
func WithStateHandler(h func(State)) RunOption {
	return func(c *runConfig) { c.onState = h }
}

// WithModel sets the model ID for provider requests during this run.
// Empty string means the provider uses its default model.
func WithModel(model string) RunOption {
	return func(c *runConfig) { c.model = model }
}

// WithMaxTokens sets the output token limit. Zero means provider default.
func WithMaxTokens(n int) RunOption {
	return func(c *runConfig) { c.maxTokens = n }
}

// Run handles one user turn. It appends the user message, calls the
// provider, executes requested tools and feeds their results back until the
// provider answers without tool calls. The answer is the provider's text
// blocks joined by newlines, or NoResponse.
//
// On error the transcript is rolled back to its state before the turn.
func (l *Loop) Run(ctx context.Context, conv *aide.Conversation, input string, tools []aide.Tool, opts ...RunOption) (string, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	mark := conv.Transcript.Len()
	conv.Transcript.Append(aide.NewUserMessage(input))

	reply, rounds, err := l.run(ctx, conv, tools, &cfg)
	l.metrics.ObserveRounds(rounds)
	l.transition(&cfg, StateAwaitingInput)
	if err != nil {
		conv.Transcript.Truncate(mark)
		return "", err
	}
	return reply, nil
}

func (l *Loop) run(ctx context.Context, conv *aide.Conversation, tools []aide.Tool, cfg *runConfig) (string, int, error) {
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return "", round, err
		}

		l.transition(cfg, StateCallingProvider)
		msg, err := l.complete(ctx, conv, tools, cfg)
		if err != nil {
			return "", round, err
		}

		calls := msg.ToolCalls()
		if len(calls) == 0 {
			conv.Transcript.Append(msg)
			l.transition(cfg, StateResponding)
			reply := msg.Text()
			if strings.TrimSpace(reply) == "" {
				reply = NoResponse
			}
			return reply, round, nil
		}
		if round >= l.maxRounds {
			return "", round, fmt.Errorf("model still requesting tools after %d rounds: %w", round, aide.ErrToolLoopExceeded)
		}

		conv.Transcript.Append(msg)
		l.transition(cfg, StateExecutingTools)
		results := l.execute(ctx, calls, cfg)
		conv.Transcript.Append(aide.ToolResultMessage{Results: results, Timestamp: l.now()})
	}
}

// complete performs one provider call, retrying local timeouts.
func (l *Loop) complete(ctx context.Context, conv *aide.Conversation, tools []aide.Tool, cfg *runConfig) (aide.AssistantMessage, error) {
	if err := conv.Transcript.Validate(); err != nil {
		return aide.AssistantMessage{}, err
	}
	req := aide.Request{
		Model:        cfg.model,
		SystemPrompt: l.systemPrompt(conv.SystemPrompt),
		Messages:     conv.Transcript.Messages(),
		Tools:        tools,
		MaxTokens:    cfg.maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= l.retries; attempt++ {
		if attempt > 0 {
			l.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("retrying provider call")
			select {
			case <-ctx.Done():
				return aide.AssistantMessage{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * l.retryDelay):
			}
		}
		msg, err := l.stream(ctx, req, cfg)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, aide.ErrProviderTimeout) {
			return aide.AssistantMessage{}, err
		}
		lastErr = err
	}
	return aide.AssistantMessage{}, lastErr
}

// stream runs a single provider call under the request timeout and
// classifies its failure.
func (l *Loop) stream(ctx context.Context, req aide.Request, cfg *runConfig) (aide.AssistantMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.requestTimeout)
	defer cancel()

	start := time.Now()
	msg, err := l.drain(callCtx, req, cfg)
	elapsed := time.Since(start)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = ctx.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("no response within %s: %w", l.requestTimeout, aide.ErrProviderTimeout)
	case !errors.Is(err, aide.ErrProvider):
		err = fmt.Errorf("%w: %w", aide.ErrProvider, err)
	}
	l.metrics.ObserveProviderCall(l.providerName, elapsed, err)
	l.logger.Debug().
		Dur("duration", elapsed).
		Int("messages", len(req.Messages)).
		Err(err).
		Msg("provider call")
	return msg, err
}

func (l *Loop) drain(ctx context.Context, req aide.Request, cfg *runConfig) (aide.AssistantMessage, error) {
	stream, err := l.provider.Stream(ctx, req)
	if err != nil {
		return aide.AssistantMessage{}, err
	}
	defer stream.Close()

	// Drain the stream, forwarding events to handler if set.
	for {
		evt, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return aide.AssistantMessage{}, err
		}
		if cfg.onEvent != nil {
			cfg.onEvent(evt)
		}
	}
	return stream.Message()
}

// execute runs one batch of tool calls and returns one result per call in
// request order. Failures never abort the batch.
func (l *Loop) execute(ctx context.Context, calls []aide.ToolCallBlock, cfg *runConfig) []aide.ToolResult {
	results := make([]aide.ToolResult, len(calls))
	durations := make([]time.Duration, len(calls))
	run := func(ctx context.Context, i int) {
		c := calls[i]
		start := time.Now()
		out := l.executor.Execute(ctx, c.Name, c.Arguments)
		durations[i] = time.Since(start)
		results[i] = aide.ToolResult{
			ToolCallID: c.ID,
			ToolName:   c.Name,
			Content:    out.Content,
			IsError:    out.IsError,
		}
	}

	if l.parallel && len(calls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i := range calls {
			g.Go(func() error {
				run(gctx, i)
				return nil
			})
		}
		_ = g.Wait()
		for i := range results {
			l.emit(cfg, aide.EventToolResult{Result: results[i], Duration: durations[i]})
		}
		return results
	}

	for i := range calls {
		run(ctx, i)
		l.emit(cfg, aide.EventToolResult{Result: results[i], Duration: durations[i]})
	}
	return results
}

func (l *Loop) systemPrompt(base string) string {
	if base == "" {
		base = DefaultSystemPrompt
	}
	return base + "\n\nCurrent date is " + l.now().Format("Monday, January 2, 2006") + "."
}

func (l *Loop) transition(cfg *runConfig, s State) {
	l.logger.Debug().Stringer("state", s).Msg("transition")
	if cfg.onState != nil {
		cfg.onState(s)
	}
}

func (l *Loop) emit(cfg *runConfig, evt aide.Event) {
	if cfg.onEvent != nil {
		cfg.onEvent(evt)
	}
}
