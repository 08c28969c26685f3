package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/aide"
	aidejson "github.com/fwojciec/aide/json"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// UnknownToolMarker prefixes the failure message for tools missing from the
// catalog.
const UnknownToolMarker = "unknown tool: "

// DefaultCallTimeout bounds a single backend call.
const DefaultCallTimeout = 60 * time.Second

// Invoker executes tool calls against the registry. It implements
// aide.ToolExecutor: every failure is converted into a failure result.
type Invoker struct {
	registry *Registry
	logger   zerolog.Logger
	metrics  aide.Metrics
	timeout  time.Duration
	preview  int
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithLogger sets the logger for tool call and result previews.
func WithLogger(l zerolog.Logger) InvokerOption {
	return func(inv *Invoker) { inv.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m aide.Metrics) InvokerOption {
	return func(inv *Invoker) { inv.metrics = m }
}

// WithCallTimeout sets the per-call deadline. Non-positive values are ignored.
func WithCallTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) {
		if d > 0 {
			inv.timeout = d
		}
	}
}

// WithPreviewLength sets how many characters of a result are logged.
func WithPreviewLength(n int) InvokerOption {
	return func(inv *Invoker) { inv.preview = n }
}

// NewInvoker returns an Invoker routing calls through registry.
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry: registry,
		logger:   zerolog.Nop(),
		metrics:  aide.NopMetrics,
		timeout:  DefaultCallTimeout,
		preview:  DefaultPreviewLength,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

var _ aide.ToolExecutor = (*Invoker)(nil)

// Execute runs the named tool with raw JSON arguments.
func (inv *Invoker) Execute(ctx context.Context, name string, args json.RawMessage) aide.ToolOutput {
	d, err := inv.registry.Resolve(name)
	if err != nil {
		inv.logger.Warn().Str("tool", name).Msg("unknown tool requested")
		inv.metrics.ObserveToolCall(name, "", 0, true)
		return failure("", UnknownToolMarker+name)
	}

	log := inv.logger.With().Str("tool", name).Str("backend", d.Backend).Logger()
	log.Debug().Str("args", Preview(string(args), inv.preview)).Msg("tool call")

	start := time.Now()
	out := inv.execute(ctx, d, args)
	elapsed := time.Since(start)

	inv.metrics.ObserveToolCall(name, d.Backend, elapsed, out.IsError)
	lvl := zerolog.InfoLevel
	if out.IsError {
		lvl = zerolog.WarnLevel
	}
	log.WithLevel(lvl).Dur("duration", elapsed).
		Bool("is_error", out.IsError).
		Str("result", Preview(out.Content, inv.preview)).
		Msg("tool result")
	return out
}

func (inv *Invoker) execute(ctx context.Context, d Descriptor, raw json.RawMessage) aide.ToolOutput {
	args, err := decodeArgs(raw)
	if err != nil {
		return failure(d.Backend, fmt.Sprintf("invalid arguments for %s: %v", d.Name, err))
	}
	coerceArgs(d.scalars, args)
	if err := validateArgs(d.schema, args); err != nil {
		return failure(d.Backend, fmt.Sprintf("invalid arguments for %s: %v", d.Name, err))
	}

	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	result, err := call(ctx, d, args)
	if err != nil {
		msg := err.Error()
		if !strings.HasPrefix(msg, aide.ErrToolExecution.Error()) {
			msg = aide.ErrToolExecution.Error() + ": " + msg
		}
		return failure(d.Backend, msg)
	}

	content, err := aidejson.Normalize(result)
	if err != nil {
		return failure(d.Backend, fmt.Sprintf("%s: %v", aide.ErrToolExecution, err))
	}
	return aide.ToolOutput{Content: content, Backend: d.Backend}
}

// call invokes the backend, converting a panic into an error.
func call(ctx context.Context, d Descriptor, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panicked: %v", d.Backend, r)
		}
	}()
	result, err = d.handle.CallTool(ctx, d.Name, args)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s timed out: %w", d.Name, err)
	}
	return result, err
}

func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func validateArgs(schema *gojsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, len(res.Errors()))
	for i, e := range res.Errors() {
		msgs[i] = e.String()
	}
	return errors.New(strings.Join(msgs, "; "))
}

func failure(backend, msg string) aide.ToolOutput {
	return aide.ToolOutput{Content: aidejson.ErrorPayload(msg), IsError: true, Backend: backend}
}
