package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fwojciec/aide"
	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"
)

// chunkReader is the part of the SDK stream the adapter consumes.
type chunkReader interface {
	Recv() (goopenai.ChatCompletionStreamResponse, error)
	Close() error
}

// pendingCall accumulates the fragments of one streamed tool call.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// stream implements [aide.Stream] over the SDK's chunk reader. Tool call
// fragments are keyed by the index the API assigns them and are emitted as
// complete blocks once the response ends.
type stream struct {
	ctx    context.Context
	r      chunkReader
	state  aide.StreamState
	msg    aide.AssistantMessage
	err    error
	closed bool

	pending []aide.Event
	done    bool

	textIndex int
	text      strings.Builder
	calls     map[int]*pendingCall
}

// Interface compliance check.
var _ aide.Stream = (*stream)(nil)

func newStream(ctx context.Context, r chunkReader) *stream {
	return &stream{
		ctx:       ctx,
		r:         r,
		state:     aide.StreamStateNew,
		textIndex: -1,
		calls:     make(map[int]*pendingCall),
	}
}

// Next returns the next semantic event, or io.EOF when the response is
// complete.
func (s *stream) Next() (aide.Event, error) {
	switch s.state {
	case aide.StreamStateComplete:
		return nil, io.EOF
	case aide.StreamStateError:
		return nil, s.err
	case aide.StreamStateClosed:
		return nil, ErrStreamClosed
	}

	for {
		if len(s.pending) > 0 {
			evt := s.pending[0]
			s.pending = s.pending[1:]
			return evt, nil
		}
		if s.done {
			s.finalize()
			return nil, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			s.fail(fmt.Errorf("openai: %w", err), aide.StopAborted, "aborted")
			return nil, s.err
		}

		resp, err := s.r.Recv()
		if errors.Is(err, io.EOF) {
			if err := s.endCalls(); err != nil {
				s.fail(err, aide.StopError, "error")
				return nil, s.err
			}
			s.done = true
			continue
		}
		if err != nil {
			if s.ctx.Err() != nil {
				s.fail(fmt.Errorf("openai: %w", err), aide.StopAborted, "aborted")
			} else {
				s.fail(fmt.Errorf("openai: %w", err), aide.StopError, "error")
			}
			return nil, s.err
		}
		s.state = aide.StreamStateStreaming
		s.process(resp)
	}
}

func (s *stream) process(resp goopenai.ChatCompletionStreamResponse) {
	if u := resp.Usage; u != nil {
		cached := 0
		if u.PromptTokensDetails != nil {
			cached = u.PromptTokensDetails.CachedTokens
		}
		s.msg.Usage.InputTokens = max(u.PromptTokens-cached, 0)
		s.msg.Usage.OutputTokens = u.CompletionTokens
		s.msg.Usage.CacheReadTokens = cached
	}
	if len(resp.Choices) == 0 {
		return
	}
	choice := resp.Choices[0]
	if d := choice.Delta.Content; d != "" {
		if s.textIndex < 0 {
			s.textIndex = len(s.msg.Content)
			s.msg.Content = append(s.msg.Content, aide.TextBlock{})
		}
		s.text.WriteString(d)
		s.msg.Content[s.textIndex] = aide.TextBlock{Text: s.text.String()}
		s.pending = append(s.pending, aide.EventTextDelta{Index: s.textIndex, Delta: d})
	}
	for _, tc := range choice.Delta.ToolCalls {
		s.toolCallDelta(tc)
	}
	if choice.FinishReason != "" {
		s.msg.RawStopReason = string(choice.FinishReason)
		s.msg.StopReason = mapFinishReason(choice.FinishReason)
	}
}

// toolCallDelta merges one fragment. The first fragment for an index
// carries the ID and name; later ones only append arguments.
func (s *stream) toolCallDelta(tc goopenai.ToolCall) {
	idx := 0
	if tc.Index != nil {
		idx = *tc.Index
	}
	pc, ok := s.calls[idx]
	if !ok {
		pc = &pendingCall{id: tc.ID, name: tc.Function.Name}
		if pc.id == "" {
			pc.id = "call_" + uuid.NewString()
		}
		s.calls[idx] = pc
		s.pending = append(s.pending, aide.EventToolCallBegin{ID: pc.id, Name: pc.name})
	} else if pc.name == "" && tc.Function.Name != "" {
		pc.name = tc.Function.Name
	}
	if a := tc.Function.Arguments; a != "" {
		pc.args.WriteString(a)
		s.pending = append(s.pending, aide.EventToolCallDelta{ID: pc.id, Delta: a})
	}
}

// endCalls appends the merged tool calls in index order.
func (s *stream) endCalls() error {
	idxs := make([]int, 0, len(s.calls))
	for i := range s.calls {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	for _, i := range idxs {
		pc := s.calls[i]
		args := strings.TrimSpace(pc.args.String())
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return fmt.Errorf("openai: invalid tool call arguments for %s", pc.name)
		}
		call := aide.ToolCallBlock{ID: pc.id, Name: pc.name, Arguments: json.RawMessage(args)}
		s.msg.Content = append(s.msg.Content, call)
		s.pending = append(s.pending, aide.EventToolCallEnd{Call: call})
	}
	s.calls = make(map[int]*pendingCall)
	return nil
}

func (s *stream) finalize() {
	s.state = aide.StreamStateComplete
	s.msg.Timestamp = time.Now()
	if s.msg.StopReason == "" {
		s.msg.StopReason = aide.StopEndTurn
		s.msg.RawStopReason = string(aide.StopEndTurn)
	}
	if len(s.msg.ToolCalls()) > 0 && s.msg.StopReason == aide.StopEndTurn {
		s.msg.StopReason = aide.StopToolUse
	}
}

func (s *stream) fail(err error, reason aide.StopReason, raw string) {
	s.state = aide.StreamStateError
	s.err = err
	s.msg.StopReason = reason
	s.msg.RawStopReason = raw
}

// State returns the current stream state.
func (s *stream) State() aide.StreamState {
	return s.state
}

// Message returns the message assembled so far.
func (s *stream) Message() (aide.AssistantMessage, error) {
	if s.state == aide.StreamStateNew {
		return aide.AssistantMessage{}, fmt.Errorf("openai: no data received yet")
	}
	return s.msg, nil
}

// Close releases the HTTP response body.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.state != aide.StreamStateComplete && s.state != aide.StreamStateError {
		s.state = aide.StreamStateClosed
		s.msg.StopReason = aide.StopAborted
		s.msg.RawStopReason = "aborted"
	}
	return s.r.Close()
}

func mapFinishReason(r goopenai.FinishReason) aide.StopReason {
	switch r {
	case goopenai.FinishReasonStop:
		return aide.StopEndTurn
	case goopenai.FinishReasonToolCalls, goopenai.FinishReasonFunctionCall:
		return aide.StopToolUse
	case goopenai.FinishReasonLength:
		return aide.StopLength
	case goopenai.FinishReasonContentFilter:
		return aide.StopError
	default:
		return aide.StopUnknown
	}
}
