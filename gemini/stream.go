package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/fwojciec/aide"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockThinking
)

// stream implements [aide.Stream] by wrapping the genai SDK's streaming
// iterator. One chunk may carry several parts, so events produced by a chunk
// are queued and handed out one per Next call.
type stream struct {
	ctx   context.Context
	pull  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
	state aide.StreamState
	msg   aide.AssistantMessage
	err   error

	pending []aide.Event

	// open text or thinking block that deltas are appended to
	kind    blockKind
	index   int
	buf     strings.Builder
	sig     []byte
	toolUse bool
}

// Interface compliance check.
var _ aide.Stream = (*stream)(nil)

// NewStreamFromIter wraps a genai response iterator as an [aide.Stream].
func NewStreamFromIter(ctx context.Context, it iter.Seq2[*genai.GenerateContentResponse, error]) aide.Stream {
	next, stop := iter.Pull2(it)
	return &stream{
		ctx:   ctx,
		pull:  next,
		stop:  stop,
		state: aide.StreamStateNew,
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
		if err := s.ctx.Err(); err != nil {
			s.fail(fmt.Errorf("gemini: %w", err), aide.StopAborted, "aborted")
			return nil, s.err
		}

		resp, err, ok := s.pull()
		if !ok {
			s.finalize()
			return nil, io.EOF
		}
		if err != nil {
			if s.ctx.Err() != nil {
				s.fail(fmt.Errorf("gemini: %w", err), aide.StopAborted, "aborted")
			} else {
				s.fail(fmt.Errorf("gemini: %w", err), aide.StopError, "error")
			}
			return nil, s.err
		}
		if resp == nil {
			continue
		}
		s.state = aide.StreamStateStreaming
		if err := s.process(resp); err != nil {
			return nil, err
		}
	}
}

func (s *stream) process(resp *genai.GenerateContentResponse) error {
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" && len(resp.Candidates) == 0 {
		s.fail(fmt.Errorf("gemini: prompt blocked: %s", pf.BlockReason), aide.StopError, string(pf.BlockReason))
		return s.err
	}
	if u := resp.UsageMetadata; u != nil {
		cached := int(u.CachedContentTokenCount)
		s.msg.Usage.InputTokens = max(int(u.PromptTokenCount)-cached, 0)
		s.msg.Usage.OutputTokens = int(u.CandidatesTokenCount)
		s.msg.Usage.CacheReadTokens = cached
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p == nil {
				continue
			}
			if err := s.processPart(p); err != nil {
				s.fail(err, aide.StopError, "error")
				return s.err
			}
		}
	}
	if cand.FinishReason != "" {
		s.msg.RawStopReason = string(cand.FinishReason)
		s.msg.StopReason = mapFinishReason(cand.FinishReason)
	}
	return nil
}

func (s *stream) processPart(p *genai.Part) error {
	switch {
	case p.FunctionCall != nil:
		return s.functionCall(p)
	case p.Thought:
		if s.kind != blockThinking {
			s.open(blockThinking)
		}
		if p.ThoughtSignature != nil {
			s.sig = p.ThoughtSignature
		}
		s.buf.WriteString(p.Text)
		s.msg.Content[s.index] = aide.ThinkingBlock{Thinking: s.buf.String(), Signature: s.sig}
		if p.Text != "" {
			s.pending = append(s.pending, aide.EventThinkingDelta{Index: s.index, Delta: p.Text})
		}
	case p.Text != "":
		if s.kind != blockText {
			s.open(blockText)
		}
		s.buf.WriteString(p.Text)
		s.msg.Content[s.index] = aide.TextBlock{Text: s.buf.String()}
		s.pending = append(s.pending, aide.EventTextDelta{Index: s.index, Delta: p.Text})
	}
	return nil
}

// functionCall records a complete call. Gemini delivers calls whole, so a
// begin and an end event are emitted together. A signature on the call part
// belongs to the preceding thinking block when it has none of its own.
func (s *stream) functionCall(p *genai.Part) error {
	fc := p.FunctionCall
	args := json.RawMessage("{}")
	if fc.Args != nil {
		data, err := json.Marshal(fc.Args)
		if err != nil {
			return fmt.Errorf("gemini: invalid tool call arguments for %s: %w", fc.Name, err)
		}
		args = data
	}
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}

	call := aide.ToolCallBlock{ID: id, Name: fc.Name, Arguments: args}
	if p.ThoughtSignature != nil && !s.backfillSignature(p.ThoughtSignature) {
		call.Signature = p.ThoughtSignature
	}
	s.close()
	s.msg.Content = append(s.msg.Content, call)
	s.toolUse = true
	s.pending = append(s.pending,
		aide.EventToolCallBegin{ID: id, Name: fc.Name},
		aide.EventToolCallEnd{Call: call},
	)
	return nil
}

func (s *stream) backfillSignature(sig []byte) bool {
	for i := len(s.msg.Content) - 1; i >= 0; i-- {
		switch b := s.msg.Content[i].(type) {
		case aide.ThinkingBlock:
			if b.Signature != nil {
				return false
			}
			b.Signature = sig
			s.msg.Content[i] = b
			if s.kind == blockThinking && s.index == i {
				s.sig = sig
			}
			return true
		case aide.ToolCallBlock:
			return false
		}
	}
	return false
}

func (s *stream) open(kind blockKind) {
	s.close()
	s.kind = kind
	s.index = len(s.msg.Content)
	switch kind {
	case blockThinking:
		s.msg.Content = append(s.msg.Content, aide.ThinkingBlock{})
	default:
		s.msg.Content = append(s.msg.Content, aide.TextBlock{})
	}
}

func (s *stream) close() {
	s.kind = blockNone
	s.buf.Reset()
	s.sig = nil
}

// finalize completes the message. Responses that requested tools report
// StopToolUse unless the model stopped for another reason.
func (s *stream) finalize() {
	s.state = aide.StreamStateComplete
	s.msg.Timestamp = time.Now()
	if s.msg.StopReason == "" {
		s.msg.StopReason = aide.StopEndTurn
		s.msg.RawStopReason = string(aide.StopEndTurn)
	}
	if s.toolUse && s.msg.StopReason == aide.StopEndTurn {
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
		return aide.AssistantMessage{}, fmt.Errorf("gemini: no data received yet")
	}
	return s.msg, nil
}

// Close stops the underlying iterator.
func (s *stream) Close() error {
	if s.state != aide.StreamStateComplete && s.state != aide.StreamStateError {
		s.state = aide.StreamStateClosed
		s.msg.StopReason = aide.StopAborted
		s.msg.RawStopReason = "aborted"
	}
	s.stop()
	return nil
}

func mapFinishReason(r genai.FinishReason) aide.StopReason {
	switch r {
	case genai.FinishReasonStop:
		return aide.StopEndTurn
	case genai.FinishReasonMaxTokens:
		return aide.StopLength
	default:
		return aide.StopError
	}
}
