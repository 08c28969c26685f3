package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// script assembles a Messages API event stream.
type script struct {
	b strings.Builder
}

func newScript(usage string) *script {
	s := &script{}
	return s.event("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"m","stop_reason":null,"stop_sequence":null,"usage":`+usage+`}}`)
}

func (s *script) event(typ, data string) *script {
	fmt.Fprintf(&s.b, "event: %s\ndata: %s\n\n", typ, data)
	return s
}

func quote(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (s *script) blockStart(i int, block string) *script {
	return s.event("content_block_start", fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":%s}`, i, block))
}

func (s *script) delta(i int, delta string) *script {
	return s.event("content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":%s}`, i, delta))
}

func (s *script) blockStop(i int) *script {
	return s.event("content_block_stop", fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, i))
}

func (s *script) text(i int, chunks ...string) *script {
	s.blockStart(i, `{"type":"text","text":""}`)
	for _, c := range chunks {
		s.delta(i, `{"type":"text_delta","text":`+quote(c)+`}`)
	}
	return s.blockStop(i)
}

func (s *script) thinking(i int, signature string, chunks ...string) *script {
	s.blockStart(i, `{"type":"thinking","thinking":""}`)
	for _, c := range chunks {
		s.delta(i, `{"type":"thinking_delta","thinking":`+quote(c)+`}`)
	}
	s.delta(i, `{"type":"signature_delta","signature":`+quote(signature)+`}`)
	return s.blockStop(i)
}

func (s *script) toolUse(i int, id, name string, fragments ...string) *script {
	s.blockStart(i, fmt.Sprintf(`{"type":"tool_use","id":%q,"name":%q,"input":{}}`, id, name))
	for _, f := range fragments {
		s.delta(i, `{"type":"input_json_delta","partial_json":`+quote(f)+`}`)
	}
	return s.blockStop(i)
}

// finish ends the message with reason and the message_delta usage object.
func (s *script) finish(reason, usage string) string {
	s.event("message_delta", `{"type":"message_delta","delta":{"stop_reason":`+quote(reason)+`,"stop_sequence":null},"usage":`+usage+`}`)
	s.event("message_stop", `{"type":"message_stop"}`)
	return s.b.String()
}

// agendaReply is a plain answer about the calendar.
func agendaReply() string {
	return newScript(`{"input_tokens":40,"output_tokens":1}`).
		text(0, "You have ", "two meetings today.").
		finish("end_turn", `{"output_tokens":9}`)
}

func openStream(t *testing.T, ctx context.Context, body string) aide.Stream {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	s, err := anthropic.New("k", anthropic.WithBaseURL(srv.URL)).Stream(ctx, aide.Request{
		Messages: []aide.Message{aide.NewUserMessage("What's on today?")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func drain(t *testing.T, s aide.Stream) []aide.Event {
	t.Helper()
	var events []aide.Event
	for {
		evt, err := s.Next()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, evt)
	}
}

func TestStream_Text(t *testing.T) {
	t.Parallel()
	s := openStream(t, context.Background(), agendaReply())

	assert.Equal(t, []aide.Event{
		aide.EventTextDelta{Index: 0, Delta: "You have "},
		aide.EventTextDelta{Index: 0, Delta: "two meetings today."},
	}, drain(t, s))

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, []aide.ContentBlock{aide.TextBlock{Text: "You have two meetings today."}}, msg.Content)
	assert.Equal(t, aide.StopEndTurn, msg.StopReason)
	assert.Equal(t, "end_turn", msg.RawStopReason)
	assert.Equal(t, aide.Usage{InputTokens: 40, OutputTokens: 9}, msg.Usage)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestStream_EmptyMessage(t *testing.T) {
	t.Parallel()
	s := openStream(t, context.Background(), newScript(`{"input_tokens":40,"output_tokens":1}`).finish("end_turn", `{"output_tokens":1}`))

	assert.Empty(t, drain(t, s))
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
	assert.Equal(t, aide.StopEndTurn, msg.StopReason)
}

func TestStream_ToolCalls(t *testing.T) {
	t.Parallel()
	body := newScript(`{"input_tokens":300,"output_tokens":1}`).
		text(0, "Checking both.").
		toolUse(1, "toolu_cal", "search-calendar-events", `{"query":`, ` "dentist"}`).
		toolUse(2, "toolu_mail", "list-messages").
		event("ping", `{"type":"ping"}`).
		finish("tool_use", `{"output_tokens":51}`)
	s := openStream(t, context.Background(), body)

	search := aide.ToolCallBlock{ID: "toolu_cal", Name: "search-calendar-events", Arguments: json.RawMessage(`{"query": "dentist"}`)}
	mail := aide.ToolCallBlock{ID: "toolu_mail", Name: "list-messages", Arguments: json.RawMessage(`{}`)}
	assert.Equal(t, []aide.Event{
		aide.EventTextDelta{Index: 0, Delta: "Checking both."},
		aide.EventToolCallBegin{ID: "toolu_cal", Name: "search-calendar-events"},
		aide.EventToolCallDelta{ID: "toolu_cal", Delta: `{"query":`},
		aide.EventToolCallDelta{ID: "toolu_cal", Delta: ` "dentist"}`},
		aide.EventToolCallEnd{Call: search},
		aide.EventToolCallBegin{ID: "toolu_mail", Name: "list-messages"},
		aide.EventToolCallEnd{Call: mail},
	}, drain(t, s))

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopToolUse, msg.StopReason)
	assert.Equal(t, []aide.ToolCallBlock{search, mail}, msg.ToolCalls())
}

func TestStream_ThinkingKeepsSignature(t *testing.T) {
	t.Parallel()
	body := newScript(`{"input_tokens":40,"output_tokens":1}`).
		thinking(0, "c2lnLTE=", "The user wants ", "tomorrow's events.").
		toolUse(1, "toolu_1", "list-calendar-events", `{"max_results":5}`).
		finish("tool_use", `{"output_tokens":30}`)
	s := openStream(t, context.Background(), body)

	events := drain(t, s)
	require.Len(t, events, 5)
	assert.Equal(t, aide.EventThinkingDelta{Index: 0, Delta: "The user wants "}, events[0])
	assert.Equal(t, aide.EventThinkingDelta{Index: 0, Delta: "tomorrow's events."}, events[1])

	msg, err := s.Message()
	require.NoError(t, err)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, aide.ThinkingBlock{Thinking: "The user wants tomorrow's events.", Signature: []byte("c2lnLTE=")}, msg.Content[0])
}

func TestStream_StopReasons(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want aide.StopReason
	}{
		{"end_turn", aide.StopEndTurn},
		{"tool_use", aide.StopToolUse},
		{"max_tokens", aide.StopLength},
		{"pause_turn", aide.StopUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			s := openStream(t, context.Background(), newScript(`{"input_tokens":1,"output_tokens":1}`).
				text(0, "Your inbox").
				finish(tt.raw, `{"output_tokens":2}`))
			drain(t, s)
			msg, err := s.Message()
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.StopReason)
			assert.Equal(t, tt.raw, msg.RawStopReason)
		})
	}
}

func TestStream_Usage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		start string
		delta string
		want  aide.Usage
	}{
		{
			name:  "cache counters from start",
			start: `{"input_tokens":12,"output_tokens":1,"cache_creation_input_tokens":800,"cache_read_input_tokens":2400}`,
			delta: `{"output_tokens":20}`,
			want:  aide.Usage{InputTokens: 12, OutputTokens: 20, CacheWriteTokens: 800, CacheReadTokens: 2400},
		},
		{
			name:  "delta cache counters add to start",
			start: `{"input_tokens":12,"output_tokens":1,"cache_creation_input_tokens":800,"cache_read_input_tokens":2400}`,
			delta: `{"output_tokens":20,"cache_creation_input_tokens":100,"cache_read_input_tokens":50}`,
			want:  aide.Usage{InputTokens: 12, OutputTokens: 20, CacheWriteTokens: 900, CacheReadTokens: 2450},
		},
		{
			name:  "null delta counters are ignored",
			start: `{"input_tokens":12,"output_tokens":1,"cache_creation_input_tokens":800,"cache_read_input_tokens":2400}`,
			delta: `{"output_tokens":20,"input_tokens":null,"cache_creation_input_tokens":null,"cache_read_input_tokens":null}`,
			want:  aide.Usage{InputTokens: 12, OutputTokens: 20, CacheWriteTokens: 800, CacheReadTokens: 2400},
		},
		{
			name:  "null start counters are zero",
			start: `{"input_tokens":12,"output_tokens":1,"cache_creation_input_tokens":null,"cache_read_input_tokens":null}`,
			delta: `{"output_tokens":20}`,
			want:  aide.Usage{InputTokens: 12, OutputTokens: 20},
		},
		{
			name:  "delta input tokens replace start",
			start: `{"input_tokens":12,"output_tokens":1}`,
			delta: `{"output_tokens":20,"input_tokens":640}`,
			want:  aide.Usage{InputTokens: 640, OutputTokens: 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := openStream(t, context.Background(), newScript(tt.start).text(0, "Done.").finish("end_turn", tt.delta))
			drain(t, s)
			msg, err := s.Message()
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Usage)
		})
	}
}

func TestStream_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("message is unavailable before the first event", func(t *testing.T) {
		t.Parallel()
		s := openStream(t, context.Background(), agendaReply())
		assert.Equal(t, aide.StreamStateNew, s.State())
		_, err := s.Message()
		assert.Error(t, err)
	})

	t.Run("partial message mid-stream", func(t *testing.T) {
		t.Parallel()
		s := openStream(t, context.Background(), agendaReply())
		_, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, aide.StreamStateStreaming, s.State())

		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, "You have ", msg.Text())
	})

	t.Run("close mid-stream aborts", func(t *testing.T) {
		t.Parallel()
		s := openStream(t, context.Background(), agendaReply())
		_, err := s.Next()
		require.NoError(t, err)
		require.NoError(t, s.Close())
		assert.Equal(t, aide.StreamStateClosed, s.State())

		_, err = s.Next()
		assert.ErrorContains(t, err, "stream closed")
		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, aide.StopAborted, msg.StopReason)
	})

	t.Run("close after completion keeps the stop reason", func(t *testing.T) {
		t.Parallel()
		s := openStream(t, context.Background(), agendaReply())
		drain(t, s)
		require.NoError(t, s.Close())
		assert.Equal(t, aide.StreamStateComplete, s.State())
		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, aide.StopEndTurn, msg.StopReason)

		_, err = s.Next()
		assert.Equal(t, io.EOF, err)
	})
}

func TestStream_ErrorEvent(t *testing.T) {
	t.Parallel()
	body := newScript(`{"input_tokens":1,"output_tokens":1}`).
		event("error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`).
		b.String()
	s := openStream(t, context.Background(), body)

	_, err := s.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error: Overloaded")
	assert.Equal(t, aide.StreamStateError, s.State())
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopError, msg.StopReason)
}

func TestStream_TruncatedBody(t *testing.T) {
	t.Parallel()
	// No message_stop: the connection ends mid-answer.
	body := newScript(`{"input_tokens":1,"output_tokens":1}`).
		blockStart(0, `{"type":"text","text":""}`).
		delta(0, `{"type":"text_delta","text":"You have"}`).
		b.String()
	s := openStream(t, context.Background(), body)

	_, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.ErrorContains(t, err, "unexpected end of stream")

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopError, msg.StopReason)
	assert.Equal(t, "You have", msg.Text())
}

func TestStream_Cancelled(t *testing.T) {
	t.Parallel()
	first := newScript(`{"input_tokens":1,"output_tokens":1}`).
		blockStart(0, `{"type":"text","text":""}`).
		delta(0, `{"type":"text_delta","text":"Looking"}`).
		b.String()
	sent := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, first)
		w.(http.Flusher).Flush()
		close(sent)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := anthropic.New("k", anthropic.WithBaseURL(srv.URL)).Stream(ctx, aide.Request{
		Messages: []aide.Message{aide.NewUserMessage("Any mail?")},
	})
	require.NoError(t, err)
	defer s.Close()

	evt, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, aide.EventTextDelta{Index: 0, Delta: "Looking"}, evt)

	<-sent
	cancel()
	_, err = s.Next()
	require.Error(t, err)
	assert.Equal(t, aide.StreamStateError, s.State())
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopAborted, msg.StopReason)
}
