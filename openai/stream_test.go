package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, ctx context.Context, body string) aide.Stream {
	t.Helper()
	srv := serve(t, body, nil)
	s, err := openai.New("k", openai.WithBaseURL(srv.URL+"/v1")).Stream(ctx, aide.Request{
		Messages: []aide.Message{aide.NewUserMessage("Hi")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func collect(t *testing.T, s aide.Stream) []aide.Event {
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
	s := openStream(t, context.Background(), sse(
		`{"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","content":"You have "}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"two meetings."}}]}`,
		stopChunk,
		`{"id":"c1","choices":[],"usage":{"prompt_tokens":120,"completion_tokens":7,"total_tokens":127,"prompt_tokens_details":{"cached_tokens":100}}}`,
	))
	assert.Equal(t, aide.StreamStateNew, s.State())

	events := collect(t, s)
	assert.Equal(t, []aide.Event{
		aide.EventTextDelta{Index: 0, Delta: "You have "},
		aide.EventTextDelta{Index: 0, Delta: "two meetings."},
	}, events)
	assert.Equal(t, aide.StreamStateComplete, s.State())

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, "You have two meetings.", msg.Text())
	assert.Equal(t, aide.StopEndTurn, msg.StopReason)
	assert.Equal(t, "stop", msg.RawStopReason)
	assert.Equal(t, aide.Usage{InputTokens: 20, OutputTokens: 7, CacheReadTokens: 100}, msg.Usage)
	assert.False(t, msg.Timestamp.IsZero())

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStream_ToolCallFragments(t *testing.T) {
	t.Parallel()
	s := openStream(t, context.Background(), sse(
		`{"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"search-calendar-events","arguments":""}}]}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\":"}}]}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"list-messages","arguments":""}}]}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"dentist\"}"}}]}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	))

	events := collect(t, s)
	assert.Equal(t, []aide.Event{
		aide.EventToolCallBegin{ID: "call_a", Name: "search-calendar-events"},
		aide.EventToolCallDelta{ID: "call_a", Delta: `{"query":`},
		aide.EventToolCallBegin{ID: "call_b", Name: "list-messages"},
		aide.EventToolCallDelta{ID: "call_a", Delta: `"dentist"}`},
		aide.EventToolCallEnd{Call: aide.ToolCallBlock{ID: "call_a", Name: "search-calendar-events", Arguments: json.RawMessage(`{"query":"dentist"}`)}},
		aide.EventToolCallEnd{Call: aide.ToolCallBlock{ID: "call_b", Name: "list-messages", Arguments: json.RawMessage(`{}`)}},
	}, events)

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopToolUse, msg.StopReason)
	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, "call_b", calls[1].ID)
}

func TestStream_ToolCallWithoutID(t *testing.T) {
	t.Parallel()
	s := openStream(t, context.Background(), sse(
		`{"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"type":"function","function":{"name":"list-messages","arguments":"{}"}}]}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	))
	events := collect(t, s)
	require.Len(t, events, 3)
	begin := events[0].(aide.EventToolCallBegin)
	end := events[2].(aide.EventToolCallEnd)
	assert.True(t, strings.HasPrefix(begin.ID, "call_"))
	assert.Equal(t, begin.ID, end.Call.ID)
}

func TestStream_InvalidArguments(t *testing.T) {
	t.Parallel()
	s := openStream(t, context.Background(), sse(
		`{"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"list-messages","arguments":"{\"query\":"}}]}}]}`,
	))
	_, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tool call arguments for list-messages")
	assert.Equal(t, aide.StreamStateError, s.State())

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopError, msg.StopReason)
}

func TestStream_Length(t *testing.T) {
	t.Parallel()
	s := openStream(t, context.Background(), sse(
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"trunc"},"finish_reason":"length"}]}`,
	))
	collect(t, s)
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopLength, msg.StopReason)
	assert.Equal(t, "length", msg.RawStopReason)
}

func TestStream_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	s := openStream(t, ctx, sse(
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"a"}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"b"}}]}`,
		stopChunk,
	))
	_, err := s.Next()
	require.NoError(t, err)
	cancel()

	_, err = s.Next()
	require.ErrorIs(t, err, context.Canceled)
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopAborted, msg.StopReason)
	assert.Equal(t, "a", msg.Text())
}

func TestStream_Close(t *testing.T) {
	t.Parallel()
	s := openStream(t, context.Background(), sse(
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"partial"}}]}`,
		stopChunk,
	))
	_, err := s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, aide.StreamStateClosed, s.State())

	_, err = s.Next()
	assert.ErrorIs(t, err, openai.ErrStreamClosed)
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, aide.StopAborted, msg.StopReason)
	assert.Equal(t, "partial", msg.Text())
}
