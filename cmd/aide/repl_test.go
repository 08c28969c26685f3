package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/agent"
	"github.com/fwojciec/aide/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendarBackend() *mock.Backend {
	return &mock.Backend{
		NameValue: "calendar",
		ListToolsFn: func(context.Context) ([]aide.Tool, error) {
			return []aide.Tool{{Name: "list-calendar-events", Description: "List upcoming events.\nDefaults to a week."}}, nil
		},
		CallToolFn: func(context.Context, string, map[string]any) (any, error) {
			return aide.EventList{Status: aide.StatusSuccess, Events: []aide.CalendarEvent{{ID: "e1", Summary: "Standup"}}}, nil
		},
	}
}

func openTestSession(t *testing.T, provider aide.Provider, backends ...aide.Backend) *agent.Session {
	t.Helper()
	conns := make([]agent.Connector, len(backends))
	for i, b := range backends {
		conns[i] = agent.Connector{Name: b.Name(), Start: func(context.Context) (aide.Backend, error) { return b, nil }}
	}
	s, err := agent.Open(context.Background(), provider, conns)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func runREPL(t *testing.T, s *agent.Session, input string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	r := newREPL(s, strings.NewReader(input), &out, &errOut)
	err := r.run(context.Background())
	return out.String(), errOut.String(), err
}

func TestREPL_Conversation(t *testing.T) {
	t.Parallel()
	var calls int
	provider := &mock.Provider{
		StreamFn: func(context.Context, aide.Request) (aide.Stream, error) {
			calls++
			if calls == 1 {
				return mock.CompletedStream(aide.AssistantMessage{
					Content:    []aide.ContentBlock{aide.ToolCallBlock{ID: "c1", Name: "list-calendar-events", Arguments: json.RawMessage(`{}`)}},
					StopReason: aide.StopToolUse,
				}), nil
			}
			return mock.CompletedStream(aide.AssistantMessage{
				Content:    []aide.ContentBlock{aide.TextBlock{Text: "You have a standup."}},
				StopReason: aide.StopEndTurn,
			}), nil
		},
	}
	s := openTestSession(t, provider, calendarBackend())
	path := filepath.Join(t.TempDir(), "chats", "today.json")

	out, errOut, err := runREPL(t, s, "/tools\nWhat's on today?\n/transcript\n/save "+path+"\nquit\nnever read\n")
	require.NoError(t, err)

	assert.Contains(t, out, "list-calendar-events  calendar  List upcoming events.")
	assert.NotContains(t, out, "Defaults to a week.")
	assert.Contains(t, out, "You have a standup.\n")
	assert.Contains(t, out, `"version": 1`)
	assert.Contains(t, out, "Transcript saved to "+path)
	assert.Contains(t, errOut, "✓ list-calendar-events (")
	assert.Equal(t, 2, calls)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Standup")
}

func TestREPL_ErrorsKeepSessionUsable(t *testing.T) {
	t.Parallel()
	var calls int
	provider := &mock.Provider{
		StreamFn: func(context.Context, aide.Request) (aide.Stream, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("overloaded")
			}
			return mock.CompletedStream(aide.AssistantMessage{
				Content:    []aide.ContentBlock{aide.TextBlock{Text: "Hello again."}},
				StopReason: aide.StopEndTurn,
			}), nil
		},
	}
	s := openTestSession(t, provider)

	out, errOut, err := runREPL(t, s, "hi\n/save\nhi again\n")
	require.NoError(t, err)
	assert.Contains(t, errOut, "error: provider error")
	assert.Contains(t, errOut, "error: usage: /save <path>")
	assert.Contains(t, errOut, "warning: no tools available")
	assert.Contains(t, out, "Hello again.")
}

func TestREPL_PoisonedSessionEnds(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{
		StreamFn: func(context.Context, aide.Request) (aide.Stream, error) {
			return mock.CompletedStream(aide.AssistantMessage{
				Content: []aide.ContentBlock{
					aide.ToolCallBlock{ID: "dup", Name: "list-calendar-events"},
					aide.ToolCallBlock{ID: "dup", Name: "list-calendar-events"},
				},
				StopReason: aide.StopToolUse,
			}), nil
		},
	}
	s := openTestSession(t, provider, calendarBackend())

	_, _, err := runREPL(t, s, "hi\nhi again\n")
	assert.ErrorIs(t, err, aide.ErrMalformedTranscript)
}

func TestREPL_Progress(t *testing.T) {
	t.Parallel()
	var errOut bytes.Buffer
	r := &repl{errOut: &errOut, width: 24}

	r.progress(aide.EventToolCallBegin{ID: "c1", Name: "get-message-body"})
	r.progress(aide.EventToolResult{
		Result:   aide.ToolResult{ToolName: "get-message-body", Content: "{\"error\": \"tool execution failed: message not found\"}", IsError: true},
		Duration: 1500 * time.Microsecond,
	})
	r.progress(aide.EventTextDelta{Delta: "ignored"})

	lines := strings.Split(strings.TrimSuffix(errOut.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "  … get-message-body", lines[0])
	assert.Equal(t, "  ✗ get-message-body: {…", lines[1])
}
