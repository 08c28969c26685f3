package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/mcp"
	"github.com/fwojciec/aide/mock"
	"github.com/fwojciec/aide/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func connect(t *testing.T, name string, srv *server.MCPServer) *mcp.Backend {
	t.Helper()
	b, err := mcp.ConnectInProcess(context.Background(), name, srv)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func invoker(t *testing.T, backends ...aide.Backend) *tools.Invoker {
	t.Helper()
	reg, report := tools.Build(context.Background(), backends)
	require.Equal(t, aide.InitReady, report.Status())
	return tools.NewInvoker(reg)
}

func calendarStub() *mock.CalendarService {
	return &mock.CalendarService{
		CreateEventFn: func(context.Context, aide.NewEvent) (aide.EventResult, error) {
			return aide.EventResult{Status: aide.StatusSuccess, EventID: "evt-1", HTMLLink: "https://calendar/evt-1"}, nil
		},
		ListEventsFn: func(context.Context, aide.EventQuery) (aide.EventList, error) {
			return aide.EventList{Status: aide.StatusSuccess, Events: []aide.CalendarEvent{}}, nil
		},
		SearchEventsFn: func(context.Context, aide.EventQuery) (aide.EventList, error) {
			return aide.EventList{Status: aide.StatusSuccess, Events: []aide.CalendarEvent{}}, nil
		},
		DeleteEventFn: func(_ context.Context, id string) (aide.DeleteResult, error) {
			return aide.DeleteResult{Status: aide.StatusSuccess, EventID: id}, nil
		},
	}
}

func TestBackend_ListTools(t *testing.T) {
	t.Parallel()
	b := connect(t, "calendar", mcp.NewCalendarServer(calendarStub()))

	ts, err := b.ListTools(context.Background())
	require.NoError(t, err)

	byName := make(map[string]aide.Tool, len(ts))
	for _, tool := range ts {
		byName[tool.Name] = tool
	}
	require.Len(t, byName, 4)
	assert.Contains(t, byName, mcp.ToolCreateEvent)
	assert.Contains(t, byName, mcp.ToolListEvents)
	assert.Contains(t, byName, mcp.ToolSearchEvents)
	assert.Contains(t, byName, mcp.ToolDeleteEvent)

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	require.NoError(t, json.Unmarshal(byName[mcp.ToolCreateEvent].InputSchema, &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "timezone")
	assert.ElementsMatch(t, []string{"summary", "description", "start_time", "end_time"}, schema.Required)
}

func TestCalendarServer(t *testing.T) {
	t.Parallel()

	t.Run("list applies the default window", func(t *testing.T) {
		t.Parallel()
		var got aide.EventQuery
		svc := calendarStub()
		svc.ListEventsFn = func(_ context.Context, q aide.EventQuery) (aide.EventList, error) {
			got = q
			return aide.EventList{
				Status: aide.StatusSuccess,
				Events: []aide.CalendarEvent{{ID: "1", Summary: "Standup", Start: "2026-10-17T10:00:00Z"}},
			}, nil
		}
		b := connect(t, "calendar", mcp.NewCalendarServer(svc, mcp.WithClock(func() time.Time { return now })))

		res, err := b.CallTool(context.Background(), mcp.ToolListEvents, map[string]any{})
		require.NoError(t, err)

		assert.Equal(t, mcp.DefaultMaxResults, got.MaxResults)
		assert.True(t, got.TimeMin.Equal(now))
		assert.True(t, got.TimeMax.Equal(now.Add(mcp.DefaultWindow)))

		data, err := json.Marshal(res)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Standup")
	})

	t.Run("weakly typed arguments are accepted", func(t *testing.T) {
		t.Parallel()
		var got []aide.EventQuery
		svc := calendarStub()
		svc.SearchEventsFn = func(_ context.Context, q aide.EventQuery) (aide.EventList, error) {
			got = append(got, q)
			return aide.EventList{Status: aide.StatusSuccess, Events: []aide.CalendarEvent{}}, nil
		}
		b := connect(t, "calendar", mcp.NewCalendarServer(svc))

		// Through the invoker, as the orchestration loop calls it.
		out := invoker(t, b).Execute(context.Background(), mcp.ToolSearchEvents, json.RawMessage(`{"query":"dentist","max_results":"3"}`))
		require.False(t, out.IsError, out.Content)

		// Directly, as any other MCP client may call it.
		_, err := b.CallTool(context.Background(), mcp.ToolSearchEvents, map[string]any{"query": "dentist", "max_results": "3"})
		require.NoError(t, err)

		want := aide.EventQuery{MaxResults: 3, Text: "dentist"}
		assert.Equal(t, []aide.EventQuery{want, want}, got)
	})

	t.Run("create defaults the timezone", func(t *testing.T) {
		t.Parallel()
		var got aide.NewEvent
		svc := calendarStub()
		svc.CreateEventFn = func(_ context.Context, ev aide.NewEvent) (aide.EventResult, error) {
			got = ev
			return aide.EventResult{Status: aide.StatusSuccess, EventID: "evt-9"}, nil
		}
		b := connect(t, "calendar", mcp.NewCalendarServer(svc))

		_, err := b.CallTool(context.Background(), mcp.ToolCreateEvent, map[string]any{
			"summary":     "Dentist",
			"description": "Checkup",
			"start_time":  "2026-10-20T09:00:00-07:00",
			"end_time":    "2026-10-20T10:00:00-07:00",
		})
		require.NoError(t, err)
		assert.Equal(t, aide.DefaultTimeZone, got.TimeZone)
		assert.Equal(t, "Dentist", got.Summary)
	})

	t.Run("invalid time is a tool error", func(t *testing.T) {
		t.Parallel()
		b := connect(t, "calendar", mcp.NewCalendarServer(calendarStub()))

		_, err := b.CallTool(context.Background(), mcp.ToolListEvents, map[string]any{"time_min": "tomorrow"})
		require.ErrorIs(t, err, aide.ErrToolExecution)
		assert.Contains(t, err.Error(), `invalid time "tomorrow"`)
	})

	t.Run("service error is a tool error", func(t *testing.T) {
		t.Parallel()
		svc := calendarStub()
		svc.DeleteEventFn = func(context.Context, string) (aide.DeleteResult, error) {
			return aide.DeleteResult{}, errors.New("event not found")
		}
		b := connect(t, "calendar", mcp.NewCalendarServer(svc))

		_, err := b.CallTool(context.Background(), mcp.ToolDeleteEvent, map[string]any{"event_id": "nope"})
		require.ErrorIs(t, err, aide.ErrToolExecution)
		assert.Contains(t, err.Error(), "event not found")
	})
}

func TestGmailServer(t *testing.T) {
	t.Parallel()

	svc := &mock.MailService{
		ListMessagesFn: func(_ context.Context, q aide.MessageQuery) (aide.MessageList, error) {
			return aide.MessageList{
				Status: aide.StatusSuccess,
				Messages: []aide.EmailMessage{
					{ID: "m1", Subject: "Grüße 👋", Sender: "ana@example.com", Date: "Sat, 17 Oct 2026", Snippet: q.Query},
				},
			}, nil
		},
		GetMessageBodyFn: func(_ context.Context, id string) (aide.MessageBody, error) {
			return aide.MessageBody{Status: aide.StatusSuccess, MessageID: id, Body: "line one\nline two"}, nil
		},
	}
	inv := invoker(t, connect(t, "gmail", mcp.NewGmailServer(svc)))

	out := inv.Execute(context.Background(), mcp.ToolListMessages, json.RawMessage(`{"query":"is:unread"}`))
	require.False(t, out.IsError, out.Content)
	assert.Equal(t, "gmail", out.Backend)
	assert.JSONEq(t, `{"status":"success","messages":[{"id":"m1","subject":"Grüße 👋","sender":"ana@example.com","date":"Sat, 17 Oct 2026","snippet":"is:unread"}]}`, out.Content)

	out = inv.Execute(context.Background(), mcp.ToolGetMessageBody, json.RawMessage(`{"message_id":"m1"}`))
	require.False(t, out.IsError, out.Content)
	assert.JSONEq(t, `{"status":"success","message_id":"m1","body":"line one\nline two"}`, out.Content)

	// The reflected schema rejects a missing required argument before the
	// backend is reached.
	out = inv.Execute(context.Background(), mcp.ToolGetMessageBody, json.RawMessage(`{}`))
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, "message_id")
}

func TestConnect_MissingCommand(t *testing.T) {
	t.Parallel()
	_, err := mcp.Connect(context.Background(), aide.BackendConfig{Name: "calendar"})
	assert.ErrorIs(t, err, aide.ErrBackendUnavailable)
}
