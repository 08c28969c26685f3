package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/fwojciec/aide"
	"github.com/mark3labs/mcp-go/server"
)

// Calendar tool names.
const (
	ToolCreateEvent  = "create-calendar-event"
	ToolListEvents   = "list-calendar-events"
	ToolSearchEvents = "search-calendar-events"
	ToolDeleteEvent  = "delete-calendar-event"
)

// DefaultMaxResults caps list and search results when the caller gives no limit.
const DefaultMaxResults = 10

// DefaultWindow is the span of list-calendar-events when time_max is omitted.
const DefaultWindow = 7 * 24 * time.Hour

type createEventParams struct {
	Summary     string `json:"summary" jsonschema_description:"Title of the event."`
	Description string `json:"description" jsonschema_description:"Description of the event."`
	StartTime   string `json:"start_time" jsonschema_description:"Start time in ISO 8601 format, e.g. 2025-12-25T09:00:00-07:00."`
	EndTime     string `json:"end_time" jsonschema_description:"End time in ISO 8601 format, e.g. 2025-12-25T10:00:00-07:00."`
	TimeZone    string `json:"timezone,omitempty" jsonschema:"default=America/Los_Angeles" jsonschema_description:"IANA time zone of the event."`
}

type listEventsParams struct {
	MaxResults int    `json:"max_results,omitempty" jsonschema:"default=10,minimum=1" jsonschema_description:"Maximum number of events to return."`
	TimeMin    string `json:"time_min,omitempty" jsonschema_description:"Start of the window in ISO 8601 format. Defaults to now."`
	TimeMax    string `json:"time_max,omitempty" jsonschema_description:"End of the window in ISO 8601 format. Defaults to seven days after time_min."`
}

type searchEventsParams struct {
	Query      string `json:"query" jsonschema_description:"Free text matched against event fields."`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"default=10,minimum=1" jsonschema_description:"Maximum number of events to return."`
}

type deleteEventParams struct {
	EventID string `json:"event_id" jsonschema_description:"ID of the event to delete."`
}

// NewCalendarServer returns an MCP server exposing svc as the calendar tools.
func NewCalendarServer(svc aide.CalendarService, opts ...ServerOption) *server.MCPServer {
	cfg := newServerConfig(opts)
	srv := newServer("Google Calendar")

	addTool(srv, ToolCreateEvent,
		"Create a new calendar event with summary, description, start time, end time, and optional timezone.",
		func(ctx context.Context, p createEventParams) (aide.EventResult, error) {
			if p.TimeZone == "" {
				p.TimeZone = aide.DefaultTimeZone
			}
			if _, err := time.LoadLocation(p.TimeZone); err != nil {
				return aide.EventResult{}, fmt.Errorf("unknown timezone %q", p.TimeZone)
			}
			for _, ts := range []string{p.StartTime, p.EndTime} {
				if _, err := time.Parse(time.RFC3339, ts); err != nil {
					return aide.EventResult{}, fmt.Errorf("invalid time %q: expected ISO 8601 with offset", ts)
				}
			}
			return svc.CreateEvent(ctx, aide.NewEvent{
				Summary:     p.Summary,
				Description: p.Description,
				Start:       p.StartTime,
				End:         p.EndTime,
				TimeZone:    p.TimeZone,
			})
		})

	addTool(srv, ToolListEvents,
		"List upcoming calendar events, with optional max_results, time_min, and time_max.",
		func(ctx context.Context, p listEventsParams) (aide.EventList, error) {
			q := aide.EventQuery{MaxResults: maxResults(p.MaxResults)}
			var err error
			if q.TimeMin, err = parseTime(p.TimeMin, cfg.now()); err != nil {
				return aide.EventList{}, err
			}
			if q.TimeMax, err = parseTime(p.TimeMax, q.TimeMin.Add(DefaultWindow)); err != nil {
				return aide.EventList{}, err
			}
			if !q.TimeMax.After(q.TimeMin) {
				return aide.EventList{}, fmt.Errorf("time_max %s is not after time_min %s",
					q.TimeMax.Format(time.RFC3339), q.TimeMin.Format(time.RFC3339))
			}
			return svc.ListEvents(ctx, q)
		})

	addTool(srv, ToolSearchEvents,
		"Search for calendar events matching a query, with optional max_results.",
		func(ctx context.Context, p searchEventsParams) (aide.EventList, error) {
			return svc.SearchEvents(ctx, aide.EventQuery{MaxResults: maxResults(p.MaxResults), Text: p.Query})
		})

	addTool(srv, ToolDeleteEvent,
		"Delete a calendar event by its event ID.",
		func(ctx context.Context, p deleteEventParams) (aide.DeleteResult, error) {
			if p.EventID == "" {
				return aide.DeleteResult{}, fmt.Errorf("event_id is required")
			}
			return svc.DeleteEvent(ctx, p.EventID)
		})

	return srv
}

func maxResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return n
}

// parseTime parses an RFC 3339 timestamp, returning def for an empty string.
func parseTime(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected ISO 8601 with offset", s)
	}
	return t, nil
}
