package aide

import (
	"context"
	"time"
)

// Result statuses reported by calendar and mail operations.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultTimeZone is used for new events when none is given.
const DefaultTimeZone = "America/Los_Angeles"

// CalendarEvent is a single event on the user's primary calendar.
type CalendarEvent struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Start       string     `json:"start"`
	End         string     `json:"end,omitempty"`
	HTMLLink    string     `json:"html_link,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

// Attendee is an event participant.
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// EventList is returned by list and search operations. Message is set when
// no events matched, so an empty list is an explicit success.
type EventList struct {
	Status  string          `json:"status"`
	Events  []CalendarEvent `json:"events"`
	Message string          `json:"message,omitempty"`
}

// EventResult is returned when an event is created.
type EventResult struct {
	Status   string `json:"status"`
	EventID  string `json:"event_id"`
	HTMLLink string `json:"html_link"`
}

// DeleteResult is returned when an event is deleted.
type DeleteResult struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
	Message string `json:"message"`
}

// NewEvent describes an event to create. Start and End are RFC 3339
// timestamps interpreted in TimeZone.
type NewEvent struct {
	Summary     string
	Description string
	Start       string
	End         string
	TimeZone    string
}

// EventQuery selects events in a time window. Zero times mean "now" and
// "a week from TimeMin".
type EventQuery struct {
	MaxResults int
	TimeMin    time.Time
	TimeMax    time.Time
	Text       string
}

// CalendarService manages events on the user's primary calendar.
type CalendarService interface {
	CreateEvent(ctx context.Context, ev NewEvent) (EventResult, error)
	ListEvents(ctx context.Context, q EventQuery) (EventList, error)
	SearchEvents(ctx context.Context, q EventQuery) (EventList, error)
	DeleteEvent(ctx context.Context, id string) (DeleteResult, error)
}
