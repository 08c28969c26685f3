package google

import (
	"context"
	"fmt"
	"time"

	"github.com/fwojciec/aide"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const primaryCalendar = "primary"

// defaultWindow is the span listed when a query has no upper bound.
const defaultWindow = 7 * 24 * time.Hour

// CalendarService implements aide.CalendarService on the user's primary
// Google calendar.
type CalendarService struct {
	svc lazy[*calendar.Service]
	now func() time.Time
}

var _ aide.CalendarService = (*CalendarService)(nil)

// NewCalendarService returns a service that calls open on first use.
func NewCalendarService(open func(context.Context) (*calendar.Service, error)) *CalendarService {
	return &CalendarService{svc: lazy[*calendar.Service]{open: open}, now: time.Now}
}

// CalendarOpener returns an open function authorized through a.
func CalendarOpener(a *Authenticator) func(context.Context) (*calendar.Service, error) {
	return func(ctx context.Context) (*calendar.Service, error) {
		hc, err := a.HTTPClient(ctx, "calendar", "v3", calendar.CalendarScope)
		if err != nil {
			return nil, err
		}
		return calendar.NewService(ctx, option.WithHTTPClient(hc))
	}
}

// CreateEvent inserts an event.
func (s *CalendarService) CreateEvent(ctx context.Context, ev aide.NewEvent) (aide.EventResult, error) {
	svc, err := s.svc.get(ctx)
	if err != nil {
		return aide.EventResult{}, err
	}
	tz := ev.TimeZone
	if tz == "" {
		tz = aide.DefaultTimeZone
	}
	created, err := svc.Events.Insert(primaryCalendar, &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &calendar.EventDateTime{DateTime: ev.Start, TimeZone: tz},
		End:         &calendar.EventDateTime{DateTime: ev.End, TimeZone: tz},
	}).Context(ctx).Do()
	if err != nil {
		return aide.EventResult{}, fmt.Errorf("create event: %w", err)
	}
	return aide.EventResult{Status: aide.StatusSuccess, EventID: created.Id, HTMLLink: created.HtmlLink}, nil
}

// ListEvents lists single events in the query window ordered by start time.
func (s *CalendarService) ListEvents(ctx context.Context, q aide.EventQuery) (aide.EventList, error) {
	svc, err := s.svc.get(ctx)
	if err != nil {
		return aide.EventList{}, err
	}
	minT := q.TimeMin
	if minT.IsZero() {
		minT = s.now()
	}
	maxT := q.TimeMax
	if maxT.IsZero() {
		maxT = minT.Add(defaultWindow)
	}
	call := svc.Events.List(primaryCalendar).
		TimeMin(minT.UTC().Format(time.RFC3339)).
		TimeMax(maxT.UTC().Format(time.RFC3339))
	return s.list(ctx, call, q.MaxResults, "No upcoming events found.")
}

// SearchEvents lists single events matching free text.
func (s *CalendarService) SearchEvents(ctx context.Context, q aide.EventQuery) (aide.EventList, error) {
	svc, err := s.svc.get(ctx)
	if err != nil {
		return aide.EventList{}, err
	}
	call := svc.Events.List(primaryCalendar).Q(q.Text)
	if !q.TimeMin.IsZero() {
		call = call.TimeMin(q.TimeMin.UTC().Format(time.RFC3339))
	}
	if !q.TimeMax.IsZero() {
		call = call.TimeMax(q.TimeMax.UTC().Format(time.RFC3339))
	}
	return s.list(ctx, call, q.MaxResults, fmt.Sprintf("No events found matching '%s'.", q.Text))
}

func (s *CalendarService) list(ctx context.Context, call *calendar.EventsListCall, limit int, empty string) (aide.EventList, error) {
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	res, err := call.SingleEvents(true).OrderBy("startTime").Context(ctx).Do()
	if err != nil {
		return aide.EventList{}, fmt.Errorf("list events: %w", err)
	}
	out := aide.EventList{Status: aide.StatusSuccess, Events: make([]aide.CalendarEvent, 0, len(res.Items))}
	for _, item := range res.Items {
		out.Events = append(out.Events, toEvent(item))
	}
	if len(out.Events) == 0 {
		out.Message = empty
	}
	return out, nil
}

// DeleteEvent removes an event by ID.
func (s *CalendarService) DeleteEvent(ctx context.Context, id string) (aide.DeleteResult, error) {
	svc, err := s.svc.get(ctx)
	if err != nil {
		return aide.DeleteResult{}, err
	}
	if err := svc.Events.Delete(primaryCalendar, id).Context(ctx).Do(); err != nil {
		return aide.DeleteResult{}, fmt.Errorf("delete event %s: %w", id, err)
	}
	return aide.DeleteResult{
		Status:  aide.StatusSuccess,
		EventID: id,
		Message: fmt.Sprintf("Event with ID '%s' deleted successfully.", id),
	}, nil
}

func toEvent(e *calendar.Event) aide.CalendarEvent {
	ev := aide.CalendarEvent{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Start:       when(e.Start),
		End:         when(e.End),
		HTMLLink:    e.HtmlLink,
	}
	for _, a := range e.Attendees {
		ev.Attendees = append(ev.Attendees, aide.Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return ev
}

// when prefers the timed start and falls back to the all-day date.
func when(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}
