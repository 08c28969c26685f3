package mock

import (
	"context"

	"github.com/fwojciec/aide"
)

// CalendarService is a test double for aide.CalendarService.
type CalendarService struct {
	CreateEventFn  func(ctx context.Context, ev aide.NewEvent) (aide.EventResult, error)
	ListEventsFn   func(ctx context.Context, q aide.EventQuery) (aide.EventList, error)
	SearchEventsFn func(ctx context.Context, q aide.EventQuery) (aide.EventList, error)
	DeleteEventFn  func(ctx context.Context, id string) (aide.DeleteResult, error)
}

// CreateEvent delegates to CreateEventFn.
func (s *CalendarService) CreateEvent(ctx context.Context, ev aide.NewEvent) (aide.EventResult, error) {
	return s.CreateEventFn(ctx, ev)
}

// ListEvents delegates to ListEventsFn.
func (s *CalendarService) ListEvents(ctx context.Context, q aide.EventQuery) (aide.EventList, error) {
	return s.ListEventsFn(ctx, q)
}

// SearchEvents delegates to SearchEventsFn.
func (s *CalendarService) SearchEvents(ctx context.Context, q aide.EventQuery) (aide.EventList, error) {
	return s.SearchEventsFn(ctx, q)
}

// DeleteEvent delegates to DeleteEventFn.
func (s *CalendarService) DeleteEvent(ctx context.Context, id string) (aide.DeleteResult, error) {
	return s.DeleteEventFn(ctx, id)
}

// MailService is a test double for aide.MailService.
type MailService struct {
	ListMessagesFn   func(ctx context.Context, q aide.MessageQuery) (aide.MessageList, error)
	GetMessageBodyFn func(ctx context.Context, id string) (aide.MessageBody, error)
}

// ListMessages delegates to ListMessagesFn.
func (s *MailService) ListMessages(ctx context.Context, q aide.MessageQuery) (aide.MessageList, error) {
	return s.ListMessagesFn(ctx, q)
}

// GetMessageBody delegates to GetMessageBodyFn.
func (s *MailService) GetMessageBody(ctx context.Context, id string) (aide.MessageBody, error) {
	return s.GetMessageBodyFn(ctx, id)
}
