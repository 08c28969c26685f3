package mock

import (
	"io"

	"github.com/fwojciec/aide"
)

// Interface compliance check.
var _ aide.Stream = (*Stream)(nil)

// Stream is a test double for aide.Stream.
// Set the function fields for the methods you need. NextFn and MessageFn
// panic when nil to catch missing setup. CloseFn and StateFn are nil-safe
// (no-op and zero value) because callers commonly defer stream.Close().
type Stream struct {
	NextFn    func() (aide.Event, error)
	StateFn   func() aide.StreamState
	MessageFn func() (aide.AssistantMessage, error)
	CloseFn   func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (aide.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() aide.StreamState {
	if s.StateFn == nil {
		return aide.StreamStateNew
	}
	return s.StateFn()
}

// Message delegates to MessageFn.
func (s *Stream) Message() (aide.AssistantMessage, error) {
	return s.MessageFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// CompletedStream returns a stream that emits events in order, then io.EOF,
// and assembles msg.
func CompletedStream(msg aide.AssistantMessage, events ...aide.Event) *Stream {
	i := 0
	return &Stream{
		NextFn: func() (aide.Event, error) {
			if i < len(events) {
				e := events[i]
				i++
				return e, nil
			}
			return nil, io.EOF
		},
		StateFn: func() aide.StreamState {
			if i < len(events) {
				return aide.StreamStateStreaming
			}
			return aide.StreamStateComplete
		},
		MessageFn: func() (aide.AssistantMessage, error) {
			return msg, nil
		},
	}
}
