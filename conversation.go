package aide

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript is the append-only list of turns in a conversation. Entries
// are never edited. Truncate exists only to roll back a turn that failed
// before it completed.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// Append adds messages to the end of the transcript.
func (t *Transcript) Append(msgs ...Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msgs...)
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Truncate drops every turn at index n and beyond. Use it with a mark taken
// from Len() before a turn started.
func (t *Transcript) Truncate(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(t.messages) {
		return
	}
	clear(t.messages[n:])
	t.messages = t.messages[:n]
}

// Validate checks tool call correlation: every assistant tool call must be
// answered, in order and exactly once, by the ToolResultMessage that
// immediately follows it, and no results may appear without calls.
func (t *Transcript) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return validateTranscript(t.messages)
}

func validateTranscript(msgs []Message) error {
	var pending []ToolCallBlock
	for i, msg := range msgs {
		if err := ValidateMessage(msg); err != nil {
			return fmt.Errorf("turn %d: %w: %w", i, ErrMalformedTranscript, err)
		}
		switch m := msg.(type) {
		case ToolResultMessage:
			if len(pending) == 0 {
				return fmt.Errorf("turn %d: tool results without preceding tool calls: %w", i, ErrMalformedTranscript)
			}
			if len(m.Results) != len(pending) {
				return fmt.Errorf("turn %d: %d tool calls answered by %d results: %w", i, len(pending), len(m.Results), ErrMalformedTranscript)
			}
			for j, r := range m.Results {
				if r.ToolCallID != pending[j].ID {
					return fmt.Errorf("turn %d: result %d has id %q, want %q: %w", i, j, r.ToolCallID, pending[j].ID, ErrMalformedTranscript)
				}
			}
			pending = nil
		default:
			if len(pending) > 0 {
				return fmt.Errorf("turn %d: tool call %q has no result: %w", i, pending[0].ID, ErrMalformedTranscript)
			}
			if am, ok := msg.(AssistantMessage); ok {
				pending = am.ToolCalls()
				seen := make(map[string]bool, len(pending))
				for _, c := range pending {
					if seen[c.ID] {
						return fmt.Errorf("turn %d: duplicate tool call id %q: %w", i, c.ID, ErrMalformedTranscript)
					}
					seen[c.ID] = true
				}
			}
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("tool call %q has no result: %w", pending[0].ID, ErrMalformedTranscript)
	}
	return nil
}

// Conversation is a single logical conversation with the assistant.
type Conversation struct {
	ID           string
	SystemPrompt string
	CreatedAt    time.Time
	Transcript   Transcript
}

// NewConversation returns an empty conversation with a random ID.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		ID:           uuid.NewString(),
		SystemPrompt: systemPrompt,
		CreatedAt:    time.Now(),
	}
}
