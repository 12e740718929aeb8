// Package chat holds the ordered transcript of a conversation and the
// lifecycle of the turn currently in flight.
package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultGreeting seeds every new conversation.
const DefaultGreeting = "Dei Gugan! Naan un AI Macha. Enna venum, kelu macha! Tech doubt ah, personal advice ah? Just type pannu 💪"

var (
	ErrNoPendingTurn = errors.New("no pending turn")
	ErrKindMismatch  = errors.New("pending turn is of a different kind")
)

// State is the turn state machine of a conversation.
type State int

const (
	Idle State = iota
	AwaitingResponse
)

func (s State) String() string {
	if s == AwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "awaiting_response":
		*s = AwaitingResponse
	default:
		return fmt.Errorf("unknown conversation state %q", b)
	}
	return nil
}

// Conversation is safe for concurrent use. Only its own methods mutate the
// transcript, and every transition happens under one lock so readers never
// observe a placeholder next to its own outcome.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
	pending  *Placeholder
	onChange func()
}

// NewConversation returns a conversation seeded with one assistant greeting.
// An empty greeting uses DefaultGreeting.
func NewConversation(greeting string) *Conversation {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return &Conversation{
		messages: []Message{NewMessage(RoleAssistant, greeting)},
	}
}

// OnChange registers a callback invoked after every mutation, outside the lock.
func (c *Conversation) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Append adds a finalized message to the end of the transcript.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	fn := c.onChange
	c.mu.Unlock()
	notify(fn)
}

// BeginTurn fills the pending slot with a placeholder of the given kind,
// appending the before messages in the same transition. It reports false and
// changes nothing when a turn is already pending.
func (c *Conversation) BeginTurn(kind PendingKind, before ...Message) bool {
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return false
	}
	c.messages = append(c.messages, before...)
	c.pending = &Placeholder{
		Kind:      kind,
		Content:   placeholderContent(kind),
		CreatedAt: time.Now().UTC(),
	}
	fn := c.onChange
	c.mu.Unlock()
	notify(fn)
	return true
}

// ResolveTurn clears the pending placeholder of the given kind and appends
// outcome, if any, as one transition. A nil outcome only removes the
// placeholder.
func (c *Conversation) ResolveTurn(kind PendingKind, outcome *Message) error {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return ErrNoPendingTurn
	}
	if c.pending.Kind != kind {
		c.mu.Unlock()
		return ErrKindMismatch
	}
	c.pending = nil
	if outcome != nil {
		c.messages = append(c.messages, *outcome)
	}
	fn := c.onChange
	c.mu.Unlock()
	notify(fn)
	return nil
}

// State reports whether a turn is in flight.
func (c *Conversation) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pending != nil {
		return AwaitingResponse
	}
	return Idle
}

// Pending returns the current placeholder, if any.
func (c *Conversation) Pending() (Placeholder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pending == nil {
		return Placeholder{}, false
	}
	return *c.pending, true
}

// Messages returns a copy of the transcript with the pending placeholder, if
// any, rendered as the trailing entry.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, 0, len(c.messages)+1)
	out = append(out, c.messages...)
	if c.pending != nil {
		out = append(out, c.pending.message())
	}
	return out
}

// Find returns the finalized message with the given id.
func (c *Conversation) Find(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Len counts finalized messages only.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}
