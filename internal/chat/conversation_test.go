package chat

import (
	"errors"
	"sync"
	"testing"
)

func countPending(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.Pending != "" {
			n++
		}
	}
	return n
}

func TestNewConversation_SeedsGreeting(t *testing.T) {
	c := NewConversation("")

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(msgs))
	}
	if msgs[0].Role != RoleAssistant {
		t.Errorf("expected assistant greeting, got role %q", msgs[0].Role)
	}
	if msgs[0].Content != DefaultGreeting {
		t.Errorf("expected default greeting, got %q", msgs[0].Content)
	}
	if c.State() != Idle {
		t.Errorf("expected idle, got %s", c.State())
	}
}

func TestNewConversation_CustomGreeting(t *testing.T) {
	c := NewConversation("vanakkam")
	if got := c.Messages()[0].Content; got != "vanakkam" {
		t.Errorf("expected custom greeting, got %q", got)
	}
}

func TestBeginTurn_AppendsPlaceholderLast(t *testing.T) {
	c := NewConversation("")
	user := NewMessage(RoleUser, "react la state epdi?")

	if !c.BeginTurn(Typing, user) {
		t.Fatal("expected BeginTurn to succeed on idle conversation")
	}

	msgs := c.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected greeting, user message and placeholder, got %d", len(msgs))
	}
	if msgs[1].ID != user.ID {
		t.Errorf("expected user message before placeholder")
	}
	last := msgs[2]
	if last.Pending != Typing || last.ID != "typing" {
		t.Errorf("expected typing placeholder, got %+v", last)
	}
	if last.Content != "..." {
		t.Errorf("expected typing marker, got %q", last.Content)
	}
	if c.State() != AwaitingResponse {
		t.Errorf("expected awaiting_response, got %s", c.State())
	}
	if c.Len() != 2 {
		t.Errorf("placeholder must not count as a finalized message, Len=%d", c.Len())
	}
}

func TestBeginTurn_RejectsSecondPlaceholder(t *testing.T) {
	c := NewConversation("")
	if !c.BeginTurn(Typing) {
		t.Fatal("first BeginTurn failed")
	}

	late := NewMessage(RoleUser, "second question")
	if c.BeginTurn(Typing, late) {
		t.Fatal("expected second BeginTurn to be rejected")
	}
	if c.BeginTurn(Uploading) {
		t.Fatal("expected uploading BeginTurn to be rejected while typing")
	}

	msgs := c.Messages()
	if n := countPending(msgs); n != 1 {
		t.Errorf("expected exactly 1 placeholder, got %d", n)
	}
	if _, ok := c.Find(late.ID); ok {
		t.Error("rejected turn must not append its user message")
	}
}

func TestResolveTurn_ReplacesPlaceholder(t *testing.T) {
	c := NewConversation("")
	c.BeginTurn(Typing, NewMessage(RoleUser, "hi"))

	reply := NewMessage(RoleAssistant, "semma question macha")
	if err := c.ResolveTurn(Typing, &reply); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := c.Messages()
	if countPending(msgs) != 0 {
		t.Error("placeholder still present after resolve")
	}
	if msgs[len(msgs)-1].ID != reply.ID {
		t.Errorf("expected reply to be last, got %+v", msgs[len(msgs)-1])
	}
	if c.State() != Idle {
		t.Errorf("expected idle after resolve, got %s", c.State())
	}
}

func TestResolveTurn_NilOutcomeOnlyRemoves(t *testing.T) {
	c := NewConversation("")
	before := c.Len()
	c.BeginTurn(Uploading)

	if err := c.ResolveTurn(Uploading, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != before {
		t.Errorf("expected transcript to revert to %d entries, got %d", before, c.Len())
	}
	if _, ok := c.Pending(); ok {
		t.Error("expected no pending placeholder")
	}
}

func TestResolveTurn_Errors(t *testing.T) {
	c := NewConversation("")

	if err := c.ResolveTurn(Typing, nil); !errors.Is(err, ErrNoPendingTurn) {
		t.Errorf("expected ErrNoPendingTurn, got %v", err)
	}

	c.BeginTurn(Uploading)
	if err := c.ResolveTurn(Typing, nil); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("expected ErrKindMismatch, got %v", err)
	}
	if _, ok := c.Pending(); !ok {
		t.Error("mismatched resolve must leave the placeholder in place")
	}
}

func TestOnChange_FiresPerTransition(t *testing.T) {
	c := NewConversation("")
	calls := 0
	c.OnChange(func() { calls++ })

	c.Append(NewMessage(RoleUser, "a"))
	c.BeginTurn(Typing)
	c.BeginTurn(Typing) // rejected, no change
	reply := NewMessage(RoleAssistant, "b")
	_ = c.ResolveTurn(Typing, &reply)

	if calls != 3 {
		t.Errorf("expected 3 change notifications, got %d", calls)
	}
}

func TestBeginTurn_ConcurrentSingleFlight(t *testing.T) {
	c := NewConversation("")

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.BeginTurn(Typing, NewMessage(RoleUser, "race")) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
	if n := countPending(c.Messages()); n != 1 {
		t.Errorf("expected 1 placeholder, got %d", n)
	}
	if c.Len() != 2 {
		t.Errorf("expected greeting plus one user message, got %d", c.Len())
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || AwaitingResponse.String() != "awaiting_response" {
		t.Errorf("unexpected state names: %s, %s", Idle, AwaitingResponse)
	}
}

func TestStateText(t *testing.T) {
	for _, want := range []State{Idle, AwaitingResponse} {
		b, err := want.MarshalText()
		if err != nil {
			t.Fatalf("marshal %s: %v", want, err)
		}
		var got State
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}

	var s State
	if err := s.UnmarshalText([]byte("sleeping")); err == nil {
		t.Error("expected error for unknown state")
	}
}
