package flows

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	flow  string
	input map[string]any
}

type fakeInvoker struct {
	calls []call
	out   map[string]any
	err   error
}

func (f *fakeInvoker) Invoke(_ context.Context, flow string, input map[string]any) (map[string]any, error) {
	f.calls = append(f.calls, call{flow: flow, input: input})
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestAsk_DispatchTable(t *testing.T) {
	tests := []struct {
		topic     Topic
		flow      string
		output    string
		wantInput map[string]any
	}{
		{TopicTech, FlowTechGuidance, "response", map[string]any{"query": "goroutine leak?"}},
		{TopicCareer, FlowPersonalSupport, "advice", map[string]any{"topic": "career", "userBackground": "goroutine leak?"}},
		{TopicCollege, FlowPersonalSupport, "advice", map[string]any{"topic": "college", "userBackground": "goroutine leak?"}},
		{TopicPersonalGrowth, FlowPersonalSupport, "advice", map[string]any{"topic": "personal growth", "userBackground": "goroutine leak?"}},
		{TopicExplain, FlowExplainConcept, "explanation", map[string]any{"query": "goroutine leak?"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic), func(t *testing.T) {
			inv := &fakeInvoker{out: map[string]any{tt.output: "answer for " + string(tt.topic)}}
			r := NewRouter(inv, discardLogger())

			got, err := r.Ask(context.Background(), tt.topic, "goroutine leak?")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != "answer for "+string(tt.topic) {
				t.Errorf("unexpected answer %q", got)
			}
			if len(inv.calls) != 1 {
				t.Fatalf("expected 1 invocation, got %d", len(inv.calls))
			}
			c := inv.calls[0]
			if c.flow != tt.flow {
				t.Errorf("expected flow %s, got %s", tt.flow, c.flow)
			}
			if len(c.input) != len(tt.wantInput) {
				t.Errorf("unexpected input %v", c.input)
			}
			for k, v := range tt.wantInput {
				if c.input[k] != v {
					t.Errorf("input[%q] = %v, want %v", k, c.input[k], v)
				}
			}
		})
	}
}

func TestAsk_EmptyQueryNeverInvokes(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		inv := &fakeInvoker{out: map[string]any{"response": "x"}}
		r := NewRouter(inv, discardLogger())

		_, err := r.Ask(context.Background(), TopicTech, text)
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Ask(%q): expected ErrEmptyQuery, got %v", text, err)
		}
		if len(inv.calls) != 0 {
			t.Errorf("Ask(%q): expected no invocation, got %d", text, len(inv.calls))
		}
	}
}

func TestAsk_UnknownTopic(t *testing.T) {
	inv := &fakeInvoker{}
	r := NewRouter(inv, discardLogger())

	_, err := r.Ask(context.Background(), Topic("astrology"), "will I pass?")
	if !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
	if len(inv.calls) != 0 {
		t.Error("unknown topic must not reach the invoker")
	}
}

func TestAsk_RemoteFailureWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewRouter(&fakeInvoker{err: boom}, discardLogger())

	_, err := r.Ask(context.Background(), TopicExplain, "closures")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped remote error, got %v", err)
	}
}

func TestAsk_MalformedOutputs(t *testing.T) {
	tests := []struct {
		name string
		out  map[string]any
	}{
		{"missing field", map[string]any{"advice": "wrong field"}},
		{"non-string field", map[string]any{"response": 42.0}},
		{"blank field", map[string]any{"response": "  "}},
		{"nil output", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(&fakeInvoker{out: tt.out}, discardLogger())
			_, err := r.Ask(context.Background(), TopicTech, "hi")
			if !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}

func TestParseTopic(t *testing.T) {
	for _, topic := range Topics {
		got, err := ParseTopic(string(topic))
		if err != nil || got != topic {
			t.Errorf("ParseTopic(%q) = %q, %v", topic, got, err)
		}
	}
	if got, err := ParseTopic("personal growth"); err != nil || got != TopicPersonalGrowth {
		t.Errorf("expected legacy spelling to parse, got %q, %v", got, err)
	}
	if _, err := ParseTopic("sports"); err == nil {
		t.Error("expected error for unknown topic")
	}
}

func TestRouteFor_EveryTopicRouted(t *testing.T) {
	for _, topic := range Topics {
		if _, ok := RouteFor(topic); !ok {
			t.Errorf("topic %q has no route", topic)
		}
	}
}
