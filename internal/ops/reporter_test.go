package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/macha/internal/flows"
	"github.com/MikeSquared-Agency/macha/internal/hermes"
	"github.com/MikeSquared-Agency/macha/internal/session"
	"github.com/MikeSquared-Agency/macha/internal/slack"
	"github.com/MikeSquared-Agency/macha/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLedger struct {
	mu      sync.Mutex
	records []store.TurnRecord
}

func (f *fakeLedger) RecordTurn(_ context.Context, r store.TurnRecord) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return uuid.New(), nil
}

type published struct {
	subject string
	data    any
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakeBus) Publish(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func (f *fakeBus) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.msgs {
		out = append(out, m.subject)
	}
	return out
}

type fakeAlerter struct {
	mu      sync.Mutex
	alerts  []slack.Alert
	threads []string
	err     error
	gate    chan struct{} // when set, PostAlert blocks until it closes
}

func (f *fakeAlerter) PostAlert(_ context.Context, a slack.Alert) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.alerts = append(f.alerts, a)
	return "ts-1", nil
}

func (f *fakeAlerter) PostThread(_ context.Context, ts, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads = append(f.threads, ts+"|"+text)
	return nil
}

func (r *Reporter) threadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}

type failingAsker struct{}

func (failingAsker) Ask(context.Context, flows.Topic, string) (string, error) {
	return "", errors.New("flow server unavailable")
}

func okEvent() session.TurnEvent {
	return session.TurnEvent{
		SessionID: "s1",
		Kind:      session.KindMessage,
		Topic:     "tech",
		Flow:      "provideTechGuidanceFlow",
		Outcome:   session.OutcomeOK,
		Latency:   250 * time.Millisecond,
		At:        time.Now().UTC(),
	}
}

func failedEvent() session.TurnEvent {
	ev := okEvent()
	ev.Outcome = session.OutcomeFailed
	ev.Err = errors.New("invoke provideTechGuidanceFlow: 503")
	return ev
}

func TestTurnResolved_Success(t *testing.T) {
	ledger, bus, alerts := &fakeLedger{}, &fakeBus{}, &fakeAlerter{}
	r := NewReporter(ledger, bus, alerts, discardLogger())

	r.TurnResolved(context.Background(), okEvent())
	r.Wait()

	if len(ledger.records) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(ledger.records))
	}
	rec := ledger.records[0]
	if rec.SessionID != "s1" || rec.Outcome != "ok" || rec.LatencyMS != 250 || rec.Error != "" {
		t.Errorf("unexpected record %+v", rec)
	}
	if got := bus.subjects(); len(got) != 1 || got[0] != hermes.SubjectTurnResolved {
		t.Errorf("unexpected subjects %v", got)
	}
	if len(alerts.alerts) != 0 {
		t.Error("expected no alert for a successful turn")
	}
}

func TestTurnResolved_FailureAlertsAndThreads(t *testing.T) {
	ledger, bus, alerts := &fakeLedger{}, &fakeBus{}, &fakeAlerter{}
	r := NewReporter(ledger, bus, alerts, discardLogger())

	r.TurnResolved(context.Background(), failedEvent())
	r.Wait()
	r.TurnResolved(context.Background(), failedEvent())
	r.Wait()

	if got := bus.subjects(); len(got) != 4 || got[1] != hermes.SubjectTurnFailed {
		t.Errorf("unexpected subjects %v", got)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("expected one top-level alert, got %d", len(alerts.alerts))
	}
	if alerts.alerts[0].Error != "invoke provideTechGuidanceFlow: 503" {
		t.Errorf("unexpected alert %+v", alerts.alerts[0])
	}
	if len(alerts.threads) != 1 || !strings.HasPrefix(alerts.threads[0], "ts-1|Failed again") {
		t.Errorf("expected threaded follow-up, got %v", alerts.threads)
	}
	if ledger.records[0].Error == "" {
		t.Error("expected error detail in ledger")
	}
}

func TestTurnResolved_AlertFailureDoesNotThread(t *testing.T) {
	alerts := &fakeAlerter{err: errors.New("slack down")}
	r := NewReporter(nil, nil, alerts, discardLogger())

	r.TurnResolved(context.Background(), failedEvent())
	r.Wait()
	if n := r.threadCount(); n != 0 {
		t.Errorf("expected no thread recorded, got %d", n)
	}
}

func TestTurnResolved_ConcurrentFailuresShareOneThread(t *testing.T) {
	alerts := &fakeAlerter{gate: make(chan struct{})}
	r := NewReporter(nil, nil, alerts, discardLogger())

	for i := 0; i < 5; i++ {
		r.TurnResolved(context.Background(), failedEvent())
	}
	time.Sleep(20 * time.Millisecond)
	close(alerts.gate)
	r.Wait()

	if len(alerts.alerts) != 1 {
		t.Fatalf("expected one top-level alert, got %d", len(alerts.alerts))
	}
	if len(alerts.threads) != 4 {
		t.Errorf("expected 4 threaded follow-ups, got %d", len(alerts.threads))
	}
}

func TestTurnResolved_RetriesAlertAfterFailedPost(t *testing.T) {
	alerts := &fakeAlerter{err: errors.New("slack down")}
	r := NewReporter(nil, nil, alerts, discardLogger())
	r.TurnResolved(context.Background(), failedEvent())
	r.Wait()

	alerts.mu.Lock()
	alerts.err = nil
	alerts.mu.Unlock()
	r.TurnResolved(context.Background(), failedEvent())
	r.Wait()

	if len(alerts.alerts) != 1 || len(alerts.threads) != 0 {
		t.Errorf("expected a fresh top-level alert, got %d alerts and %d threads", len(alerts.alerts), len(alerts.threads))
	}
}

func TestSessionClosed_ForgetsThread(t *testing.T) {
	alerts := &fakeAlerter{}
	r := NewReporter(nil, nil, alerts, discardLogger())

	for i := 0; i < 100; i++ {
		ev := failedEvent()
		ev.SessionID = fmt.Sprintf("s%d", i)
		r.TurnResolved(context.Background(), ev)
	}
	r.Wait()
	if n := r.threadCount(); n != 100 {
		t.Fatalf("expected 100 threads, got %d", n)
	}
	for i := 0; i < 100; i++ {
		r.SessionClosed(fmt.Sprintf("s%d", i))
	}
	if n := r.threadCount(); n != 0 {
		t.Errorf("expected threads released, %d left", n)
	}

	// A closed session that fails again starts a new thread.
	r.TurnResolved(context.Background(), failedEvent())
	r.Wait()
	if len(alerts.alerts) != 101 {
		t.Errorf("expected a new top-level alert, got %d", len(alerts.alerts))
	}
}

func TestSweptSessionReleasesThread(t *testing.T) {
	alerts := &fakeAlerter{}
	r := NewReporter(nil, nil, alerts, discardLogger())
	engine := session.NewEngine(session.Deps{Asker: failingAsker{}, Observer: r}, session.Options{}, discardLogger())
	m := session.NewManager(engine, discardLogger())

	swept := m.Create()
	deleted := m.Create()
	for _, s := range []*session.Session{swept, deleted} {
		res, err := s.SendMessage(context.Background(), session.Identity{}, "laptop slow da")
		if err != nil || res.Outcome != session.OutcomeFailed {
			t.Fatalf("expected a failed turn, got %+v, %v", res, err)
		}
	}
	r.Wait()
	if n := r.threadCount(); n != 2 {
		t.Fatalf("expected 2 threads, got %d", n)
	}

	if !m.Delete(deleted.ID()) {
		t.Fatal("expected delete to succeed")
	}
	if n := r.threadCount(); n != 1 {
		t.Errorf("expected deleted session's thread gone, %d left", n)
	}
	if n := m.Sweep(-time.Minute); n != 1 {
		t.Fatalf("expected 1 session swept, got %d", n)
	}
	if n := r.threadCount(); n != 0 {
		t.Errorf("expected swept session's thread gone, %d left", n)
	}
}

func TestTurnResolved_NoSinks(t *testing.T) {
	r := NewReporter(nil, nil, nil, discardLogger())
	r.TurnResolved(context.Background(), failedEvent())
	r.NoticeRaised(context.Background(), "s1", session.NoticeFlowFailed)
	r.Wait()
}

func TestNoticeRaised(t *testing.T) {
	bus := &fakeBus{}
	r := NewReporter(nil, bus, nil, discardLogger())

	r.NoticeRaised(context.Background(), "s1", session.NoticeUploaded)

	if len(bus.msgs) != 1 || bus.msgs[0].subject != hermes.SubjectNotice {
		t.Fatalf("unexpected messages %+v", bus.msgs)
	}
	n := bus.msgs[0].data.(hermes.NoticeRaised)
	if n.SessionID != "s1" || n.Title != "Semma!" || n.Destructive {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestReporterIsObserver(t *testing.T) {
	var _ session.Observer = NewReporter(nil, nil, nil, discardLogger())
}
