// Package ops fans turn events out to the operational channel: the log, the
// turn ledger, the event bus and the Slack alert channel. Every sink is
// optional.
package ops

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/macha/internal/hermes"
	"github.com/MikeSquared-Agency/macha/internal/session"
	"github.com/MikeSquared-Agency/macha/internal/slack"
	"github.com/MikeSquared-Agency/macha/internal/store"
)

const sinkTimeout = 10 * time.Second

// Ledger records finished turns. *store.Store satisfies it.
type Ledger interface {
	RecordTurn(ctx context.Context, r store.TurnRecord) (uuid.UUID, error)
}

// Publisher sends events to the bus. *hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Alerter posts failure alerts. *slack.Poster satisfies it.
type Alerter interface {
	PostAlert(ctx context.Context, a slack.Alert) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

type Reporter struct {
	ledger Ledger
	bus    Publisher
	alerts Alerter
	logger *slog.Logger

	mu      sync.Mutex
	threads map[string]*thread // keyed by session id, dropped on SessionClosed
	wg      sync.WaitGroup
}

// thread is the Slack thread of a session's first failure. ready closes once
// the top-level alert has been posted; ts stays empty if that post failed.
type thread struct {
	ts    string
	ready chan struct{}
}

// NewReporter builds a reporter. Pass nil for any sink that is not configured.
func NewReporter(ledger Ledger, bus Publisher, alerts Alerter, logger *slog.Logger) *Reporter {
	return &Reporter{
		ledger:  ledger,
		bus:     bus,
		alerts:  alerts,
		logger:  logger,
		threads: make(map[string]*thread),
	}
}

// TurnResolved logs the event and ships it to the sinks in the background.
func (r *Reporter) TurnResolved(ctx context.Context, ev session.TurnEvent) {
	attrs := []any{
		"session_id", ev.SessionID,
		"kind", string(ev.Kind),
		"topic", string(ev.Topic),
		"flow", ev.Flow,
		"outcome", string(ev.Outcome),
		"latency_ms", ev.Latency.Milliseconds(),
	}
	if ev.Err != nil {
		r.logger.Warn("turn failed", append(attrs, "error", ev.Err)...)
	} else {
		r.logger.Info("turn resolved", attrs...)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		defer cancel()
		r.ship(ctx, ev)
	}()
}

func (r *Reporter) ship(ctx context.Context, ev session.TurnEvent) {
	errText := ""
	if ev.Err != nil {
		errText = ev.Err.Error()
	}

	if r.ledger != nil {
		_, err := r.ledger.RecordTurn(ctx, store.TurnRecord{
			SessionID: ev.SessionID,
			UserID:    ev.UserID,
			Kind:      string(ev.Kind),
			Topic:     string(ev.Topic),
			Flow:      ev.Flow,
			Outcome:   string(ev.Outcome),
			LatencyMS: ev.Latency.Milliseconds(),
			Error:     errText,
			CreatedAt: ev.At,
		})
		if err != nil {
			r.logger.Error("failed to record turn", "session_id", ev.SessionID, "error", err)
		}
	}

	if r.bus != nil {
		msg := hermes.TurnResolved{
			SessionID: ev.SessionID,
			UserID:    ev.UserID,
			Kind:      string(ev.Kind),
			Topic:     string(ev.Topic),
			Flow:      ev.Flow,
			Outcome:   string(ev.Outcome),
			LatencyMS: ev.Latency.Milliseconds(),
			Error:     errText,
			At:        ev.At,
		}
		if err := r.bus.Publish(hermes.SubjectTurnResolved, msg); err != nil {
			r.logger.Warn("failed to publish turn", "error", err)
		}
		if ev.Outcome == session.OutcomeFailed {
			if err := r.bus.Publish(hermes.SubjectTurnFailed, msg); err != nil {
				r.logger.Warn("failed to publish turn failure", "error", err)
			}
		}
	}

	if r.alerts != nil && ev.Outcome == session.OutcomeFailed {
		r.alert(ctx, ev, errText)
	}
}

// alert posts the first failure of a session as a new message and threads
// the rest under it. The first caller reserves the thread; later failures
// wait for its timestamp.
func (r *Reporter) alert(ctx context.Context, ev session.TurnEvent, errText string) {
	r.mu.Lock()
	th, ok := r.threads[ev.SessionID]
	if !ok {
		th = &thread{ready: make(chan struct{})}
		r.threads[ev.SessionID] = th
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-th.ready:
		case <-ctx.Done():
			r.logger.Warn("gave up waiting for alert thread", "session_id", ev.SessionID, "error", ctx.Err())
			return
		}
		if th.ts == "" {
			r.alert(ctx, ev, errText)
			return
		}
		text := fmt.Sprintf("Failed again: %s (%s) after %s: %s", ev.Kind, ev.Topic, ev.Latency.Round(time.Millisecond), errText)
		if err := r.alerts.PostThread(ctx, th.ts, text); err != nil {
			r.logger.Warn("failed to thread alert", "session_id", ev.SessionID, "error", err)
		}
		return
	}

	ts, err := r.alerts.PostAlert(ctx, slack.Alert{
		SessionID: ev.SessionID,
		UserID:    ev.UserID,
		Kind:      string(ev.Kind),
		Topic:     string(ev.Topic),
		Flow:      ev.Flow,
		Error:     errText,
		Latency:   ev.Latency,
	})
	r.mu.Lock()
	if err != nil {
		if r.threads[ev.SessionID] == th {
			delete(r.threads, ev.SessionID)
		}
	} else {
		th.ts = ts
	}
	r.mu.Unlock()
	close(th.ready)

	if err != nil {
		r.logger.Warn("failed to post alert", "session_id", ev.SessionID, "error", err)
	}
}

// SessionClosed forgets the session's alert thread.
func (r *Reporter) SessionClosed(sessionID string) {
	r.mu.Lock()
	delete(r.threads, sessionID)
	r.mu.Unlock()
}

// NoticeRaised mirrors a user-facing notice onto the bus.
func (r *Reporter) NoticeRaised(ctx context.Context, sessionID string, n session.Notice) {
	r.logger.Debug("notice raised", "session_id", sessionID, "title", n.Title, "destructive", n.Destructive)
	if r.bus == nil {
		return
	}
	err := r.bus.Publish(hermes.SubjectNotice, hermes.NoticeRaised{
		SessionID:   sessionID,
		Title:       n.Title,
		Description: n.Description,
		Destructive: n.Destructive,
		At:          time.Now().UTC(),
	})
	if err != nil {
		r.logger.Warn("failed to publish notice", "error", err)
	}
}

// Wait blocks until background deliveries have finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
