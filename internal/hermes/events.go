package hermes

import "time"

const (
	// SubjectTurnResolved carries one TurnResolved per finished turn.
	SubjectTurnResolved = "macha.turn.resolved"
	// SubjectTurnFailed repeats failed turns for alerting consumers.
	SubjectTurnFailed = "macha.turn.failed"
	// SubjectNotice carries user-facing notices.
	SubjectNotice = "macha.notice"
	// SubjectRegistered announces a starting instance.
	SubjectRegistered = "macha.agent.registered"
)

// TurnResolved is the wire form of a finished turn.
type TurnResolved struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic,omitempty"`
	Flow      string    `json:"flow,omitempty"`
	Outcome   string    `json:"outcome"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// NoticeRaised mirrors a toast shown to the user.
type NoticeRaised struct {
	SessionID   string    `json:"session_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Destructive bool      `json:"destructive"`
	At          time.Time `json:"at"`
}
