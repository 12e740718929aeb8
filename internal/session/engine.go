// Package session runs the turn lifecycle of each conversation: it gates
// input, opens the pending slot, calls out, and resolves the slot with
// exactly one terminal message.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/macha/internal/attachments"
	"github.com/MikeSquared-Agency/macha/internal/flows"
	"github.com/MikeSquared-Agency/macha/internal/speech"
)

// FallbackReply replaces the answer of any turn whose flow call failed.
const FallbackReply = "Macha, ennala ippo connect panna mudila. Network issue polirukku. Konjam neram kalichi try pannu da."

var (
	ErrEmptyInput      = errors.New("message is empty")
	ErrTurnInProgress  = errors.New("a turn is already in progress")
	ErrSignInRequired  = errors.New("sign in required")
	ErrNotFound        = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUploadsDisabled = errors.New("attachment storage is not configured")
	ErrSpeechDisabled  = errors.New("speech is not configured")
)

// Notice is a short toast shown next to the transcript.
type Notice struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Destructive bool   `json:"destructive"`
}

var (
	NoticeFlowFailed   = Notice{Title: "Oh no! Something went wrong.", Description: "There was a problem with the request to the AI.", Destructive: true}
	NoticeSignIn       = Notice{Title: "Login Pannu Macha!", Description: "Message anupa munnadi, login pannu da.", Destructive: true}
	NoticeUploadSignIn = Notice{Title: "Macha, first login pannu!", Destructive: true}
	NoticeNotImage     = Notice{Title: "Dei, image mattum anupu da!", Destructive: true}
	NoticeUploaded     = Notice{Title: "Semma!", Description: "Image anupiyachu, macha!"}
	NoticeUploadFailed = Notice{Title: "Aiyayo, image pogala!", Description: "Upload fail aagiduchu. Again try pannu.", Destructive: true}
)

// Identity is the caller's sign-in state. An empty UserID is anonymous.
type Identity struct {
	UserID string
}

func (i Identity) SignedIn() bool { return i.UserID != "" }

type TurnKind string

const (
	KindMessage TurnKind = "message"
	KindUpload  TurnKind = "upload"
	KindSpeech  TurnKind = "speech"
)

type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// TurnEvent describes one finished turn for the operational channel.
type TurnEvent struct {
	SessionID string
	UserID    string
	Kind      TurnKind
	Topic     flows.Topic
	Flow      string
	Outcome   Outcome
	Latency   time.Duration
	Err       error
	At        time.Time
}

// Observer receives operational events. Calls happen on the request path,
// so implementations should not block.
type Observer interface {
	TurnResolved(ctx context.Context, ev TurnEvent)
	NoticeRaised(ctx context.Context, sessionID string, n Notice)
	// SessionClosed fires once when the manager drops a session.
	SessionClosed(sessionID string)
}

type nopObserver struct{}

func (nopObserver) TurnResolved(context.Context, TurnEvent)      {}
func (nopObserver) NoticeRaised(context.Context, string, Notice) {}
func (nopObserver) SessionClosed(string)                         {}

// Asker answers a query on a topic. *flows.Router satisfies it.
type Asker interface {
	Ask(ctx context.Context, topic flows.Topic, text string) (string, error)
}

// Synthesizer speaks text. *speech.Synthesizer satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, enc speech.Encoding) (string, error)
}

// Deps are the collaborators shared by every session. Store and Speech may
// be nil, which disables uploads or speech.
type Deps struct {
	Asker    Asker
	Store    attachments.Store
	Speech   Synthesizer
	Observer Observer
}

type Options struct {
	Greeting      string
	RequireSignIn bool
	DefaultTopic  flows.Topic
}

// Engine holds the shared collaborators and policy.
type Engine struct {
	asker         Asker
	store         attachments.Store
	speech        Synthesizer
	observer      Observer
	greeting      string
	requireSignIn bool
	defaultTopic  flows.Topic
	logger        *slog.Logger
	now           func() time.Time
}

func NewEngine(deps Deps, opts Options, logger *slog.Logger) *Engine {
	obs := deps.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	topic := opts.DefaultTopic
	if _, ok := flows.RouteFor(topic); !ok {
		topic = flows.TopicTech
	}
	return &Engine{
		asker:         deps.Asker,
		store:         deps.Store,
		speech:        deps.Speech,
		observer:      obs,
		greeting:      opts.Greeting,
		requireSignIn: opts.RequireSignIn,
		defaultTopic:  topic,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) RequireSignIn() bool  { return e.requireSignIn }
func (e *Engine) UploadsEnabled() bool { return e.store != nil }
func (e *Engine) SpeechEnabled() bool  { return e.speech != nil }

// Speak synthesizes free text outside any session.
func (e *Engine) Speak(ctx context.Context, text string, enc speech.Encoding) (string, error) {
	return e.speak(ctx, "", Identity{}, text, enc)
}

func (e *Engine) speak(ctx context.Context, sessionID string, id Identity, text string, enc speech.Encoding) (string, error) {
	if e.speech == nil {
		return "", ErrSpeechDisabled
	}
	start := time.Now()
	uri, err := e.speech.Synthesize(ctx, text, enc)
	if errors.Is(err, speech.ErrEmptyText) || errors.Is(err, speech.ErrMissingCredential) {
		// Rejected before any remote work.
		return "", err
	}

	ev := TurnEvent{SessionID: sessionID, UserID: id.UserID, Kind: KindSpeech, Outcome: OutcomeOK, Latency: time.Since(start), At: e.now()}
	if err != nil {
		ev.Outcome, ev.Err = OutcomeFailed, err
	}
	e.observer.TurnResolved(context.WithoutCancel(ctx), ev)
	return uri, err
}
