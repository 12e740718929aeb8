package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/macha/internal/attachments"
	"github.com/MikeSquared-Agency/macha/internal/chat"
	"github.com/MikeSquared-Agency/macha/internal/flows"
	"github.com/MikeSquared-Agency/macha/internal/speech"
)

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID        string         `json:"id"`
	Topic     flows.Topic    `json:"topic"`
	State     chat.State     `json:"state"`
	Messages  []chat.Message `json:"messages"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TurnResult is what a caller sees once a turn has resolved.
type TurnResult struct {
	Outcome Outcome       `json:"outcome"`
	Reply   *chat.Message `json:"reply,omitempty"`
	Notice  *Notice       `json:"notice,omitempty"`
	Session Snapshot      `json:"session"`
}

type Session struct {
	id        string
	createdAt time.Time
	engine    *Engine
	conv      *chat.Conversation

	mu         sync.RWMutex
	topic      flows.Topic
	lastActive time.Time

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

func newSession(e *Engine) *Session {
	now := e.now()
	s := &Session{
		id:         uuid.NewString(),
		createdAt:  now,
		engine:     e,
		conv:       chat.NewConversation(e.greeting),
		topic:      e.defaultTopic,
		lastActive: now,
		subs:       make(map[int]chan Snapshot),
	}
	s.conv.OnChange(s.broadcast)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Topic() flows.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topic
}

// SetTopic changes the routing of the next turn. History is untouched and a
// turn already in flight keeps the topic it started with.
func (s *Session) SetTopic(t flows.Topic) error {
	if _, ok := flows.RouteFor(t); !ok {
		return fmt.Errorf("%w: %q", flows.ErrUnknownTopic, t)
	}
	s.mu.Lock()
	changed := s.topic != t
	s.topic = t
	s.mu.Unlock()
	s.touch()
	if changed {
		s.broadcast()
	}
	return nil
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:        s.id,
		Topic:     s.Topic(),
		State:     s.conv.State(),
		Messages:  s.conv.Messages(),
		CreatedAt: s.createdAt,
	}
}

// SendMessage posts text on the active topic and blocks until the turn has
// resolved. A failed flow call is not an error: the reply is FallbackReply
// and the result carries NoticeFlowFailed.
func (s *Session) SendMessage(ctx context.Context, id Identity, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if s.engine.requireSignIn && !id.SignedIn() {
		s.raise(ctx, NoticeSignIn)
		return nil, ErrSignInRequired
	}

	topic := s.Topic()
	route, _ := flows.RouteFor(topic)
	if !s.conv.BeginTurn(chat.Typing, chat.NewMessage(chat.RoleUser, text)) {
		return nil, ErrTurnInProgress
	}
	s.touch()

	start := time.Now()
	reply, err := s.ask(ctx, topic, text)

	ev := TurnEvent{
		SessionID: s.id,
		UserID:    id.UserID,
		Kind:      KindMessage,
		Topic:     topic,
		Flow:      route.Flow,
		Outcome:   OutcomeOK,
		Latency:   time.Since(start),
		At:        s.engine.now(),
	}
	res := &TurnResult{Outcome: OutcomeOK, Reply: &reply}
	if err != nil {
		s.engine.logger.Error("flow call failed",
			"session_id", s.id, "topic", string(topic), "flow", route.Flow, "error", err)
		ev.Outcome, ev.Err = OutcomeFailed, err
		res.Outcome = OutcomeFailed
		n := NoticeFlowFailed
		res.Notice = &n
		s.raise(ctx, n)
	}
	s.engine.observer.TurnResolved(context.WithoutCancel(ctx), ev)

	res.Session = s.Snapshot()
	return res, nil
}

// ask runs the flow call. The typing slot is resolved on every exit path,
// panics included, with the fallback reply unless an answer arrived.
func (s *Session) ask(ctx context.Context, topic flows.Topic, text string) (reply chat.Message, err error) {
	reply = chat.NewMessage(chat.RoleAssistant, FallbackReply)
	defer func() {
		reply.CreatedAt = s.engine.now()
		if rerr := s.conv.ResolveTurn(chat.Typing, &reply); rerr != nil {
			s.engine.logger.Error("resolve typing turn", "session_id", s.id, "error", rerr)
		}
	}()

	if s.engine.asker == nil {
		return reply, fmt.Errorf("no flow backend configured")
	}
	answer, err := s.engine.asker.Ask(ctx, topic, text)
	if err != nil {
		return reply, err
	}
	reply.Content = answer
	return reply, nil
}

// Upload describes one attached file.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// UploadImage stores an image and appends it to the transcript as a user
// message. The object is keyed by the caller's user id, or by the session
// id for anonymous callers. A storage failure leaves the transcript as it
// was before the upload and is reported through the result's notice.
func (s *Session) UploadImage(ctx context.Context, id Identity, up Upload) (*TurnResult, error) {
	if s.engine.requireSignIn && !id.SignedIn() {
		s.raise(ctx, NoticeUploadSignIn)
		return nil, ErrSignInRequired
	}
	if err := attachments.ValidateImage(up.ContentType); err != nil {
		s.raise(ctx, NoticeNotImage)
		return nil, err
	}
	if !s.engine.UploadsEnabled() {
		return nil, ErrUploadsDisabled
	}

	owner := id.UserID
	if owner == "" {
		owner = s.id
	}
	key, err := attachments.ObjectKey(owner, up.Filename, s.engine.now())
	if err != nil {
		return nil, err
	}

	if !s.conv.BeginTurn(chat.Uploading) {
		return nil, ErrTurnInProgress
	}
	s.touch()

	start := time.Now()
	msg, err := s.store(ctx, key, up)

	ev := TurnEvent{
		SessionID: s.id,
		UserID:    id.UserID,
		Kind:      KindUpload,
		Outcome:   OutcomeOK,
		Latency:   time.Since(start),
		At:        s.engine.now(),
	}
	res := &TurnResult{Outcome: OutcomeOK, Reply: msg}
	n := NoticeUploaded
	if err != nil {
		s.engine.logger.Error("image upload failed", "session_id", s.id, "key", key, "error", err)
		ev.Outcome, ev.Err = OutcomeFailed, err
		res.Outcome = OutcomeFailed
		n = NoticeUploadFailed
	}
	res.Notice = &n
	s.raise(ctx, n)
	s.engine.observer.TurnResolved(context.WithoutCancel(ctx), ev)

	res.Session = s.Snapshot()
	return res, nil
}

func (s *Session) store(ctx context.Context, key string, up Upload) (msg *chat.Message, err error) {
	defer func() {
		if rerr := s.conv.ResolveTurn(chat.Uploading, msg); rerr != nil {
			s.engine.logger.Error("resolve upload turn", "session_id", s.id, "error", rerr)
		}
	}()

	url, err := s.engine.store.Put(ctx, key, up.ContentType, up.Body, up.Size)
	if err != nil {
		return nil, err
	}
	m := chat.NewMessage(chat.RoleUser, "Uploaded: "+up.Filename)
	m.ImageURL = url
	return &m, nil
}

// Speak synthesizes a finalized transcript message.
func (s *Session) Speak(ctx context.Context, id Identity, messageID string, enc speech.Encoding) (string, error) {
	msg, ok := s.conv.Find(messageID)
	if !ok {
		return "", ErrMessageNotFound
	}
	s.touch()
	return s.engine.speak(ctx, s.id, id, msg.Content, enc)
}

// Subscribe returns a channel that receives a snapshot after every change.
// Slow readers only ever see the latest snapshot. Call cancel when done.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Session) broadcast() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Session) raise(ctx context.Context, n Notice) {
	s.engine.observer.NoticeRaised(context.WithoutCancel(ctx), s.id, n)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.engine.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}
