package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/macha/internal/chat"
)

// Manager is the in-memory session registry. Sessions do not survive a
// restart.
type Manager struct {
	engine *Engine
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(engine *Engine, logger *slog.Logger) *Manager {
	return &Manager{
		engine:   engine,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Engine() *Engine { return m.engine }

// Create starts a session seeded with the greeting.
func (m *Manager) Create() *Session {
	s := newSession(m.engine)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.logger.Debug("session created", "session_id", s.id)
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.engine.observer.SessionClosed(id)
	}
	return ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than maxIdle. Sessions with a turn
// in flight are kept.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.engine.now().Add(-maxIdle)
	var closed []string
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.conv.State() == chat.AwaitingResponse {
			continue
		}
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			closed = append(closed, id)
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, id := range closed {
		m.engine.observer.SessionClosed(id)
	}
	if len(closed) > 0 {
		m.logger.Info("swept idle sessions", "removed", len(closed), "remaining", remaining)
	}
	return len(closed)
}
