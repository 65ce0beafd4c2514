// session/session.go
package session

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wfunc/tugofwar/network"
)

const outboxSize = 64

var (
	ErrSessionClosed = errors.New("session closed")
	ErrOutboxFull    = errors.New("session outbox full")
)

// Session is one live client connection. Frames are queued on an outbox and
// written by WritePump, so Send never blocks on the network.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time

	limiter *rate.Limiter
	outbox  chan []byte
	closed  bool
	mutex   sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 3),
		outbox:     make(chan []byte, outboxSize),
	}
}

// SetCreateLimit replaces the room creation limiter.
func (s *Session) SetCreateLimit(perSecond float64, burst int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// AllowCreate consumes a room creation token.
func (s *Session) AllowCreate() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.limiter.Allow()
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) Send(env *network.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.outbox <- data:
		return nil
	default:
		return ErrOutboxFull
	}
}

// WritePump drains the outbox and pings every pingEvery until the session is
// closed or a write fails.
func (s *Session) WritePump(pingEvery time.Duration) error {
	var tick <-chan time.Time
	if pingEvery > 0 {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data, ok := <-s.outbox:
			if !ok {
				return nil
			}
			if err := s.Conn.Write(data); err != nil {
				return err
			}
		case <-tick:
			if err := s.Conn.Ping(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Close stops the write pump and closes the connection. Safe to call twice.
func (s *Session) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	close(s.outbox)
	s.mutex.Unlock()

	return s.Conn.Close()
}

// Manager indexes live sessions by id.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Sessions returns a snapshot of every live session.
func (m *Manager) Sessions() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
