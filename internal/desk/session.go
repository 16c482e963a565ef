package desk

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/matthewbaird/immo/internal/rental"
)

// Session holds the calendar an agent is working on over one connection.
// Fields below mu are shared with event notifications and must be read
// and written under it.
type Session struct {
	ID         string
	ContractID string
	Actor      string
	CreatedAt  time.Time

	conn *websocket.Conn

	mu           sync.Mutex
	contract     *rental.Contract
	months       []rental.MonthSelection
	page         int
	lastActiveAt time.Time
}

func newSession(contractID, actor string, conn *websocket.Conn) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		ContractID:   contractID,
		Actor:        actor,
		CreatedAt:    now,
		conn:         conn,
		lastActiveAt: now,
	}
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActiveAt = time.Now()
	s.mu.Unlock()
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActiveAt) > timeout
}

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
}

// NewManager creates a session manager with the given timeouts.
func NewManager(maxAge, idleTimeout time.Duration) *Manager {
	if maxAge <= 0 {
		maxAge = 8 * time.Hour
	}
	if idleTimeout <= 0 {
		idleTimeout = 15 * time.Minute
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
	}
}

// IdleTimeout is how long a connection may stay silent.
func (m *Manager) IdleTimeout() time.Duration { return m.idleTimeout }

func (m *Manager) create(contractID, actor string, conn *websocket.Conn) *Session {
	s := newSession(contractID, actor, conn)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID. Returns nil if not found or expired.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
		m.Remove(id)
		return nil
	}
	return s
}

// ForContract returns the live sessions open on a contract.
func (m *Manager) ForContract(contractID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.ContractID == contractID {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Cleanup removes all expired and idle sessions.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
			delete(m.sessions, id)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Cleanup()
		}
	}
}
