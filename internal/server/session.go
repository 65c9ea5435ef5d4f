// internal/server/session.go
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
	"lendflow/internal/wizard"
)

// Session binds one wizard machine to an id handed to the client.
type Session struct {
	ID        string
	Machine   *wizard.Machine
	CreatedAt time.Time
}

// SessionManager owns the in-memory session table. Sessions live for the
// duration of one application journey; abandoned and submitted sessions
// are pruned lazily.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	gateway wizard.Gateway
	log     logger.Logger
	policy  wizard.PersistPolicy
}

func NewSessionManager(gw wizard.Gateway, policy wizard.PersistPolicy, log logger.Logger) *SessionManager {
	return &SessionManager{
		sessions: map[string]*Session{},
		gateway:  gw,
		log:      log,
		policy:   policy,
	}
}

// Create opens a new wizard session on the given verification channel.
func (m *SessionManager) Create(channel wizard.Channel, destination string) *Session {
	session := &Session{
		ID:        uuid.New().String(),
		Machine:   wizard.NewMachine(m.gateway, m.log, m.policy, channel, destination),
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session
}

// Get returns the session or a not-found error.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("sessions", "session "+id+" not found")
	}
	return session, nil
}

// Remove drops a session from the table.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
