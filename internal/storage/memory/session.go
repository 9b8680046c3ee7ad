package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

type InMemorySessionManager struct {
	mu       sync.Mutex
	sessions map[string]models.RefreshSession
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewSessionRepository(log *zap.SugaredLogger) *InMemorySessionManager {
	return &InMemorySessionManager{
		sessions: make(map[string]models.RefreshSession),
		log:      log,
		now:      time.Now,
	}
}

func (m *InMemorySessionManager) CreateSession(_ context.Context, session models.RefreshSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.Selector] = session
	m.log.Debugw("Session created", "selector", session.Selector, "userID", session.UserID, "expiresAt", session.ExpiresAt)

	return nil
}

// ConsumeSession removes the session before returning it; expired sessions are dropped.
func (m *InMemorySessionManager) ConsumeSession(_ context.Context, selector string) (*models.RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[selector]
	if !ok {
		m.log.Debugw("Session not found", "selector", selector)
		return nil, storage.ErrSessionNotFound
	}
	delete(m.sessions, selector)

	if m.now().After(session.ExpiresAt) {
		m.log.Debugw("Session expired", "selector", selector, "userID", session.UserID)
		return nil, storage.ErrSessionNotFound
	}

	return &session, nil
}

func (m *InMemorySessionManager) DeleteSession(_ context.Context, selector string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, selector)

	return nil
}

func (m *InMemorySessionManager) DeleteAllUserSessions(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for selector, session := range m.sessions {
		if session.UserID == userID {
			delete(m.sessions, selector)
		}
	}

	return nil
}

func (m *InMemorySessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
