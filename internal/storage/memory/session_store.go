package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// sessionStoreInMemory — хранилище сессий для одного процесса.
type sessionStoreInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Session
	now   func() time.Time
}

// NewSessionStore создаёт in-memory SessionStore.
func NewSessionStore() domain.SessionStore {
	return &sessionStoreInMemory{
		items: make(map[string]domain.Session),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *sessionStoreInMemory) Load(_ context.Context, sessionID string) (domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, domain.ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.items[sessionID]
	if !ok {
		return domain.NewSession(sessionID), nil
	}
	return session.Clone(), nil
}

// Update выполняет fn под блокировкой хранилища, поэтому read-modify-write атомарен.
func (s *sessionStoreInMemory) Update(_ context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, domain.ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.items[sessionID]
	if ok {
		session = session.Clone()
	} else {
		session = domain.NewSession(sessionID)
	}

	if err := fn(&session); err != nil {
		return domain.Session{}, err
	}
	session.ID = sessionID
	session.UpdatedAt = s.now()
	s.items[sessionID] = session.Clone()
	return session, nil
}

func (s *sessionStoreInMemory) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, strings.TrimSpace(sessionID))
	return nil
}

var _ domain.SessionStore = (*sessionStoreInMemory)(nil)
