package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/carecoord/pkg/domain"
)

// SessionStore implements ports.SessionStore using an in-memory map.
// Sessions live for the lifetime of the process.
type SessionStore struct {
	sessions map[string]*domain.Session
	mu       sync.RWMutex
}

// NewSessionStore creates a new in-memory session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
	}
}

// Record stores a copy of session, replacing any previous value
func (s *SessionStore) Record(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = copySession(session)
	return nil
}

// Fetch returns a copy of the stored session
func (s *SessionStore) Fetch(ctx context.Context, sessionID string) (*domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}

	return copySession(session), true, nil
}

// List returns all stored session ids in lexical order
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

// copySession copies the session and its result slice. Result payloads are
// shared; callers treat them as read-only.
func copySession(session *domain.Session) *domain.Session {
	sessionCopy := *session
	sessionCopy.Results = append([]domain.DispatchResult(nil), session.Results...)
	if sessionCopy.Results == nil {
		sessionCopy.Results = []domain.DispatchResult{}
	}
	return &sessionCopy
}
