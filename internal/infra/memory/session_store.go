package memory

import (
	"sort"
	"sync"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRegistry.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := session.ContextID()
	if _, ok := s.sessions[id]; ok {
		return domain.ErrSessionExists
	}
	s.sessions[id] = session
	return nil
}

func (s *SessionStore) Get(contextID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[contextID]
	return session, ok
}

func (s *SessionStore) Delete(contextID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[contextID]; !ok {
		return false
	}
	delete(s.sessions, contextID)
	return true
}

// List returns live sessions ordered by context id.
func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ContextID() < out[j].ContextID() })
	return out
}
