package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRegistry.
// Notes:
//   - Live sessions stay in a local map; the engine state is in-process.
//   - Redis only carries liveness markers so operators and other instances can see which
//     contexts are hosted here. Snapshots go through SnapshotStore.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(session *app.Session) error {
	id := session.ContextID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return domain.ErrSessionExists
	}
	s.sessions[id] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(id), session.Info().QuizName, s.ttl).Err()
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
	_ = s.client.Del(context.Background(), s.key(contextID)).Err()
	return true
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*app.Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.sessions[id])
	}
	return out
}

// Refresh extends the liveness marker of every hosted session. Markers of sessions that
// vanished without a Delete (crash) simply expire.
func (s *SessionStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Expire(ctx, s.key(id), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) key(contextID string) string {
	return "trivia:session:" + contextID
}
