package app

import (
	"context"

	"trivia-session-service/internal/domain"
)

// SessionRegistry is the authoritative mapping of context id to live session (in-memory, Redis-marked, etc).
type SessionRegistry interface {
	// Create registers s, failing with domain.ErrSessionExists when the context is taken.
	Create(s *Session) error
	Get(contextID string) (*Session, bool)
	// Delete removes the session and reports whether it was present.
	Delete(contextID string) bool
	List() []*Session
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, name string) (domain.Quiz, error)
}

// PowerUpCatalog lists the power-ups players can receive.
type PowerUpCatalog interface {
	PowerUps(ctx context.Context) ([]domain.PowerUp, error)
}

// SnapshotStore persists encoded session records keyed by context id.
type SnapshotStore interface {
	Save(ctx context.Context, contextID string, data []byte) error
	LoadAll(ctx context.Context) (map[string][]byte, error)
	Delete(ctx context.Context, contextID string) error
}

// ReportSink stores the final report of a session and returns its report id.
type ReportSink interface {
	SaveFullReport(ctx context.Context, summary SessionSummary) (string, error)
}
