package memory

import (
	"errors"
	"testing"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	session := app.NewSession("room-1", sampleQuiz())
	if err := store.Create(session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(app.NewSession("room-1", sampleQuiz())); !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected duplicate rejected, got %v", err)
	}
	if got, ok := store.Get("room-1"); !ok || got != session {
		t.Fatalf("expected session present")
	}

	_ = store.Create(app.NewSession("room-0", sampleQuiz()))
	list := store.List()
	if len(list) != 2 || list[0].ContextID() != "room-0" {
		t.Fatalf("expected two sessions ordered by id, got %d", len(list))
	}

	if !store.Delete("room-1") {
		t.Fatalf("expected delete to report presence")
	}
	if store.Delete("room-1") {
		t.Fatalf("expected second delete to be a no-op")
	}
	if _, ok := store.Get("room-1"); ok {
		t.Fatalf("expected session removed")
	}
}
