package app_test

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
	"trivia-session-service/internal/infra/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPresenter struct {
	views       chan app.QuestionView
	resolutions chan app.Resolution
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{
		views:       make(chan app.QuestionView, 64),
		resolutions: make(chan app.Resolution, 64),
	}
}

func (p *recordingPresenter) PushQuestion(_ context.Context, view app.QuestionView) error {
	p.views <- view
	return nil
}

func (p *recordingPresenter) PushResolution(_ context.Context, res app.Resolution) error {
	p.resolutions <- res
	return nil
}

type recordingSink struct {
	mu        sync.Mutex
	summaries []app.SessionSummary
}

func (s *recordingSink) SaveFullReport(_ context.Context, summary app.SessionSummary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return "report-1", nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.summaries)
}

type harness struct {
	ctx       context.Context
	clock     *fakeClock
	registry  *memory.SessionStore
	quizzes   *memory.QuizRepository
	snapshots *memory.SnapshotStore
	presenter *recordingPresenter
	reports   *recordingSink
	service   *app.GameService
	rules     app.Rules
}

// testRules disables starter inventory and loot so tests control inventories through grants.
func testRules() app.Rules {
	return app.Rules{StarterInventory: -1, LootChance: -1, Glitch: 30 * time.Millisecond}
}

func newHarness(t *testing.T, quizzes ...domain.Quiz) *harness {
	t.Helper()
	byName := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		byName[q.Name] = q
	}
	h := &harness{
		ctx:       context.Background(),
		clock:     newFakeClock(),
		registry:  memory.NewSessionStore(),
		quizzes:   memory.NewQuizRepository(memory.NewStaticQuizLoader(byName), time.Minute),
		snapshots: memory.NewSnapshotStore(),
		presenter: newRecordingPresenter(),
		reports:   &recordingSink{},
		rules:     testRules(),
	}
	h.service = h.newService(h.registry)
	return h
}

func (h *harness) newService(registry app.SessionRegistry) *app.GameService {
	seed := int64(7)
	return app.NewGameService(registry, h.quizzes, memory.NewDefaultCatalog(), app.Options{
		Snapshots: h.snapshots,
		Reports:   h.reports,
		Presenter: h.presenter,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Rules:     h.rules,
		Clock:     h.clock.Now,
		Rand: func() *rand.Rand {
			seed++
			return rand.New(rand.NewSource(seed))
		},
	})
}

// setup creates, joins every player, starts and opens a board for each. It returns board tokens by player.
func (h *harness) setup(t *testing.T, contextID, quiz string, players ...string) map[string]string {
	t.Helper()
	if _, err := h.service.CreateSession(h.ctx, contextID, quiz); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, id := range players {
		if _, err := h.service.Join(h.ctx, contextID, id, displayName(id), ""); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	if err := h.service.Start(h.ctx, contextID); err != nil {
		t.Fatalf("start: %v", err)
	}
	boards := make(map[string]string, len(players))
	for _, id := range players {
		view, err := h.service.OpenBoard(h.ctx, contextID, id)
		if err != nil {
			t.Fatalf("open board %s: %v", id, err)
		}
		boards[id] = view.Board
	}
	return boards
}

func (h *harness) player(t *testing.T, contextID, playerID string) domain.Player {
	t.Helper()
	session, ok := h.registry.Get(contextID)
	if !ok {
		t.Fatalf("session %s not registered", contextID)
	}
	p, ok := session.Player(playerID)
	if !ok {
		t.Fatalf("player %s not in session", playerID)
	}
	return p
}

func (h *harness) view(t *testing.T, contextID, playerID string) app.QuestionView {
	t.Helper()
	view, err := h.service.CurrentQuestion(h.ctx, contextID, playerID)
	if err != nil {
		t.Fatalf("current question: %v", err)
	}
	return view
}

func displayName(id string) string {
	switch id {
	case "u1":
		return "Alice"
	case "u2":
		return "Bob"
	default:
		return id
	}
}

// displayOf finds the display position of an option by its text.
func displayOf(t *testing.T, view app.QuestionView, text string) int {
	t.Helper()
	for _, opt := range view.Options {
		if opt.Text == text {
			return opt.Display
		}
	}
	t.Fatalf("option %q not shown in %+v", text, view.Options)
	return -1
}

func capitalQuiz() domain.Quiz {
	return domain.Quiz{
		Name:      "capitals",
		CreatorID: "admin",
		Questions: []domain.Question{
			{
				Text:           "Capital of France?",
				Options:        []string{"Berlin", "Paris", "Rome", "Madrid"},
				CorrectIndices: []int{1},
				Explanation:    "Paris has been the capital since 987.",
			},
		},
	}
}

// twinQuiz has two identical two-option questions so every question order plays the same.
func twinQuiz() domain.Quiz {
	q := domain.Question{Text: "Is water wet?", Options: []string{"Yes", "No"}, CorrectIndices: []int{0}}
	return domain.Quiz{Name: "twins", CreatorID: "admin", Questions: []domain.Question{q, q}}
}

func reorderQuiz() domain.Quiz {
	return domain.Quiz{
		Name:      "sizes",
		CreatorID: "admin",
		Questions: []domain.Question{
			{
				Text:           "Largest to smallest",
				Options:        []string{"Earth", "Moon", "Sun"},
				CorrectIndices: []int{2, 0, 1},
				Kind:           domain.QuestionReorder,
			},
		},
	}
}

func primesQuiz() domain.Quiz {
	return domain.Quiz{
		Name:      "primes",
		CreatorID: "admin",
		Questions: []domain.Question{
			{
				Text:           "Pick the primes",
				Options:        []string{"2", "4", "5", "9"},
				CorrectIndices: []int{0, 2},
				MultiSelect:    true,
			},
		},
	}
}

func mixedQuiz() domain.Quiz {
	return domain.Quiz{
		Name:      "mixed",
		CreatorID: "admin",
		Questions: append(append(capitalQuiz().Questions, primesQuiz().Questions...), reorderQuiz().Questions...),
	}
}
