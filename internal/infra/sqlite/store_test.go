package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "trivia.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.Save(ctx, "room-1", []byte(`{"schema_version":2}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "room-1", []byte(`{"schema_version":2,"is_running":true}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := store.Save(ctx, "room-2", []byte(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(all) != 2 || string(all["room-1"]) != `{"schema_version":2,"is_running":true}` {
		t.Fatalf("unexpected snapshots %v", all)
	}

	if err := store.Delete(ctx, "room-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ = store.LoadAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one snapshot left, got %d", len(all))
	}
}

func TestSaveFullReport(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ended := time.Unix(1_700_000_100, 0).UTC()

	summary := app.SessionSummary{
		ContextID:      "room-1",
		QuizName:       "capitals",
		TotalQuestions: 2,
		StartedAt:      ended.Add(-time.Minute),
		EndedAt:        ended,
		Stats:          app.SessionStats{CompletionRate: 0.75, AvgAccuracy: 2.0 / 3.0},
		WrongCounts:    map[int]int{1: 1},
		Players: []app.PlayerSummary{
			{
				Rank: 1, UserID: "u1", DisplayName: "Alice", Score: 1000, Correct: 1, Incorrect: 1,
				Duration: 30 * time.Second,
				Answers: []domain.AnswerRecord{
					{QuestionIndex: 0, QuestionText: "Q1", ChosenText: "Yes", Correct: true, Elapsed: time.Second, Points: 1000},
					{QuestionIndex: 1, QuestionText: "Q2", ChosenText: domain.TimeoutChoice, Elapsed: 30 * time.Second},
				},
			},
			{Rank: 2, UserID: "u2", DisplayName: "Bob", Unattempted: 2},
		},
		Usage: []domain.PowerUpUsage{
			{PlayerID: "u1", Name: "Eraser", Effect: domain.EffectEraser, UsedAt: ended.Add(-30 * time.Second)},
			{PlayerID: "u1", Name: "Legacy"},
		},
	}

	reportID, err := store.SaveFullReport(ctx, summary)
	if err != nil {
		t.Fatalf("save report: %v", err)
	}
	if reportID == "" {
		t.Fatalf("expected report id")
	}

	var rate float64
	if err := store.sqlDB.QueryRowContext(ctx, `SELECT completion_rate FROM report_sessions WHERE id = ?`, reportID).Scan(&rate); err != nil {
		t.Fatalf("query session: %v", err)
	}
	if rate != 0.75 {
		t.Fatalf("unexpected completion rate %v", rate)
	}

	counts := map[string]int{}
	for _, table := range []string{"report_players", "report_answers", "report_powerup_usage"} {
		var n int
		if err := store.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE report_id = ?`, reportID).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		counts[table] = n
	}
	if counts["report_players"] != 2 || counts["report_answers"] != 2 || counts["report_powerup_usage"] != 2 {
		t.Fatalf("unexpected row counts %v", counts)
	}

	var effect string
	if err := store.sqlDB.QueryRowContext(ctx, `SELECT effect FROM report_powerup_usage WHERE report_id = ? AND seq = 0`, reportID).Scan(&effect); err != nil {
		t.Fatalf("query usage: %v", err)
	}
	if effect != "eraser" {
		t.Fatalf("unexpected effect tag %q", effect)
	}
}
