// Package sqlite provides a single-node SQLite store for session snapshots and final reports.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"trivia-session-service/internal/app"
)

// Store persists snapshots and reports in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

// Open opens a SQLite store at path and creates its tables.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Save(ctx context.Context, contextID string, data []byte) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (context_id, data, saved_at) VALUES (?, ?, ?)
ON CONFLICT (context_id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		contextID, data, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", contextID, err)
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT context_id, data FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out[id] = data
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, contextID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM snapshots WHERE context_id = ?`, contextID); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", contextID, err)
	}
	return nil
}

// SaveFullReport writes a finished session, its players, answers and power-up usage in one transaction.
func (s *Store) SaveFullReport(ctx context.Context, summary app.SessionSummary) (string, error) {
	reportID := uuid.NewString()
	wrong, err := json.Marshal(summary.WrongCounts)
	if err != nil {
		return "", fmt.Errorf("marshal wrong counts: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin report tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO report_sessions (id, context_id, quiz_name, total_questions, started_at, ended_at, completion_rate, avg_accuracy, wrong_counts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reportID, summary.ContextID, summary.QuizName, summary.TotalQuestions,
		toMillis(summary.StartedAt), toMillis(summary.EndedAt),
		summary.Stats.CompletionRate, summary.Stats.AvgAccuracy, string(wrong)); err != nil {
		return "", fmt.Errorf("insert report session: %w", err)
	}

	for _, p := range summary.Players {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO report_players (report_id, user_id, display_name, rank, score, correct, incorrect, unattempted, joined_at, completed_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reportID, p.UserID, p.DisplayName, p.Rank, p.Score, p.Correct, p.Incorrect, p.Unattempted,
			toMillis(p.JoinedAt), toMillis(p.CompletedAt), p.Duration.Milliseconds()); err != nil {
			return "", fmt.Errorf("insert report player %s: %w", p.UserID, err)
		}
		for i, a := range p.Answers {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO report_answers (report_id, user_id, seq, question_index, question_text, chosen_text, correct, elapsed_ms, points)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				reportID, p.UserID, i, a.QuestionIndex, a.QuestionText, a.ChosenText, a.Correct, a.Elapsed.Milliseconds(), a.Points); err != nil {
				return "", fmt.Errorf("insert report answer %s/%d: %w", p.UserID, i, err)
			}
		}
	}

	for i, u := range summary.Usage {
		effect := ""
		if u.Effect != 0 {
			effect = u.Effect.String()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO report_powerup_usage (report_id, seq, user_id, name, effect, used_at)
VALUES (?, ?, ?, ?, ?, ?)`,
			reportID, i, u.PlayerID, u.Name, effect, toMillis(u.UsedAt)); err != nil {
			return "", fmt.Errorf("insert powerup usage %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit report: %w", err)
	}
	return reportID, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    context_id TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    saved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS report_sessions (
    id TEXT PRIMARY KEY,
    context_id TEXT NOT NULL,
    quiz_name TEXT NOT NULL,
    total_questions INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at INTEGER NOT NULL,
    completion_rate REAL NOT NULL,
    avg_accuracy REAL NOT NULL,
    wrong_counts TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_report_sessions_context ON report_sessions(context_id);

CREATE TABLE IF NOT EXISTS report_players (
    report_id TEXT NOT NULL REFERENCES report_sessions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    rank INTEGER NOT NULL,
    score INTEGER NOT NULL,
    correct INTEGER NOT NULL,
    incorrect INTEGER NOT NULL,
    unattempted INTEGER NOT NULL,
    joined_at INTEGER NOT NULL,
    completed_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    PRIMARY KEY (report_id, user_id)
);

CREATE TABLE IF NOT EXISTS report_answers (
    report_id TEXT NOT NULL REFERENCES report_sessions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    question_index INTEGER NOT NULL,
    question_text TEXT NOT NULL,
    chosen_text TEXT NOT NULL,
    correct INTEGER NOT NULL,
    elapsed_ms INTEGER NOT NULL,
    points INTEGER NOT NULL,
    PRIMARY KEY (report_id, user_id, seq)
);

CREATE TABLE IF NOT EXISTS report_powerup_usage (
    report_id TEXT NOT NULL REFERENCES report_sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    effect TEXT NOT NULL DEFAULT '',
    used_at INTEGER NOT NULL,
    PRIMARY KEY (report_id, seq)
);
`
