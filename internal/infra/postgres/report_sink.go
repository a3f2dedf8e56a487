package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-session-service/internal/app"
)

// ReportSink writes finished session reports into the report_* tables in one transaction.
type ReportSink struct {
	pool *pgxpool.Pool
}

func NewReportSink(pool *pgxpool.Pool) *ReportSink {
	return &ReportSink{pool: pool}
}

func (s *ReportSink) SaveFullReport(ctx context.Context, summary app.SessionSummary) (string, error) {
	reportID := uuid.NewString()
	wrong, err := json.Marshal(summary.WrongCounts)
	if err != nil {
		return "", fmt.Errorf("marshal wrong counts: %w", err)
	}

	err = s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO report_sessions (id, context_id, quiz_name, total_questions, started_at, ended_at, completion_rate, avg_accuracy, wrong_counts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			reportID, summary.ContextID, summary.QuizName, summary.TotalQuestions,
			nullTime(summary.StartedAt), summary.EndedAt,
			summary.Stats.CompletionRate, summary.Stats.AvgAccuracy, wrong)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		batch := &pgx.Batch{}
		for _, p := range summary.Players {
			batch.Queue(`
INSERT INTO report_players (report_id, user_id, display_name, rank, score, correct, incorrect, unattempted, joined_at, completed_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				reportID, p.UserID, p.DisplayName, p.Rank, p.Score, p.Correct, p.Incorrect, p.Unattempted,
				nullTime(p.JoinedAt), nullTime(p.CompletedAt), p.Duration.Milliseconds())
			for i, a := range p.Answers {
				batch.Queue(`
INSERT INTO report_answers (report_id, user_id, seq, question_index, question_text, chosen_text, correct, elapsed_ms, points)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					reportID, p.UserID, i, a.QuestionIndex, a.QuestionText, a.ChosenText, a.Correct, a.Elapsed.Milliseconds(), a.Points)
			}
		}
		for i, u := range summary.Usage {
			effect := ""
			if u.Effect != 0 {
				effect = u.Effect.String()
			}
			batch.Queue(`
INSERT INTO report_powerup_usage (report_id, seq, user_id, name, effect, used_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
				reportID, i, u.PlayerID, u.Name, effect, u.UsedAt)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert report row %d: %w", i, err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return "", fmt.Errorf("save report %s: %w", summary.ContextID, err)
	}
	return reportID, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
