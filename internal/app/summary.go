package app

import (
	"slices"
	"time"

	"trivia-session-service/internal/domain"
)

// SessionStats are the aggregate figures stored with a finished session.
type SessionStats struct {
	// CompletionRate is attempts over players times questions.
	CompletionRate float64 `json:"completion_rate"`
	// AvgAccuracy is correct answers over attempts.
	AvgAccuracy float64 `json:"avg_accuracy"`
}

// PlayerSummary is one ranked row of a finished session.
type PlayerSummary struct {
	Rank        int                   `json:"rank"`
	UserID      string                `json:"userId"`
	DisplayName string                `json:"displayName"`
	Score       int                   `json:"score"`
	Correct     int                   `json:"correct"`
	Incorrect   int                   `json:"incorrect"`
	Unattempted int                   `json:"unattempted"`
	JoinedAt    time.Time             `json:"joinedAt"`
	CompletedAt time.Time             `json:"completedAt"`
	Duration    time.Duration         `json:"duration"`
	Answers     []domain.AnswerRecord `json:"answers"`
}

// SessionSummary is the final report of a session handed to the report sink.
type SessionSummary struct {
	ContextID      string                `json:"contextId"`
	QuizName       string                `json:"quizName"`
	TotalQuestions int                   `json:"totalQuestions"`
	StartedAt      time.Time             `json:"startedAt"`
	EndedAt        time.Time             `json:"endedAt"`
	Players        []PlayerSummary       `json:"players"`
	Stats          SessionStats          `json:"stats"`
	WrongCounts    map[int]int           `json:"wrongCounts"`
	Usage          []domain.PowerUpUsage `json:"usage"`
}

// Finalize stops the session and computes its summary. It succeeds once.
func (s *Session) Finalize() (SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.endedAt.IsZero() {
		return SessionSummary{}, domain.ErrSessionNotFound
	}
	s.running = false
	s.powerPlayActive = false
	s.endedAt = s.now()

	total := len(s.quiz.Questions)
	summary := SessionSummary{
		ContextID:      s.contextID,
		QuizName:       s.quiz.Name,
		TotalQuestions: total,
		StartedAt:      s.startedAt,
		EndedAt:        s.endedAt,
		WrongCounts:    make(map[int]int, len(s.wrongCounts)),
		Usage:          slices.Clone(s.usage),
	}
	for k, v := range s.wrongCounts {
		summary.WrongCounts[k] = v
	}

	attempts, correct := 0, 0
	for i, p := range s.rankedLocked() {
		attempted := len(p.AnswerLog)
		attempts += attempted
		correct += p.Correct

		row := PlayerSummary{
			Rank:        i + 1,
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Correct:     p.Correct,
			Incorrect:   p.Incorrect,
			Unattempted: max(total-attempted, 0),
			JoinedAt:    p.JoinedAt,
			CompletedAt: p.CompletedAt,
			Answers:     slices.Clone(p.AnswerLog),
		}
		switch {
		case !p.CompletedAt.IsZero() && !p.JoinedAt.IsZero():
			row.Duration = p.CompletedAt.Sub(p.JoinedAt)
		case attempted > 0 && !p.JoinedAt.IsZero():
			row.Duration = s.endedAt.Sub(p.JoinedAt)
		}
		summary.Players = append(summary.Players, row)
	}

	summary.Stats = computeStats(len(summary.Players), total, attempts, correct)
	return summary, nil
}

func computeStats(players, questions, attempts, correct int) SessionStats {
	var stats SessionStats
	if possible := players * questions; possible > 0 {
		stats.CompletionRate = float64(attempts) / float64(possible)
	}
	if attempts > 0 {
		stats.AvgAccuracy = float64(correct) / float64(attempts)
	}
	return stats
}
