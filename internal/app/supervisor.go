package app

import (
	"context"
	"log/slog"
	"time"

	"trivia-session-service/internal/domain"
)

// Sweep resolves every overdue player as a timeout and closes an expired power play window.
// A zero question start time means the question was already resolved, so a concurrent manual
// submission and a sweep can never both resolve the same question.
func (s *Session) Sweep(now time.Time) (timeouts []Resolution, powerPlayEnded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, false
	}
	if s.powerPlayActive && !now.Before(s.powerPlayUntil) {
		s.powerPlayActive = false
		s.powerPlayUntil = time.Time{}
		powerPlayEnded = true
	}

	for _, id := range s.joinOrder {
		p, ok := s.players[id]
		if !ok || p.Completed || p.QuestionStartedAt.IsZero() || p.HasActive(domain.EffectTimeFreeze) {
			continue
		}
		qIdx, ok := p.CurrentQuestion()
		if !ok || qIdx >= len(s.quiz.Questions) {
			continue
		}
		q := s.quiz.Questions[qIdx]
		if now.After(p.QuestionStartedAt.Add(q.Limit() + s.rules.TimeoutGrace)) {
			timeouts = append(timeouts, s.timeoutLocked(p, qIdx, q, now))
		}
	}
	return timeouts, powerPlayEnded
}

// Supervisor periodically sweeps every live session for overdue players.
type Supervisor struct {
	service  *GameService
	interval time.Duration
	logger   *slog.Logger
}

func NewSupervisor(service *GameService, interval time.Duration, logger *slog.Logger) *Supervisor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{service: service, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("timeout supervisor started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("timeout supervisor stopped")
			return
		case <-ticker.C:
			if n := s.service.Sweep(ctx, s.service.now()); n > 0 {
				s.logger.Debug("timeouts resolved", "count", n)
			}
		}
	}
}
