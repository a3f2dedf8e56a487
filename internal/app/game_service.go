package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trivia-session-service/internal/domain"
)

const tracerName = "trivia-session-service/internal/app"

// Options carries the optional collaborators of a GameService.
type Options struct {
	Snapshots SnapshotStore
	Reports   ReportSink
	Presenter Presenter
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Rules     Rules
	// Clock and Rand are overridden by tests for deterministic sessions.
	Clock    func() time.Time
	Rand     func() *rand.Rand
	NewToken func() string
}

// GameService contains the live game use cases.
type GameService struct {
	sessions  SessionRegistry
	quizzes   QuizRepository
	catalog   PowerUpCatalog
	snapshots SnapshotStore
	reports   ReportSink
	presenter Presenter
	logger    *slog.Logger
	tracer    trace.Tracer
	rules     Rules
	now       func() time.Time
	newRand   func() *rand.Rand
	newToken  func() string

	// snapMu orders snapshot writes against the snapshot delete in Finish.
	snapMu sync.Mutex
}

func NewGameService(sessions SessionRegistry, quizzes QuizRepository, catalog PowerUpCatalog, opts Options) *GameService {
	s := &GameService{
		sessions:  sessions,
		quizzes:   quizzes,
		catalog:   catalog,
		snapshots: opts.Snapshots,
		reports:   opts.Reports,
		presenter: opts.Presenter,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
		rules:     opts.Rules.withDefaults(),
		now:       opts.Clock,
		newRand:   opts.Rand,
		newToken:  opts.NewToken,
	}
	if s.presenter == nil {
		s.presenter = NopPresenter{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newToken == nil {
		s.newToken = uuid.NewString
	}
	return s
}

// SessionOptions returns the options every session built by this service shares, including restored ones.
func (s *GameService) SessionOptions(catalog []domain.PowerUp) []SessionOption {
	opts := []SessionOption{WithClock(s.now), WithRules(s.rules), WithCatalog(catalog)}
	if s.newRand != nil {
		opts = append(opts, WithRand(s.newRand()))
	}
	return opts
}

// CreateSession binds a new session for quizName to contextID.
func (s *GameService) CreateSession(ctx context.Context, contextID, quizName string) (info SessionInfo, err error) {
	ctx, span := s.tracer.Start(ctx, "game.create_session", trace.WithAttributes(
		attribute.String("context.id", contextID),
		attribute.String("quiz.name", quizName),
	))
	defer func() { endSpan(span, err) }()

	if _, ok := s.sessions.Get(contextID); ok {
		return SessionInfo{}, domain.ErrSessionExists
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizName)
	if err != nil {
		return SessionInfo{}, err
	}
	if len(quiz.Questions) == 0 {
		return SessionInfo{}, fmt.Errorf("quiz %q has no questions: %w", quizName, domain.ErrQuizNotFound)
	}
	catalog, err := s.catalog.PowerUps(ctx)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("load power-up catalog: %w", err)
	}

	session := NewSession(contextID, quiz, s.SessionOptions(catalog)...)
	if err := s.sessions.Create(session); err != nil {
		return SessionInfo{}, err
	}
	s.logger.Info("session created", "context_id", contextID, "quiz", quiz.Name, "questions", len(quiz.Questions))
	return session.Info(), nil
}

// Join registers or returns a participant. It is idempotent.
func (s *GameService) Join(_ context.Context, contextID, playerID, displayName, avatarURL string) (domain.Player, error) {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return domain.Player{}, domain.ErrSessionNotFound
	}
	p, created := session.Join(playerID, displayName, avatarURL)
	if created {
		s.logger.Info("player joined", "context_id", contextID, "user_id", playerID, "inventory", len(p.Inventory))
	}
	return p, nil
}

// Start opens a session for play.
func (s *GameService) Start(ctx context.Context, contextID string) (err error) {
	_, span := s.tracer.Start(ctx, "game.start", trace.WithAttributes(attribute.String("context.id", contextID)))
	defer func() { endSpan(span, err) }()

	session, ok := s.sessions.Get(contextID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := session.Start(); err != nil {
		return err
	}
	s.logger.Info("session started", "context_id", contextID)
	return nil
}

// OpenBoard issues a fresh board to the player, replacing any earlier or pre-restart board.
func (s *GameService) OpenBoard(_ context.Context, contextID, playerID string) (QuestionView, error) {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return QuestionView{}, domain.ErrSessionNotFound
	}
	return session.OpenBoard(playerID, s.newToken())
}

// CurrentQuestion renders the player's current question, starting its clock if needed.
func (s *GameService) CurrentQuestion(_ context.Context, contextID, playerID string) (QuestionView, error) {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return QuestionView{}, domain.ErrSessionNotFound
	}
	return session.CurrentQuestion(playerID)
}

// NextQuestion moves the player's board from intermission to the next question.
func (s *GameService) NextQuestion(_ context.Context, contextID, playerID, board string) (QuestionView, error) {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return QuestionView{}, domain.ErrSessionNotFound
	}
	return session.NextQuestion(playerID, board)
}

// Select handles an option click on the player's board.
func (s *GameService) Select(ctx context.Context, contextID, playerID, board string, display int) (out Outcome, err error) {
	_, span := s.tracer.Start(ctx, "game.select", trace.WithAttributes(
		attribute.String("context.id", contextID),
		attribute.String("user.id", playerID),
	))
	defer func() { endSpan(span, err) }()

	session, ok := s.sessions.Get(contextID)
	if !ok {
		return Outcome{}, domain.ErrSessionNotFound
	}
	out, err = session.Select(playerID, board, display)
	if err == nil && out.Resolution != nil {
		s.logResolution(*out.Resolution)
	}
	return out, err
}

func (s *GameService) ToggleOption(_ context.Context, contextID, playerID, board string, display int) (QuestionView, error) {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return QuestionView{}, domain.ErrSessionNotFound
	}
	return session.ToggleOption(playerID, board, display)
}

func (s *GameService) AppendReorderStep(_ context.Context, contextID, playerID, board string, display int) (QuestionView, error) {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return QuestionView{}, domain.ErrSessionNotFound
	}
	return session.AppendReorderStep(playerID, board, display)
}

func (s *GameService) ResetReorder(_ context.Context, contextID, playerID, board string) (QuestionView, error) {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return QuestionView{}, domain.ErrSessionNotFound
	}
	return session.ResetReorder(playerID, board)
}

// Submit resolves a multi-select or reorder answer.
func (s *GameService) Submit(ctx context.Context, contextID, playerID, board string) (res Resolution, err error) {
	_, span := s.tracer.Start(ctx, "game.submit", trace.WithAttributes(
		attribute.String("context.id", contextID),
		attribute.String("user.id", playerID),
	))
	defer func() { endSpan(span, err) }()

	session, ok := s.sessions.Get(contextID)
	if !ok {
		return Resolution{}, domain.ErrSessionNotFound
	}
	res, err = session.Submit(playerID, board)
	if err != nil {
		return Resolution{}, err
	}
	span.SetAttributes(attribute.Bool("answer.correct", res.Correct), attribute.Int("answer.points", res.Points))
	s.logResolution(res)
	return res, nil
}

// ActivatePowerUp spends an inventory slot and schedules any cross-player effects.
func (s *GameService) ActivatePowerUp(ctx context.Context, contextID, playerID, board string, slot int) (act Activation, err error) {
	ctx, span := s.tracer.Start(ctx, "game.activate_powerup", trace.WithAttributes(
		attribute.String("context.id", contextID),
		attribute.String("user.id", playerID),
		attribute.Int("powerup.slot", slot),
	))
	defer func() { endSpan(span, err) }()

	session, ok := s.sessions.Get(contextID)
	if !ok {
		return Activation{}, domain.ErrSessionNotFound
	}
	act, err = session.ActivatePowerUp(playerID, board, slot)
	if err != nil {
		return Activation{}, err
	}
	span.SetAttributes(attribute.String("powerup.effect", act.PowerUp.Effect.String()))
	s.logger.Info("power-up activated", "context_id", contextID, "user_id", playerID, "powerup", act.PowerUp.Name, "effect", act.PowerUp.Effect.String())

	pushCtx := context.WithoutCancel(ctx)
	if !act.PowerPlayUntil.IsZero() {
		s.deferEffect(0, contextID, func(session *Session) {
			s.pushViews(pushCtx, session, session.PlayerIDs(), false)
		})
	}
	if act.Glitch {
		targets := func(session *Session) []string {
			ids := session.PlayerIDs()
			out := ids[:0]
			for _, id := range ids {
				if id != playerID {
					out = append(out, id)
				}
			}
			return out
		}
		s.deferEffect(0, contextID, func(session *Session) {
			s.pushViews(pushCtx, session, targets(session), true)
		})
		s.deferEffect(s.rules.Glitch, contextID, func(session *Session) {
			s.pushViews(pushCtx, session, targets(session), false)
		})
	}
	return act, nil
}

// Leaderboard returns the ranked scoreboard of a session.
func (s *GameService) Leaderboard(_ context.Context, contextID string) (domain.Leaderboard, error) {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrSessionNotFound
	}
	return session.Leaderboard(), nil
}

// RemovePlayer drops a participant from a session.
func (s *GameService) RemovePlayer(_ context.Context, contextID, playerID string) error {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := session.Remove(playerID); err != nil {
		return err
	}
	s.logger.Info("player removed", "context_id", contextID, "user_id", playerID)
	return nil
}

// GrantPowerUp gives a catalog power-up, found by name, to a participant.
func (s *GameService) GrantPowerUp(ctx context.Context, contextID, playerID, name string) error {
	session, ok := s.sessions.Get(contextID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	catalog, err := s.catalog.PowerUps(ctx)
	if err != nil {
		return fmt.Errorf("load power-up catalog: %w", err)
	}
	for _, pu := range catalog {
		if pu.Name == name {
			return session.Grant(playerID, pu)
		}
	}
	return fmt.Errorf("%w: %q", domain.ErrPowerUpNotFound, name)
}

// Finish finalizes a session exactly once: it leaves the registry, its snapshot is dropped and the
// report is handed to the sink.
func (s *GameService) Finish(ctx context.Context, contextID string) (summary SessionSummary, err error) {
	ctx, span := s.tracer.Start(ctx, "game.finish", trace.WithAttributes(attribute.String("context.id", contextID)))
	defer func() { endSpan(span, err) }()

	session, ok := s.sessions.Get(contextID)
	if !ok {
		return SessionSummary{}, domain.ErrSessionNotFound
	}
	summary, err = session.Finalize()
	if err != nil {
		return SessionSummary{}, err
	}
	s.sessions.Delete(contextID)

	if s.snapshots != nil {
		// Waits for an in-flight save of this session so the delete lands last.
		s.snapMu.Lock()
		err := s.snapshots.Delete(ctx, contextID)
		s.snapMu.Unlock()
		if err != nil {
			s.logger.Warn("drop snapshot failed", "context_id", contextID, "err", err)
		}
	}
	s.logger.Info("session finished",
		"context_id", contextID,
		"players", len(summary.Players),
		"completion_rate", summary.Stats.CompletionRate,
		"avg_accuracy", summary.Stats.AvgAccuracy,
	)

	if s.reports == nil {
		return summary, nil
	}
	reportID, err := s.reports.SaveFullReport(ctx, summary)
	if err != nil {
		return summary, fmt.Errorf("save report: %w", err)
	}
	s.logger.Info("report saved", "context_id", contextID, "report_id", reportID)
	return summary, nil
}

// Sweep times out overdue players across all sessions and pushes their intermission.
// It returns the number of timeouts resolved.
func (s *GameService) Sweep(ctx context.Context, now time.Time) int {
	ctx, span := s.tracer.Start(ctx, "game.sweep")
	defer span.End()

	total := 0
	for _, session := range s.sessions.List() {
		timeouts, powerPlayEnded := session.Sweep(now)
		total += len(timeouts)
		for _, res := range timeouts {
			s.logResolution(res)
			if err := s.presenter.PushResolution(ctx, res); err != nil {
				s.logger.Debug("push resolution failed", "context_id", res.ContextID, "user_id", res.PlayerID, "err", err)
			}
		}
		if powerPlayEnded {
			s.pushViews(ctx, session, session.PlayerIDs(), false)
		}
	}
	span.SetAttributes(attribute.Int("timeouts", total))
	return total
}

// deferEffect runs fn after d, provided the session is still registered when it fires.
func (s *GameService) deferEffect(d time.Duration, contextID string, fn func(*Session)) {
	time.AfterFunc(d, func() {
		session, ok := s.sessions.Get(contextID)
		if !ok {
			return
		}
		fn(session)
	})
}

// pushViews refreshes the boards of the listed players. Players gone or without a live board are skipped.
func (s *GameService) pushViews(ctx context.Context, session *Session, playerIDs []string, glitched bool) {
	for _, id := range playerIDs {
		view, ok := session.RenderView(id, glitched)
		if !ok {
			continue
		}
		if err := s.presenter.PushQuestion(ctx, view); err != nil {
			s.logger.Debug("push view failed", "context_id", view.ContextID, "user_id", id, "err", err)
		}
	}
}

func (s *GameService) logResolution(res Resolution) {
	s.logger.Info("answer resolved",
		"context_id", res.ContextID,
		"user_id", res.PlayerID,
		"correct", res.Correct,
		"timed_out", res.TimedOut,
		"voided", res.Voided,
		"points", res.Points,
		"finished", res.Finished,
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !isRejection(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// isRejection reports whether err is an expected caller-facing rejection rather than a fault.
func isRejection(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidTransition,
		domain.ErrDuplicatePowerUp,
		domain.ErrIneligiblePowerUp,
		domain.ErrBoardExpired,
		domain.ErrEmptySelection,
		domain.ErrOptionNotFound,
		domain.ErrPowerUpNotFound,
		domain.ErrParticipantNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
