package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/config"
	"trivia-session-service/internal/domain"
	"trivia-session-service/internal/infra/file"
	"trivia-session-service/internal/infra/memory"
	pgstore "trivia-session-service/internal/infra/postgres"
	redisstore "trivia-session-service/internal/infra/redis"
	"trivia-session-service/internal/infra/sqlite"
)

// stack is the set of adapters selected by config. Every backend is optional; the in-memory
// adapters fill whatever is not configured.
type stack struct {
	redis    *redis.Client
	pool     *pgxpool.Pool
	sqlite   *sqlite.Store
	markers  *redisstore.SessionStore
	registry app.SessionRegistry
	quizzes  app.QuizRepository
	loader   memory.QuizLoader
	catalog  app.PowerUpCatalog
	snaps    app.SnapshotStore
	reports  app.ReportSink
}

func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); err != nil && os.IsNotExist(err) {
		// Env-only deployments ship without a config file.
		return config.Load("")
	}
	return config.Load(path)
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func buildStack(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stack, error) {
	s := &stack{}

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pool = pool
	}

	if cfg.SQLite.Path != "" {
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.sqlite = store
	}

	switch {
	case s.pool != nil:
		s.loader = pgstore.NewQuizLoader(s.pool)
	case cfg.Quiz.Dir != "":
		s.loader = file.NewQuizLoader(cfg.Quiz.Dir)
	default:
		logger.Warn("no quiz source configured, serving the built-in sample quiz")
		s.loader = memory.NewStaticQuizLoader(sampleQuizzes())
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if s.redis != nil {
		s.quizzes = redisstore.NewQuizRepository(s.redis, s.loader, quizTTL)
	} else {
		s.quizzes = memory.NewQuizRepository(s.loader, quizTTL)
	}

	switch {
	case s.pool != nil:
		s.catalog = pgstore.NewCatalog(s.pool)
	case cfg.Quiz.Catalog != "":
		s.catalog = file.NewCatalog(cfg.Quiz.Catalog)
	default:
		s.catalog = memory.NewDefaultCatalog()
	}

	if s.redis != nil {
		s.markers = redisstore.NewSessionStore(s.redis, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		s.registry = s.markers
	} else {
		s.registry = memory.NewSessionStore()
	}

	switch {
	case s.redis != nil:
		s.snaps = redisstore.NewSnapshotStore(s.redis)
	case s.sqlite != nil:
		s.snaps = s.sqlite
	default:
		logger.Warn("no snapshot store configured, sessions will not survive a restart")
		s.snaps = memory.NewSnapshotStore()
	}

	switch {
	case s.pool != nil:
		s.reports = pgstore.NewReportSink(s.pool)
	case s.sqlite != nil:
		s.reports = s.sqlite
	}
	return s, nil
}

func (s *stack) Close() {
	if s.sqlite != nil {
		_ = s.sqlite.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func rulesFromConfig(cfg config.Config) app.Rules {
	def := app.DefaultRules()
	return app.Rules{
		TimeoutGrace:     config.TTLDuration(cfg.Game.TimeoutGrace, def.TimeoutGrace),
		PowerPlay:        config.TTLDuration(cfg.Game.PowerPlay, def.PowerPlay),
		Glitch:           config.TTLDuration(cfg.Game.Glitch, def.Glitch),
		StarterInventory: cfg.Game.StarterInventory,
		InventoryCap:     cfg.Game.InventoryCap,
		LootChance:       cfg.Game.LootChance,
	}
}

// sampleQuizzes provides a minimal quiz; configure postgres or a quiz directory in production.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"sample": {
			Name:      "sample",
			CreatorID: "system",
			Questions: []domain.Question{
				{
					Text:           "What is 2 + 2?",
					Options:        []string{"3", "4", "5", "22"},
					CorrectIndices: []int{1},
					Explanation:    "2 + 2 = 4.",
				},
				{
					Text:           "Which of these are primary colors?",
					Options:        []string{"Red", "Green", "Blue", "Yellow"},
					CorrectIndices: []int{0, 2, 3},
					MultiSelect:    true,
				},
				{
					Text:           "Order the planets from the Sun",
					Options:        []string{"Mars", "Mercury", "Earth", "Venus"},
					CorrectIndices: []int{1, 3, 2, 0},
					Kind:           domain.QuestionReorder,
				},
			},
		},
	}
}
