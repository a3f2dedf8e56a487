package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trivia-session-service/internal/infra/file"
	pgstore "trivia-session-service/internal/infra/postgres"
	redisstore "trivia-session-service/internal/infra/redis"
)

// NewImportQuizCmd copies quiz files into Postgres and drops their cached copies.
func NewImportQuizCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import-quiz [name...]",
		Short: "Import quiz files from a directory into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			logger := newLogger(cfg)
			if dir == "" {
				dir = cfg.Quiz.Dir
			}
			if dir == "" {
				return fmt.Errorf("no quiz directory: pass --dir or set quiz.dir")
			}
			if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
				return err
			}

			st, err := buildStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			src := file.NewQuizLoader(dir)
			names := args
			if len(names) == 0 {
				if names, err = src.List(); err != nil {
					return err
				}
			}

			dst := pgstore.NewQuizLoader(st.pool)
			cache, _ := st.quizzes.(*redisstore.QuizRepository)
			for _, name := range names {
				quiz, err := src.LoadQuiz(ctx, name)
				if err != nil {
					return err
				}
				if err := dst.SaveQuiz(ctx, quiz); err != nil {
					return fmt.Errorf("save quiz %q: %w", quiz.Name, err)
				}
				if cache != nil {
					if err := cache.Invalidate(ctx, quiz.Name); err != nil {
						logger.Warn("quiz cache invalidate failed", "quiz", quiz.Name, "err", err)
					}
				}
				logger.Info("quiz imported", "quiz", quiz.Name, "questions", len(quiz.Questions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of quiz files (defaults to quiz.dir)")
	return cmd
}
