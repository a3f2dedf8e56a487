package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"trivia-session-service/internal/app"
)

// NewRestoreCheckCmd decodes every stored snapshot and rebuilds it without registering it,
// reporting which sessions a restart would bring back.
func NewRestoreCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-check",
		Short: "Verify stored session snapshots can be restored",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			st, err := buildStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			service := app.NewGameService(st.registry, st.quizzes, st.catalog, app.Options{
				Logger: logger,
				Rules:  rulesFromConfig(cfg),
			})
			stored, err := st.snaps.LoadAll(ctx)
			if err != nil {
				return fmt.Errorf("load snapshots: %w", err)
			}
			keys := make([]string, 0, len(stored))
			for key := range stored {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			out := cmd.OutOrStdout()
			failed := 0
			for _, key := range keys {
				rec, err := app.DecodeRecord(stored[key])
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL   %s: %v\n", key, err)
					continue
				}
				if rec.ContextID == "" {
					rec.ContextID = key
				}
				if rec.Ended() {
					fmt.Fprintf(out, "ENDED  %s\n", key)
					continue
				}
				if _, err := app.Restore(ctx, rec, st.quizzes, service.SessionOptions(nil)...); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL   %s: %v\n", key, err)
					continue
				}
				fmt.Fprintf(out, "OK     %s quiz=%s players=%d\n", key, rec.QuizName, len(rec.Players))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d snapshots cannot be restored", failed, len(keys))
			}
			return nil
		},
	}
}
