package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed sql/create_reports.sql
var createReportsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createReportsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS report_powerup_usage;
DROP TABLE IF EXISTS report_answers;
DROP TABLE IF EXISTS report_players;
DROP TABLE IF EXISTS report_sessions;`)
			return err
		},
	)
}
