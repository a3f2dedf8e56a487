package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the postgres schema: quiz content, the power-up catalog and final reports.
var Migrations = migrate.NewMigrations()
