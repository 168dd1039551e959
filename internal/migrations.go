package internal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/vanir/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations brings the schema up to the latest embedded migration.
// Safe to run on every startup; goose skips versions already applied.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.MigrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
