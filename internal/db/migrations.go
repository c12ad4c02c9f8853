package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationsDir = "migrations"

// Migrate applies every pending migration embedded in the binary.
func Migrate(db *gorm.DB) error {
	return RunMigrations(context.Background(), db, "up")
}

// RunMigrations runs a goose command (up, down, status, version, redo, ...)
// against the embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB, command string, args ...string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, sqlDB, migrationsDir, args...); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	return nil
}
