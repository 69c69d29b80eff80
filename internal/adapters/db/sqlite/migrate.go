package sqlite

import (
	"context"
	"embed"
	"log/slog"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded schema. Foreign keys stay off while
// goose runs because pre-migration databases may hold rows in an order a
// strict FK check would reject; enforcement is turned on afterwards and a
// refusal is logged rather than fatal.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return err
	}

	if err := db.WithContext(ctx).Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		slog.Warn("could not enable foreign key enforcement", "error", err)
	}

	return nil
}
