package db

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gradboard/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending schema migrations. Already-current
// schemas return without error. The embedded migration files are used
// unless cfg.MigrationsDir points at an on-disk directory.
func RunMigrations(cfg config.DatabaseConfig) error {
	sqlDB, err := sql.Open("pgx", cfg.URL.Unmask())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	driver, err := pgxv5.WithInstance(sqlDB, &pgxv5.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	var m *migrate.Migrate
	if cfg.MigrationsDir != "" {
		m, err = migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsDir, "pgx_v5", driver)
	} else {
		var src source.Driver
		src, err = iofs.New(migrationsFS, "migrations")
		if err != nil {
			return fmt.Errorf("create migration source: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "pgx_v5", driver)
	}
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
