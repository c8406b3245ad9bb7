// Package migrate runs the SQL migrations embedded in package migrations
// using Goose, grounded on the teacher's internal/migrate/migrate.go (same
// Migrator shape, same Up/Down/Status/Version surface) adapted from a
// bun.DB/zap pairing to the stdlib *sql.DB goose itself requires (opened
// over pgx's database/sql driver, pgx/v5/stdlib, not a second connection
// pool) and this repo's slog-based logger.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"

	"github.com/emergent-company/turnbase/internal/config"
	"github.com/emergent-company/turnbase/migrations"
	"github.com/emergent-company/turnbase/pkg/logger"
)

// Module provides a *Migrator to the fx graph and closes its connection on
// shutdown.
var Module = fx.Module("migrate",
	fx.Provide(NewMigrator),
)

// Migrator wraps a dedicated database/sql connection (goose's required
// interface) over the same backend pool.Pool connects to.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMigrator opens a stdlib connection to cfg.ConnectionURL and registers
// its shutdown hook.
func NewMigrator(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*Migrator, error) {
	db, err := sql.Open("pgx", cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}

	m := &Migrator{db: db, log: log.With(logger.Scope("migrate"))}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	return m, nil
}

func (m *Migrator) setup() error {
	goose.SetBaseFS(migrations.FS)
	return goose.SetDialect("postgres")
}

// Up runs every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.setup(); err != nil {
		return err
	}
	m.log.Info("running database migrations")
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	m.log.Info("migrations completed")
	return nil
}

// UpTo runs migrations up to and including version.
func (m *Migrator) UpTo(ctx context.Context, version int64) error {
	if err := m.setup(); err != nil {
		return err
	}
	m.log.Info("running database migrations up to version", slog.Int64("version", version))
	if err := goose.UpToContext(ctx, m.db, ".", version); err != nil {
		return fmt.Errorf("run migrations to version %d: %w", version, err)
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.setup(); err != nil {
		return err
	}
	m.log.Info("rolling back last migration")
	if err := goose.DownContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// Status reports the current migration state to the log.
func (m *Migrator) Status(ctx context.Context) error {
	if err := m.setup(); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

// Version returns the database's current applied migration version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if err := m.setup(); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("get migration version: %w", err)
	}
	return version, nil
}

