package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/emergent-company/turnbase/internal/config"
	"github.com/emergent-company/turnbase/internal/database"
	"github.com/emergent-company/turnbase/internal/migrate"
	"github.com/emergent-company/turnbase/orm"
	"github.com/emergent-company/turnbase/pkg/logger"
)

// withORM builds a short-lived fx application from the config, database
// and orm modules, runs fn against the resulting *orm.ORM, and tears the
// application down again. Every subcommand in this CLI is one invocation
// of withORM: there is no server process to keep fx.App.Run()'s blocking
// signal-wait loop around, so Start/Stop bracket fn directly instead.
func withORM(fn func(ctx context.Context, o *orm.ORM) error) error {
	var o *orm.ORM

	app := fx.New(
		fx.NopLogger,
		fx.Provide(logger.NewLogger),
		config.Module,
		database.Module,
		orm.Module,
		fx.Populate(&o),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(context.Background(), o)
}

// withMigrator is withORM's counterpart for the migrate subcommand, which
// needs a *migrate.Migrator instead of a *orm.ORM.
func withMigrator(fn func(ctx context.Context, m *migrate.Migrator) error) error {
	var m *migrate.Migrator

	app := fx.New(
		fx.NopLogger,
		fx.Provide(logger.NewLogger),
		config.Module,
		migrate.Module,
		fx.Populate(&m),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(context.Background(), m)
}
