// Package database wires the connection pool into the fx application
// graph. The acquire/execute/fetch logic and query logging live in
// package pool; this package only owns the fx lifecycle (open on start,
// close on stop).
package database

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/turnbase/internal/config"
	"github.com/emergent-company/turnbase/pool"
)

// Module provides a *pool.Pool to the fx graph and closes it on shutdown.
var Module = fx.Module("database",
	fx.Provide(NewPool),
)

// NewPool opens the connection pool and registers its shutdown hook.
func NewPool(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*pool.Pool, error) {
	p, err := pool.New(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			p.Close()
			return nil
		},
	})

	return p, nil
}
