package orm

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/turnbase/pool"
)

// Module provides an *ORM to the fx graph, built over the shared
// connection pool database.Module already provides.
var Module = fx.Module("orm",
	fx.Provide(NewFromPool),
)

// NewFromPool adapts a *pool.Pool (which satisfies both pool.DB and
// versioning.Conn) into an ORM for fx.Provide.
func NewFromPool(p *pool.Pool, log *slog.Logger) *ORM {
	return New(p, p, log)
}
