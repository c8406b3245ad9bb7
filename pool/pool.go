// Package pool implements the connection pool component of spec.md §2:
// acquiring and releasing relational connections, executing parameterized
// statements, and fetching rows. It is the only package that ever sends a
// compiled SQL string over the wire.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emergent-company/turnbase/internal/config"
	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pkg/logger"
	"github.com/emergent-company/turnbase/pkg/pgutils"
)

// Row is a single result row keyed by column name, mirroring the
// dict(record) conversion the Python original performs on every asyncpg
// record before handing it to a namespace's deserializers.
type Row map[string]any

// DB is the surface every caller (schema, versioning, queryset) programs
// against. *Pool and *TxHandle both implement it, so code that doesn't care
// whether it's inside a transaction can take a DB.
type DB interface {
	// Exec runs a statement that returns no rows and reports affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// FetchOne runs a statement expected to return at most one row.
	// Returns apperror.KindNotFound if it returns zero rows.
	FetchOne(ctx context.Context, sql string, args ...any) (Row, error)
	// Fetch runs a statement and collects every returned row.
	Fetch(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// Tx additionally exposes the scoped-transaction lifecycle of spec.md §5:
// one connection, guaranteed release, commit or rollback on scope exit.
type Tx interface {
	DB
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Pool wraps a pgxpool.Pool with the statement-timeout and structured query
// logging the teacher's bun query hook performed, adapted to our own
// hand-rolled execution path since there is no ORM underneath us here — we
// are the ORM.
type Pool struct {
	raw     *pgxpool.Pool
	log     *slog.Logger
	timeout time.Duration
}

// New builds a Pool from Config, verifying connectivity before returning.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Pool, error) {
	log = log.With(logger.Scope("pool"))

	pgCfg, err := pgxpool.ParseConfig(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection url: %w", err)
	}
	pgCfg.MinConns = int32(cfg.PoolMin)
	pgCfg.MaxConns = int32(cfg.PoolMax)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	raw, err := pgxpool.NewWithConfig(connectCtx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := raw.Ping(connectCtx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info("connection pool ready", slog.Int("pool_min", cfg.PoolMin), slog.Int("pool_max", cfg.PoolMax))

	return &Pool{raw: raw, log: log, timeout: cfg.StatementTimeout()}, nil
}

// Close releases every pooled connection.
func (p *Pool) Close() {
	p.raw.Close()
}

func (p *Pool) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Exec implements DB.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.raw.Exec(ctx, sql, args...)
	p.logQuery(sql, time.Since(start), err)
	if err != nil {
		return 0, classify(err, sql, args)
	}
	return tag.RowsAffected(), nil
}

// FetchOne implements DB.
func (p *Pool) FetchOne(ctx context.Context, sql string, args ...any) (Row, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.raw.Query(ctx, sql, args...)
	if err != nil {
		p.logQuery(sql, time.Since(start), err)
		return nil, classify(err, sql, args)
	}
	defer rows.Close()

	row, err := collectOne(rows)
	p.logQuery(sql, time.Since(start), err)
	if err != nil {
		return nil, classify(err, sql, args)
	}
	return row, nil
}

// Fetch implements DB.
func (p *Pool) Fetch(ctx context.Context, sql string, args ...any) ([]Row, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.raw.Query(ctx, sql, args...)
	if err != nil {
		p.logQuery(sql, time.Since(start), err)
		return nil, classify(err, sql, args)
	}
	defer rows.Close()

	result, err := collectAll(rows)
	p.logQuery(sql, time.Since(start), err)
	if err != nil {
		return nil, classify(err, sql, args)
	}
	return result, nil
}

// BeginTx starts a scoped transaction (spec.md §5 Transactions); callers
// MUST defer tx.Rollback() and explicitly tx.Commit() on success.
func (p *Pool) BeginTx(ctx context.Context) (*TxHandle, error) {
	raw, err := p.raw.Begin(ctx)
	if err != nil {
		return nil, classify(err, "BEGIN", nil)
	}
	return &TxHandle{raw: raw, log: p.log, timeout: p.timeout}, nil
}

func (p *Pool) logQuery(sql string, d time.Duration, err error) {
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		p.log.Error("query error", slog.String("sql", sql), slog.Duration("duration", d), logger.Error(err))
		return
	}
	if d > 3*time.Second {
		p.log.Warn("slow query", slog.String("sql", sql), slog.Duration("duration", d))
		return
	}
	p.log.Debug("query", slog.String("sql", sql), slog.Duration("duration", d))
}

// classify maps a raw pgx/pgconn error onto apperror, attaching the SQL and
// params for diagnostics per spec.md §7.
func classify(err error, sql string, args []any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.ErrNotFound.WithSQL(sql, args)
	}
	if pgutils.IsCancelled(err) {
		return apperror.ErrCancelled.WithInternal(err).WithSQL(sql, args)
	}
	if pgutils.IsTimeout(err) {
		return apperror.ErrTimeout.WithInternal(err).WithSQL(sql, args)
	}
	if pgutils.IsUniqueViolation(err) {
		return apperror.ErrDuplicateKey.WithInternal(err).WithDetails(map[string]any{"constraint": pgutils.ConstraintName(err)}).WithSQL(sql, args)
	}
	if pgutils.IsForeignKeyViolation(err) || pgutils.IsNotNullViolation(err) || pgutils.IsCheckViolation(err) {
		return apperror.ErrBind.WithInternal(err).WithDetails(map[string]any{"constraint": pgutils.ConstraintName(err)}).WithSQL(sql, args)
	}
	return apperror.ErrConnectionLost.WithInternal(err).WithSQL(sql, args)
}

func collectOne(rows pgx.Rows) (Row, error) {
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	return Row(m), nil
}

func collectAll(rows pgx.Rows) ([]Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}
