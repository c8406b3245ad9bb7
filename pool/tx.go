package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxHandle implements Tx over a single pgx.Tx, grounded in the teacher's
// SafeTx helper: Rollback after a successful Commit is a documented no-op
// rather than a caller-visible error, so `defer tx.Rollback(ctx)` is always
// safe to write unconditionally.
type TxHandle struct {
	raw     pgx.Tx
	log     *slog.Logger
	timeout time.Duration
	done    bool
}

func (t *TxHandle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.timeout)
}

// Exec implements DB.
func (t *TxHandle) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	tag, err := t.raw.Exec(ctx, sql, args...)
	t.logQuery(sql, time.Since(start), err)
	if err != nil {
		return 0, classify(err, sql, args)
	}
	return tag.RowsAffected(), nil
}

// FetchOne implements DB.
func (t *TxHandle) FetchOne(ctx context.Context, sql string, args ...any) (Row, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := t.raw.Query(ctx, sql, args...)
	if err != nil {
		t.logQuery(sql, time.Since(start), err)
		return nil, classify(err, sql, args)
	}
	defer rows.Close()

	row, err := collectOne(rows)
	t.logQuery(sql, time.Since(start), err)
	if err != nil {
		return nil, classify(err, sql, args)
	}
	return row, nil
}

// Fetch implements DB.
func (t *TxHandle) Fetch(ctx context.Context, sql string, args ...any) ([]Row, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := t.raw.Query(ctx, sql, args...)
	if err != nil {
		t.logQuery(sql, time.Since(start), err)
		return nil, classify(err, sql, args)
	}
	defer rows.Close()

	result, err := collectAll(rows)
	t.logQuery(sql, time.Since(start), err)
	if err != nil {
		return nil, classify(err, sql, args)
	}
	return result, nil
}

// BeginTx opens a nested transaction as a savepoint, mirroring pgx.Tx.Begin.
func (t *TxHandle) BeginTx(ctx context.Context) (*TxHandle, error) {
	raw, err := t.raw.Begin(ctx)
	if err != nil {
		return nil, classify(err, "SAVEPOINT", nil)
	}
	return &TxHandle{raw: raw, log: t.log, timeout: t.timeout}, nil
}

// Commit commits the transaction. Marks the handle done so a subsequent
// deferred Rollback becomes a no-op.
func (t *TxHandle) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.raw.Commit(ctx); err != nil {
		return classify(err, "COMMIT", nil)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after a successful Commit
// or a prior Rollback — both are no-ops.
func (t *TxHandle) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.raw.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return classify(err, "ROLLBACK", nil)
	}
	return nil
}

func (t *TxHandle) logQuery(sql string, d time.Duration, err error) {
	if err != nil && err != pgx.ErrNoRows {
		t.log.Error("query error", slog.String("sql", sql), slog.Duration("duration", d), slog.Any("error", err))
		return
	}
	t.log.Debug("query", slog.String("sql", sql), slog.Duration("duration", d))
}
