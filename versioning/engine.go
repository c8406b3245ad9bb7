package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pkg/logger"
	"github.com/emergent-company/turnbase/pool"
)

// Conn is the subset of *pool.Pool an Engine needs: statement execution
// plus the ability to start a transaction for atomic turn creation.
// *pool.Pool and *pool.TxHandle both satisfy it, so an Engine can be
// handed either the process pool or an already-open transaction.
type Conn interface {
	pool.DB
	BeginTx(ctx context.Context) (*pool.TxHandle, error)
}

// Engine is the versioning component of spec.md §4.4. All of its methods
// write through raw, hand-built parameterized SQL rather than the
// sqlast/sqlcompiler query-set builder, exactly as versioning.py's
// ArtifactLog does for branches/turns — those two tables are fixed DDL
// (spec.md §6), not user-declared namespaces subject to the general
// query-set machinery.
type Engine struct {
	pool Conn
	log  *slog.Logger
}

// NewEngine builds an Engine bound to conn.
func NewEngine(conn Conn, log *slog.Logger) *Engine {
	return &Engine{pool: conn, log: log.With(logger.Scope("versioning"))}
}

// CreateBranch creates a root branch (no parent, current_index starts at
// the branches table's DEFAULT 0), mirroring versioning.py::create_branch
// when forked_from_turn_id is omitted.
func (e *Engine) CreateBranch(ctx context.Context, name *string) (*Branch, error) {
	row, err := e.pool.FetchOne(ctx, `INSERT INTO branches (name) VALUES ($1) RETURNING *`, name)
	if err != nil {
		return nil, err
	}
	return decodeBranch(row)
}

// Fork creates a new branch from parentBranchID at turn index (spec.md
// §4.4): forked_from_index = index, forked_from_branch_id = parent,
// current_index = index + 1. New turns on the child start at index + 1.
// Returns apperror.ErrVersioning if parentBranchID has no turn at index
// (spec.md §7: "fork from missing turn").
func (e *Engine) Fork(ctx context.Context, parentBranchID, index int, name *string) (*Branch, error) {
	if _, err := e.pool.FetchOne(ctx,
		`SELECT id FROM turns WHERE branch_id = $1 AND index = $2`,
		parentBranchID, index); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ErrVersioning.WithMessage(
				fmt.Sprintf("fork from missing turn: branch %d has no turn at index %d", parentBranchID, index))
		}
		return nil, err
	}

	row, err := e.pool.FetchOne(ctx,
		`INSERT INTO branches (name, forked_from_index, forked_from_branch_id, current_index)
		 VALUES ($1, $2, $3, $4) RETURNING *`,
		name, index, parentBranchID, index+1)
	if err != nil {
		return nil, err
	}
	return decodeBranch(row)
}

// ForkAtTurn forks parentBranchID at turn's index, the convenience form
// version_control_models.py's Branch.fork(turn=...) exposes.
func (e *Engine) ForkAtTurn(ctx context.Context, parentBranchID int, turn *Turn, name *string) (*Branch, error) {
	return e.Fork(ctx, parentBranchID, turn.Index, name)
}

// createTurnSQL atomically increments the branch's current_index and
// inserts the new turn at that index in one statement, so two concurrent
// callers can never be handed the same index (spec.md §4.4 "Turn creation
// under contention").
const createTurnSQL = `
WITH updated_branch AS (
	UPDATE branches
	SET current_index = current_index + 1
	WHERE id = $1
	RETURNING id, current_index
),
new_turn AS (
	INSERT INTO turns (partition_id, branch_id, index, status)
	SELECT $2, id, current_index, $3
	FROM updated_branch
	RETURNING *
)
SELECT * FROM new_turn;
`

// CreateTurn runs createTurnSQL inside its own transaction — required, not
// optional, per spec.md §4.4: without a transaction the increment and the
// insert could interleave with a concurrent caller's.
func (e *Engine) CreateTurn(ctx context.Context, branchID int, status TurnStatus, partitionID *int) (*Turn, error) {
	tx, err := e.pool.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row, err := tx.FetchOne(ctx, createTurnSQL, branchID, partitionID, string(status))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return decodeTurn(row)
}

// CommitTurn writes ended_at = now(), status = committed (spec.md §4.4
// "Turn lifecycle").
func (e *Engine) CommitTurn(ctx context.Context, turnID int, message *string) (*Turn, error) {
	return e.setTurnStatus(ctx, turnID, StatusCommitted, message)
}

// RevertTurn writes ended_at = now(), status = reverted. Rows written
// during a reverted turn remain physically present but are filtered out by
// the visibility query (spec.md §4.4).
func (e *Engine) RevertTurn(ctx context.Context, turnID int, message *string) (*Turn, error) {
	return e.setTurnStatus(ctx, turnID, StatusReverted, message)
}

// setTurnStatus only transitions a turn out of staged (spec.md §4.4:
// "status transitions are staged → committed or staged → reverted"). The
// WHERE clause guards against re-committing/re-reverting an already
// decided turn; when it matches zero rows, a follow-up GetTurn tells
// apart "turnID doesn't exist" (ErrNotFound stands) from "turnID exists
// but isn't staged" (apperror.ErrVersioning, per spec.md §7 "commit of
// non-staged turn").
func (e *Engine) setTurnStatus(ctx context.Context, turnID int, status TurnStatus, message *string) (*Turn, error) {
	row, err := e.pool.FetchOne(ctx,
		`UPDATE turns SET status = $1, ended_at = now(), message = $2 WHERE id = $3 AND status = $4 RETURNING *`,
		string(status), message, turnID, string(StatusStaged))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			if _, getErr := e.GetTurn(ctx, turnID); getErr == nil {
				return nil, apperror.ErrVersioning.WithMessage(
					fmt.Sprintf("turn %d is not staged", turnID))
			}
		}
		return nil, err
	}
	return decodeTurn(row)
}

// GetTurn fetches a turn by id, returning apperror.ErrNotFound if absent.
func (e *Engine) GetTurn(ctx context.Context, turnID int) (*Turn, error) {
	row, err := e.pool.FetchOne(ctx, `SELECT * FROM turns WHERE id = $1`, turnID)
	if err != nil {
		return nil, err
	}
	return decodeTurn(row)
}

// ListTurns lists every turn across every branch, newest first.
func (e *Engine) ListTurns(ctx context.Context, limit, offset int) ([]*Turn, error) {
	rows, err := e.pool.Fetch(ctx, `SELECT * FROM turns ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*Turn, len(rows))
	for i, row := range rows {
		turn, err := decodeTurn(row)
		if err != nil {
			return nil, err
		}
		out[i] = turn
	}
	return out, nil
}

// listBranchTurnsSQL mirrors versioning.py::get_branch_turns: every turn on
// branchID, each annotated with the branches that forked from it at that
// exact index (spec.md SUPPLEMENTED FEATURES item 1).
const listBranchTurnsSQL = `
SELECT
	t.id,
	t.branch_id,
	t.index,
	t.status,
	t.created_at,
	t.ended_at,
	t.message,
	t.partition_id,
	COALESCE(
		json_agg(
			json_build_object(
				'id', b.id,
				'name', b.name,
				'forked_from_index', b.forked_from_index,
				'forked_from_branch_id', b.forked_from_branch_id,
				'created_at', b.created_at,
				'updated_at', b.updated_at
			) ORDER BY b.created_at
		) FILTER (WHERE b.id IS NOT NULL),
		'[]'
	) AS forked_branches
FROM turns t
LEFT JOIN branches b
	ON b.forked_from_branch_id = t.branch_id
	AND b.forked_from_index = t.index
WHERE t.branch_id = $1
GROUP BY t.id
ORDER BY t.index ASC
LIMIT $2 OFFSET $3;
`

// ListBranchTurns lists branchID's turns in index order, each carrying the
// branches that forked from it.
func (e *Engine) ListBranchTurns(ctx context.Context, branchID int, limit, offset int) ([]*Turn, error) {
	rows, err := e.pool.Fetch(ctx, listBranchTurnsSQL, branchID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*Turn, len(rows))
	for i, row := range rows {
		turn, err := decodeTurn(row)
		if err != nil {
			return nil, err
		}
		out[i] = turn
	}
	return out, nil
}

// GetBranch fetches a branch by id, returning apperror.ErrNotFound if absent.
func (e *Engine) GetBranch(ctx context.Context, branchID int) (*Branch, error) {
	row, err := e.pool.FetchOne(ctx, `SELECT * FROM branches WHERE id = $1`, branchID)
	if err != nil {
		return nil, err
	}
	return decodeBranch(row)
}

// GetBranchOrNone is GetBranch but returns (nil, nil) instead of
// apperror.ErrNotFound when branchID doesn't exist.
func (e *Engine) GetBranchOrNone(ctx context.Context, branchID int) (*Branch, error) {
	branch, err := e.GetBranch(ctx, branchID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return branch, nil
}

// ListBranches lists every branch, newest first.
func (e *Engine) ListBranches(ctx context.Context, limit, offset int) ([]*Branch, error) {
	rows, err := e.pool.Fetch(ctx, `SELECT * FROM branches ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*Branch, len(rows))
	for i, row := range rows {
		branch, err := decodeBranch(row)
		if err != nil {
			return nil, err
		}
		out[i] = branch
	}
	return out, nil
}
