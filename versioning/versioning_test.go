package versioning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pool"
	"github.com/emergent-company/turnbase/schema"
	"github.com/emergent-company/turnbase/sqlast"
	"github.com/emergent-company/turnbase/sqlcompiler"
)

// fakeConn implements versioning.Conn (and therefore pool.DB) without a
// live Postgres connection, mirroring schema_test.go's fakeDB. BeginTx is
// deliberately unsupported here — CreateTurn's atomicity is exercised by
// the Postgres-backed integration suite, not this unit test file.
type fakeConn struct {
	execFn     func(sql string, args []any) (int64, error)
	fetchOneFn func(sql string, args []any) (pool.Row, error)
	fetchFn    func(sql string, args []any) ([]pool.Row, error)
}

func (f *fakeConn) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	if f.execFn == nil {
		return 0, nil
	}
	return f.execFn(sql, args)
}

func (f *fakeConn) FetchOne(_ context.Context, sql string, args ...any) (pool.Row, error) {
	return f.fetchOneFn(sql, args)
}

func (f *fakeConn) Fetch(_ context.Context, sql string, args ...any) ([]pool.Row, error) {
	return f.fetchFn(sql, args)
}

func (f *fakeConn) BeginTx(context.Context) (*pool.TxHandle, error) {
	return nil, errors.New("fakeConn: BeginTx not supported")
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDecodeBranch(t *testing.T) {
	now := time.Now()
	row := pool.Row{
		"id": int32(3), "name": "trunk", "created_at": now, "updated_at": now,
		"forked_from_index": nil, "forked_from_branch_id": nil, "current_index": int64(5),
	}
	branch, err := decodeBranch(row)
	require.NoError(t, err)
	assert.Equal(t, 3, branch.ID)
	require.NotNil(t, branch.Name)
	assert.Equal(t, "trunk", *branch.Name)
	assert.Nil(t, branch.ForkedFromIndex)
	assert.Equal(t, 5, branch.CurrentIndex)
}

func TestDecodeTurnWithNativeForkedBranches(t *testing.T) {
	now := time.Now()
	row := pool.Row{
		"id": 1, "created_at": now, "ended_at": nil, "index": 2, "status": "committed",
		"message": nil, "branch_id": 1, "partition_id": nil,
		"forked_branches": []any{
			map[string]any{
				"id": 9, "name": "feature", "forked_from_index": 2, "forked_from_branch_id": 1,
				"created_at": now, "updated_at": now,
			},
		},
	}
	turn, err := decodeTurn(row)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, turn.Status)
	require.Len(t, turn.ForkedBranches, 1)
	assert.Equal(t, 9, turn.ForkedBranches[0].ID)
}

func TestDecodeForkedBranchesFromJSONText(t *testing.T) {
	raw := `[{"id":2,"name":null,"forked_from_index":1,"forked_from_branch_id":1,"created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}]`
	summaries, err := decodeForkedBranches(raw)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].ID)
	assert.Nil(t, summaries[0].Name)
}

func TestDecodeForkedBranchesEmpty(t *testing.T) {
	summaries, err := decodeForkedBranches(`[]`)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestBranchHierarchyCTECompiles(t *testing.T) {
	cte := BranchHierarchyCTE(7)
	outer := &sqlast.SelectQuery{
		CTEs:    []*sqlast.CTE{cte},
		Columns: []sqlast.Expr{sqlast.NewColumn("id", &sqlast.Table{Name: "branch_hierarchy"})},
		From:    &sqlast.Table{Name: "branch_hierarchy"},
	}
	result, err := sqlcompiler.Compile(outer)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "WITH RECURSIVE branch_hierarchy AS (")
	assert.Contains(t, result.SQL, "UNION ALL")
	assert.Contains(t, result.SQL, "JOIN branch_hierarchy AS bh ON (b.id = bh.forked_from_branch_id)")
	assert.Equal(t, []any{7}, result.Params)
}

func TestVisibilityQueryJoinsTurnsAndTarget(t *testing.T) {
	target := &sqlast.Table{Name: "widgets", Alias: "w"}
	q := VisibilityQuery(1, target, "turn_id", nil)
	q.Columns = []sqlast.Expr{sqlast.NewColumn("id", target)}

	result, err := sqlcompiler.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "FROM branch_hierarchy AS bh")
	assert.Contains(t, result.SQL, "INNER JOIN turns AS t ON")
	assert.Contains(t, result.SQL, "t.status = 'committed'")
	assert.Contains(t, result.SQL, "INNER JOIN widgets AS w ON (w.turn_id = t.id)")
}

func TestVisibilityQueryWithPartitionFilter(t *testing.T) {
	target := &sqlast.Table{Name: "widgets", Alias: "w"}
	partitionID := 42
	q := VisibilityQuery(1, target, "turn_id", &partitionID)
	q.Columns = []sqlast.Expr{sqlast.NewColumn("id", target)}

	result, err := sqlcompiler.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "t.partition_id = $")
	assert.Contains(t, result.Params, 42)
}

func TestEngineCreateBranch(t *testing.T) {
	now := time.Now()
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			assert.Contains(t, sql, "INSERT INTO branches")
			return pool.Row{
				"id": 1, "name": "main", "created_at": now, "updated_at": now,
				"forked_from_index": nil, "forked_from_branch_id": nil, "current_index": 0,
			}, nil
		},
	}
	e := NewEngine(conn, testLogger())
	name := "main"
	branch, err := e.CreateBranch(context.Background(), &name)
	require.NoError(t, err)
	assert.Equal(t, 1, branch.ID)
	assert.Equal(t, "main", *branch.Name)
}

func TestEngineFork(t *testing.T) {
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			if strings.Contains(sql, "SELECT id FROM turns") {
				assert.Equal(t, 1, args[0])
				assert.Equal(t, 5, args[1])
				return pool.Row{"id": 9}, nil
			}
			assert.Contains(t, sql, "forked_from_index")
			assert.Equal(t, 5, args[1])
			assert.Equal(t, 1, args[2])
			assert.Equal(t, 6, args[3])
			return pool.Row{
				"id": 2, "name": nil, "created_at": time.Now(), "updated_at": time.Now(),
				"forked_from_index": 5, "forked_from_branch_id": 1, "current_index": 6,
			}, nil
		},
	}
	e := NewEngine(conn, testLogger())
	branch, err := e.Fork(context.Background(), 1, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, branch.ID)
	require.NotNil(t, branch.ForkedFromIndex)
	assert.Equal(t, 5, *branch.ForkedFromIndex)
}

func TestEngineForkFailsWhenParentHasNoTurnAtIndex(t *testing.T) {
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return nil, apperror.ErrNotFound.WithMessage("no such turn")
		},
	}
	e := NewEngine(conn, testLogger())
	_, err := e.Fork(context.Background(), 1, 5, nil)
	assert.True(t, errors.Is(err, apperror.ErrVersioning))
}

func TestEngineCommitTurnFailsWhenAlreadyDecided(t *testing.T) {
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			if strings.Contains(sql, "UPDATE turns") {
				return nil, apperror.ErrNotFound.WithMessage("no rows updated")
			}
			// the follow-up GetTurn call used to disambiguate "missing" from
			// "already decided"
			return pool.Row{
				"id": 4, "created_at": time.Now(), "ended_at": time.Now(), "index": 1,
				"status": "reverted", "message": nil, "branch_id": 1, "partition_id": nil,
			}, nil
		},
	}
	e := NewEngine(conn, testLogger())
	_, err := e.CommitTurn(context.Background(), 4, nil)
	assert.True(t, errors.Is(err, apperror.ErrVersioning))
}

func TestEngineCommitTurnPropagatesNotFoundWhenTurnMissing(t *testing.T) {
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return nil, apperror.ErrNotFound.WithMessage("no such turn")
		},
	}
	e := NewEngine(conn, testLogger())
	_, err := e.CommitTurn(context.Background(), 99, nil)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestEngineCommitTurn(t *testing.T) {
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			assert.Contains(t, sql, "SET status = $1")
			assert.Equal(t, string(StatusCommitted), args[0])
			return pool.Row{
				"id": 4, "created_at": time.Now(), "ended_at": time.Now(), "index": 1,
				"status": "committed", "message": "done", "branch_id": 1, "partition_id": nil,
			}, nil
		},
	}
	e := NewEngine(conn, testLogger())
	msg := "done"
	turn, err := e.CommitTurn(context.Background(), 4, &msg)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, turn.Status)
}

func TestEngineGetBranchOrNoneReturnsNilOnNotFound(t *testing.T) {
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return nil, apperror.ErrNotFound.WithMessage("no such branch")
		},
	}
	e := NewEngine(conn, testLogger())
	branch, err := e.GetBranchOrNone(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, branch)
}

func TestEngineGetBranchPropagatesOtherErrors(t *testing.T) {
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return nil, apperror.ErrConnectionLost.WithMessage("down")
		},
	}
	e := NewEngine(conn, testLogger())
	_, err := e.GetBranch(context.Background(), 1)
	assert.True(t, errors.Is(err, apperror.ErrConnectionLost))
}

type artifactModel struct {
	ID    uuid.UUID `turnbase:"id,pk,type:uuid"`
	Title string    `turnbase:"title"`
}

func buildArtifactNamespace(t *testing.T) *schema.Namespace {
	t.Helper()
	ns, _, err := schema.ParseModel("documents", artifactModel{})
	require.NoError(t, err)
	ns.IsArtifact = true
	return ns
}

func TestSaveArtifactFirstVersionStartsAtOne(t *testing.T) {
	ns := buildArtifactNamespace(t)
	var insertedSQL string
	var insertedArgs []any
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return pool.Row{"max_version": nil}, nil
		},
		execFn: func(sql string, args []any) (int64, error) {
			insertedSQL = sql
			insertedArgs = args
			return 1, nil
		},
	}
	id, version, err := SaveArtifact(context.Background(), conn, ns, uuid.Nil, 1, 1, map[string]any{"title": "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Contains(t, insertedSQL, "INSERT INTO documents")
	assert.Contains(t, insertedArgs, "hello")
}

func TestSaveArtifactIncrementsVersion(t *testing.T) {
	ns := buildArtifactNamespace(t)
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return pool.Row{"max_version": int64(3)}, nil
		},
		execFn: func(sql string, args []any) (int64, error) {
			return 1, nil
		},
	}
	artifactID := uuid.New()
	_, version, err := SaveArtifact(context.Background(), conn, ns, artifactID, 2, 1, map[string]any{"title": "v4"})
	require.NoError(t, err)
	assert.Equal(t, 4, version)
}

func TestDeleteArtifactTombstonesNewVersion(t *testing.T) {
	ns := buildArtifactNamespace(t)
	var insertedSQL string
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return pool.Row{"max_version": int64(1)}, nil
		},
		execFn: func(sql string, args []any) (int64, error) {
			insertedSQL = sql
			return 1, nil
		},
	}
	version, err := DeleteArtifact(context.Background(), conn, ns, uuid.New(), 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Contains(t, insertedSQL, "deleted_at")
}

func TestDeleteArtifactFailsWhenArtifactNeverExisted(t *testing.T) {
	ns := buildArtifactNamespace(t)
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return pool.Row{"max_version": nil}, nil
		},
	}
	_, err := DeleteArtifact(context.Background(), conn, ns, uuid.New(), 1, 1)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestGetArtifactLatestVersion(t *testing.T) {
	ns := buildArtifactNamespace(t)
	conn := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			assert.Contains(t, sql, "DISTINCT ON")
			return pool.Row{"title": "hello"}, nil
		},
	}
	record, err := GetArtifact(context.Background(), conn, ns, uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", record["title"])
}
