package orm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/turnbase/pool"
	"github.com/emergent-company/turnbase/relations"
)

// fakeConn implements pool.DB and versioning.Conn without a live Postgres
// connection, mirroring versioning_test.go's fakeConn.
type fakeConn struct {
	fetchOneFn func(sql string, args []any) (pool.Row, error)
	fetchFn    func(sql string, args []any) ([]pool.Row, error)
}

func (f *fakeConn) Exec(context.Context, string, ...any) (int64, error) { return 0, nil }

func (f *fakeConn) FetchOne(_ context.Context, sql string, args ...any) (pool.Row, error) {
	if f.fetchOneFn == nil {
		return pool.Row{}, nil
	}
	return f.fetchOneFn(sql, args)
}

func (f *fakeConn) Fetch(_ context.Context, sql string, args ...any) ([]pool.Row, error) {
	if f.fetchFn == nil {
		return nil, nil
	}
	return f.fetchFn(sql, args)
}

func (f *fakeConn) BeginTx(context.Context) (*pool.TxHandle, error) {
	return nil, errors.New("fakeConn: BeginTx not supported")
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type Widget struct {
	ID       int    `turnbase:"id,pk"`
	BranchID int    `turnbase:"branch_id,fk:branches.id"`
	Label    string `turnbase:"label"`
}

type BranchRow struct {
	ID int `turnbase:"id,pk"`
}

func TestRegisterModelAndResolveForeignKeys(t *testing.T) {
	o := New(&fakeConn{}, &fakeConn{}, testLogger())

	_, err := o.RegisterModel("branches", BranchRow{})
	require.NoError(t, err)
	_, err = o.RegisterModel("widgets", Widget{})
	require.NoError(t, err)
	require.NoError(t, o.ResolveForeignKeys())

	assert.NotNil(t, o.Manager.Namespace("widgets"))
}

func TestRegisterModelDuplicateFails(t *testing.T) {
	o := New(&fakeConn{}, &fakeConn{}, testLogger())

	_, err := o.RegisterModel("widgets", Widget{})
	require.NoError(t, err)
	_, err = o.RegisterModel("widgets", Widget{})
	assert.Error(t, err)
}

func TestSaveAutoFillsForeignKeyFromContext(t *testing.T) {
	db := &fakeConn{
		fetchOneFn: func(sql string, args []any) (pool.Row, error) {
			return pool.Row{"id": int64(1), "branch_id": int64(7), "label": "widget-a"}, nil
		},
	}
	o := New(db, db, testLogger())

	_, err := o.RegisterModel("branches", BranchRow{})
	require.NoError(t, err)
	widgetNS, err := o.RegisterModel("widgets", Widget{})
	require.NoError(t, err)
	require.NoError(t, o.ResolveForeignKeys())

	ctx := relations.WithModel(context.Background(), o.Manager.Namespace("branches"), 7)
	row, err := o.Save(ctx, widgetNS, map[string]any{"label": "widget-a"})
	require.NoError(t, err)
	assert.Equal(t, "widget-a", row["label"])
}

func TestQueryBuildsAgainstRegisteredNamespace(t *testing.T) {
	o := New(&fakeConn{}, &fakeConn{}, testLogger())

	_, err := o.RegisterModel("branches", BranchRow{})
	require.NoError(t, err)
	_, err = o.RegisterModel("widgets", Widget{})
	require.NoError(t, err)
	require.NoError(t, o.ResolveForeignKeys())

	qs := o.Query("widgets").Select("id", "label")
	require.NoError(t, qs.Err())

	result, err := qs.Compile()
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "SELECT")
	assert.Contains(t, result.SQL, "widgets")
}
