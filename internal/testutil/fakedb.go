// Package testutil provides a scriptable fake pool.DB (the unit tests of
// schema, versioning, relations, and orm still use their own hand-written
// fakes rather than this one), plus a
// build-tagged helper (integration.go) for the subset of behavior — the
// recursive branch-hierarchy CTE, json_agg-based joins, CreateTurn's
// atomicity under a real transaction — that cannot be faked and needs a
// live Postgres instead.
package testutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/emergent-company/turnbase/pool"
)

// Call records one invocation against a FakeDB, in call order, so tests
// can assert on the exact SQL and parameters a component sent down to the
// connection layer without standing up Postgres.
type Call struct {
	SQL    string
	Params []any
}

// FakeDB is a scriptable pool.DB: each of FetchOneFunc/FetchFunc/ExecFunc
// is consulted if set, otherwise Exec returns 0, FetchOne an empty Row,
// and Fetch a nil slice, all with a nil error. BeginTx always fails, mirroring every
// hand-written fakeConn this module's packages already carried before
// this package existed: pool.TxHandle wraps an unexported pgx.Tx, so no
// in-process fake can produce a real one, and nothing under unit test
// exercises the transactional path.
type FakeDB struct {
	FetchOneFunc func(ctx context.Context, sql string, args []any) (pool.Row, error)
	FetchFunc    func(ctx context.Context, sql string, args []any) ([]pool.Row, error)
	ExecFunc     func(ctx context.Context, sql string, args []any) (int64, error)

	Calls []Call
}

func (f *FakeDB) record(sql string, args []any) {
	f.Calls = append(f.Calls, Call{SQL: sql, Params: args})
}

func (f *FakeDB) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	f.record(sql, args)
	if f.ExecFunc == nil {
		return 0, nil
	}
	return f.ExecFunc(ctx, sql, args)
}

func (f *FakeDB) FetchOne(ctx context.Context, sql string, args ...any) (pool.Row, error) {
	f.record(sql, args)
	if f.FetchOneFunc == nil {
		return pool.Row{}, nil
	}
	return f.FetchOneFunc(ctx, sql, args)
}

func (f *FakeDB) Fetch(ctx context.Context, sql string, args ...any) ([]pool.Row, error) {
	f.record(sql, args)
	if f.FetchFunc == nil {
		return nil, nil
	}
	return f.FetchFunc(ctx, sql, args)
}

func (f *FakeDB) BeginTx(context.Context) (*pool.TxHandle, error) {
	return nil, errors.New("testutil.FakeDB: BeginTx not supported")
}

// LastCall returns the most recent recorded call, or a zero Call if none
// were made yet.
func (f *FakeDB) LastCall() Call {
	if len(f.Calls) == 0 {
		return Call{}
	}
	return f.Calls[len(f.Calls)-1]
}

// Row is a convenience constructor for a canned pool.Row, cutting down the
// map[string]any{...} boilerplate of a FetchOneFunc/FetchFunc closure.
func Row(pairs ...any) pool.Row {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("testutil.Row: odd number of arguments (%d)", len(pairs)))
	}
	row := make(pool.Row, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("testutil.Row: argument %d must be a string key, got %T", i, pairs[i]))
		}
		row[key] = pairs[i+1]
	}
	return row
}
