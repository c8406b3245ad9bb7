package sqlcompiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/turnbase/sqlast"
)

func TestCompileSimpleSelect(t *testing.T) {
	branches := &sqlast.Table{Name: "branches", Alias: "b"}
	q := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{sqlast.NewColumn("id", branches), sqlast.NewColumn("name", branches)},
		From:    branches,
		Where:   sqlast.Eq(sqlast.NewColumn("id", branches), sqlast.Param(7)),
	}

	result, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "SELECT b.id, b.name")
	assert.Contains(t, result.SQL, "FROM branches AS b")
	assert.Contains(t, result.SQL, "WHERE (b.id = $1)")
	assert.Equal(t, []any{7}, result.Params)
}

func TestCompileMissingFromFails(t *testing.T) {
	q := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{sqlast.Literal(1)},
	}
	_, err := Compile(q)
	assert.Error(t, err)
}

func TestCompileAndFlattensConditions(t *testing.T) {
	table := &sqlast.Table{Name: "turns"}
	col := sqlast.NewColumn("status", table)
	expr := sqlast.And(
		sqlast.Eq(col, sqlast.Literal("committed")),
		sqlast.Gt(sqlast.NewColumn("index", table), sqlast.Param(1)),
	).And(sqlast.Lte(sqlast.NewColumn("index", table), sqlast.Param(2)))

	and, ok := expr.(*sqlast.AndExpr)
	require.True(t, ok)
	assert.Len(t, and.Conditions, 3)
}

func TestCompileInlineStringEscapesQuotes(t *testing.T) {
	table := &sqlast.Table{Name: "widgets"}
	q := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{sqlast.NewColumn("id", table)},
		From:    table,
		Where:   sqlast.Eq(sqlast.NewColumn("label", table), sqlast.Literal("it's")),
	}
	result, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "'it''s'")
	assert.Empty(t, result.Params)
}

func TestCompileFunctionWithFilterAndDistinct(t *testing.T) {
	table := &sqlast.Table{Name: "children", Alias: "c"}
	pk := sqlast.NewColumn("id", table)
	obj := sqlast.JSONBuildObject(sqlast.ColumnPair{Key: "id", Value: pk})
	agg := sqlast.Func("json_agg", obj).WithDistinct().WithFilter(sqlast.Not(sqlast.IsNull(pk))).WithAlias("children")
	coalesced := sqlast.NewCoalesce("children", agg, sqlast.Literal("[]"))

	q := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{coalesced},
		From:    table,
	}
	result, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "json_agg(DISTINCT jsonb_build_object('id', c.id))")
	assert.Contains(t, result.SQL, "FILTER (WHERE (NOT (c.id IS NULL)))")
	assert.Contains(t, result.SQL, "AS children")
	assert.Contains(t, result.SQL, "COALESCE(")
}

func TestCompileJoinAndGroupBy(t *testing.T) {
	parent := &sqlast.Table{Name: "branches", Alias: "b"}
	child := &sqlast.Table{Name: "turns", Alias: "t"}
	q := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{sqlast.NewColumn("id", parent)},
		From:    parent,
		Joins: []*sqlast.Join{{
			Table:     child,
			Kind:      sqlast.JoinLeft,
			Condition: sqlast.Eq(sqlast.NewColumn("branch_id", child), sqlast.NewColumn("id", parent)),
		}},
		GroupBy: []sqlast.Expr{sqlast.NewColumn("id", parent)},
	}
	result, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "LEFT JOIN turns AS t ON (t.branch_id = b.id)")
	assert.Contains(t, result.SQL, "GROUP BY b.id")
}

func TestCompileCTERecursive(t *testing.T) {
	base := &sqlast.Table{Name: "branches"}
	inner := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{sqlast.NewColumn("id", base)},
		From:    base,
	}
	cte := &sqlast.CTE{Name: "branch_hierarchy", Select: inner, Recursive: true}

	outer := &sqlast.SelectQuery{
		CTEs:    []*sqlast.CTE{cte},
		Columns: []sqlast.Expr{sqlast.Literal(1)},
		From:    &sqlast.Table{Name: "branch_hierarchy"},
	}
	result, err := Compile(outer)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "WITH RECURSIVE branch_hierarchy AS (")
}

func TestCompileLimitOffsetDistinctOn(t *testing.T) {
	table := &sqlast.Table{Name: "artifacts", Alias: "a"}
	limit := 1
	offset := 5
	q := &sqlast.SelectQuery{
		Columns:    []sqlast.Expr{sqlast.NewColumn("id", table)},
		From:       table,
		Distinct:   true,
		DistinctOn: []sqlast.Expr{sqlast.NewColumn("artifact_id", table)},
		OrderBy: []*sqlast.OrderBy{
			{Expr: sqlast.NewColumn("artifact_id", table), Direction: sqlast.Asc},
			{Expr: sqlast.NewColumn("version", table), Direction: sqlast.Desc},
		},
		Limit:  &limit,
		Offset: &offset,
	}
	result, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "SELECT DISTINCT ON (a.artifact_id)")
	assert.Contains(t, result.SQL, "ORDER BY a.artifact_id ASC, a.version DESC")
	assert.Contains(t, result.SQL, "LIMIT 1")
	assert.Contains(t, result.SQL, "OFFSET 5")
}

func TestCompileInWithSubquery(t *testing.T) {
	outer := &sqlast.Table{Name: "widgets", Alias: "w"}
	inner := &sqlast.Table{Name: "turns", Alias: "t"}
	sub := &sqlast.Subquery{
		Select: &sqlast.SelectQuery{
			Columns: []sqlast.Expr{sqlast.NewColumn("id", inner)},
			From:    inner,
			Where:   sqlast.Eq(sqlast.NewColumn("status", inner), sqlast.Literal("committed")),
		},
	}
	q := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{sqlast.NewColumn("id", outer)},
		From:    outer,
		Where:   sqlast.In(sqlast.NewColumn("turn_id", outer), sub),
	}
	result, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "IN (SELECT t.id")
}
