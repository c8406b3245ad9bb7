// Package queryset implements the fluent query-set builder of spec.md
// §4.3: a stack of (query, model, table alias) frames that operations
// mutate in place, compiled to SQL by package sqlcompiler.
//
// Grounded in promptview's model2/postgres/query_set3.py (SelectQuerySet):
// the same alias-allocation scheme, the same json_agg/COALESCE nested
// projection for joins, and the same first()/last() single-row adapter.
package queryset

import (
	"context"
	"fmt"
	"strings"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pool"
	"github.com/emergent-company/turnbase/schema"
	"github.com/emergent-company/turnbase/sqlast"
	"github.com/emergent-company/turnbase/sqlcompiler"
)

// frame is one level of the query/model/table stack. Depth 1 is the root
// query; depth ≥ 2 frames belong to joined relations and compile as
// correlated subqueries rather than flat JOINs (spec.md §4.3).
type frame struct {
	query *sqlast.SelectQuery
	ns    *schema.Namespace
	table *sqlast.Table
}

// QuerySet builds one SELECT against a root namespace, resolving relation
// names against a NamespaceManager.
type QuerySet struct {
	manager *schema.NamespaceManager

	stack      []*frame
	aliasUsed  map[string]bool
	aliasOrder []string

	err error
}

// New starts a QuerySet rooted at tableName.
func New(manager *schema.NamespaceManager, tableName string) *QuerySet {
	qs := &QuerySet{manager: manager, aliasUsed: make(map[string]bool)}
	ns := manager.Namespace(tableName)
	if ns == nil {
		qs.err = apperror.ErrSchema.WithMessage(fmt.Sprintf("unknown namespace %q", tableName))
		return qs
	}
	table := &sqlast.Table{Name: tableName, Alias: qs.allocAlias(tableName)}
	root := &frame{
		query: &sqlast.SelectQuery{From: table},
		ns:    ns,
		table: table,
	}
	qs.stack = append(qs.stack, root)
	return qs
}

func (qs *QuerySet) allocAlias(name string) string {
	base := strings.ToLower(name[:1])
	alias := base
	for i := 0; i < 10 && qs.aliasUsed[alias]; i++ {
		alias = fmt.Sprintf("%s%d", base, i)
	}
	qs.aliasUsed[alias] = true
	return alias
}

func (qs *QuerySet) top() *frame {
	return qs.stack[len(qs.stack)-1]
}

func (qs *QuerySet) fail(err error) *QuerySet {
	if qs.err == nil {
		qs.err = err
	}
	return qs
}

// Err returns the first error encountered building the query set, if any.
func (qs *QuerySet) Err() error { return qs.err }

// Select projects the given field names off the current frame's model,
// or every declared field when fields is "*" or empty.
func (qs *QuerySet) Select(fields ...string) *QuerySet {
	if qs.err != nil {
		return qs
	}
	f := qs.top()
	if len(fields) == 0 || (len(fields) == 1 && fields[0] == "*") {
		for _, name := range f.ns.FieldNames() {
			f.query.Columns = append(f.query.Columns, sqlast.NewColumn(name, f.table))
		}
		return qs
	}
	for _, name := range fields {
		if !f.ns.HasField(name) {
			return qs.fail(apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q has no field %q", f.ns.TableName, name)))
		}
		f.query.Columns = append(f.query.Columns, sqlast.NewColumn(name, f.table))
	}
	return qs
}

// Where conjoins expr onto the current frame's WHERE clause.
func (qs *QuerySet) Where(expr sqlast.Expr) *QuerySet {
	if qs.err != nil {
		return qs
	}
	f := qs.top()
	if f.query.Where == nil {
		f.query.Where = expr
	} else {
		f.query.Where = f.query.Where.And(expr)
	}
	return qs
}

// Filter is sugar over Where for equality conjunctions supplied as
// kwargs, mirroring SelectQuerySet.where(**kwargs): each entry becomes
// `column = $param`, all conjoined.
func (qs *QuerySet) Filter(kwargs map[string]any) *QuerySet {
	if qs.err != nil {
		return qs
	}
	f := qs.top()
	var conds []sqlast.Expr
	for field, value := range kwargs {
		if !f.ns.HasField(field) {
			return qs.fail(apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q has no field %q", f.ns.TableName, field)))
		}
		conds = append(conds, sqlast.Eq(sqlast.NewColumn(field, f.table), sqlast.Param(value)))
	}
	if len(conds) == 0 {
		return qs
	}
	if len(conds) == 1 {
		return qs.Where(conds[0])
	}
	combined := sqlast.And(conds...)
	return qs.Where(combined)
}

// OrderBy accepts field names; a leading "-" means descending.
func (qs *QuerySet) OrderBy(fields ...string) *QuerySet {
	if qs.err != nil {
		return qs
	}
	f := qs.top()
	for _, field := range fields {
		direction := sqlast.Asc
		name := field
		if strings.HasPrefix(field, "-") {
			direction = sqlast.Desc
			name = field[1:]
		}
		f.query.OrderBy = append(f.query.OrderBy, &sqlast.OrderBy{
			Expr:      sqlast.NewColumn(name, f.table),
			Direction: direction,
		})
	}
	return qs
}

// Limit sets LIMIT n on the current frame.
func (qs *QuerySet) Limit(n int) *QuerySet {
	if qs.err != nil {
		return qs
	}
	qs.top().query.Limit = &n
	return qs
}

// Offset sets OFFSET n on the current frame.
func (qs *QuerySet) Offset(n int) *QuerySet {
	if qs.err != nil {
		return qs
	}
	qs.top().query.Offset = &n
	return qs
}

// First orders ascending by the primary key and limits to 1.
func (qs *QuerySet) First() *QuerySet {
	if qs.err != nil {
		return qs
	}
	pk := qs.top().ns.PrimaryKey()
	if pk == nil {
		return qs.fail(apperror.ErrSchema.WithMessage("namespace has no primary key"))
	}
	return qs.OrderBy(pk.Name).Limit(1)
}

// Last orders descending by the primary key and limits to 1.
func (qs *QuerySet) Last() *QuerySet {
	if qs.err != nil {
		return qs
	}
	pk := qs.top().ns.PrimaryKey()
	if pk == nil {
		return qs.fail(apperror.ErrSchema.WithMessage("namespace has no primary key"))
	}
	return qs.OrderBy("-" + pk.Name).Limit(1)
}

// WithCTE prepends a named CTE to the root query.
func (qs *QuerySet) WithCTE(name string, sub *sqlast.SelectQuery, recursive bool) *QuerySet {
	if qs.err != nil {
		return qs
	}
	root := qs.stack[0]
	root.query.CTEs = append(root.query.CTEs, &sqlast.CTE{Name: name, Select: sub, Recursive: recursive})
	return qs
}

// JoinCTE joins the current frame against a named CTE on localCol = cteCol.
func (qs *QuerySet) JoinCTE(name, localCol, cteCol, alias string, kind sqlast.JoinKind) *QuerySet {
	if qs.err != nil {
		return qs
	}
	f := qs.top()
	cteTable := &sqlast.Table{Name: name, Alias: alias}
	f.query.Joins = append(f.query.Joins, &sqlast.Join{
		Table: cteTable,
		Kind:  kind,
		Condition: sqlast.Eq(
			sqlast.NewColumn(localCol, f.table),
			sqlast.NewColumn(cteCol, cteTable),
		),
	})
	return qs
}

// Join resolves relationName against the current frame's namespace and
// attaches the related rows as a nested JSON projection. At depth 1 this
// is a flat JOIN with a json_agg/COALESCE column; at depth ≥ 2 it is a
// correlated subquery, so a grandchild's aggregation is independent of its
// siblings' cardinality (spec.md §4.3).
func (qs *QuerySet) Join(relationName string) *QuerySet {
	if qs.err != nil {
		return qs
	}
	parent := qs.top()
	rel := parent.ns.Relation(relationName)
	if rel == nil {
		return qs.fail(apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q has no relation %q", parent.ns.TableName, relationName)))
	}
	childNS := qs.manager.Namespace(rel.ForeignNamespace)
	if childNS == nil {
		return qs.fail(apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q targets unknown namespace %q", relationName, rel.ForeignNamespace)))
	}

	childTable := &sqlast.Table{Name: childNS.TableName, Alias: qs.allocAlias(childNS.TableName)}
	childPK := sqlast.NewColumn(rel.ForeignKey, childTable)

	obj := jsonBuildObjectForNamespace(childNS, childTable)

	if len(qs.stack) == 1 {
		parent.query.Joins = append(parent.query.Joins, &sqlast.Join{
			Table: childTable,
			Kind:  sqlast.JoinLeft,
			Condition: sqlast.Eq(
				sqlast.NewColumn(rel.PrimaryKey, parent.table),
				sqlast.NewColumn(rel.ForeignKey, childTable),
			),
		})
		agg := sqlast.Func("json_agg", obj).WithDistinct().WithFilter(sqlast.Not(sqlast.IsNull(childPK)))
		nested := sqlast.NewCoalesce(relationName, agg, sqlast.Literal("[]"))
		parent.query.Columns = append(parent.query.Columns, nested)

		if len(parent.query.GroupBy) == 0 {
			pk := parent.ns.PrimaryKey()
			parent.query.GroupBy = []sqlast.Expr{sqlast.NewColumn(pk.Name, parent.table)}
		}
	} else {
		sub := &sqlast.SelectQuery{
			Columns: []sqlast.Expr{sqlast.Func("json_agg", obj)},
			From:    childTable,
			Where: sqlast.Eq(
				sqlast.NewColumn(rel.ForeignKey, childTable),
				sqlast.NewColumn(rel.PrimaryKey, parent.table),
			),
		}
		nested := sqlast.NewCoalesce(relationName, sub, sqlast.Literal("[]"))
		parent.query.Columns = append(parent.query.Columns, nested)
	}

	child := &frame{
		query: &sqlast.SelectQuery{From: childTable, Columns: []sqlast.Expr{}},
		ns:    childNS,
		table: childTable,
	}
	qs.stack = append(qs.stack, child)
	return qs
}

// Pop returns the builder to its parent frame after a Join call, letting
// callers continue chaining methods against the root query.
func (qs *QuerySet) Pop() *QuerySet {
	if len(qs.stack) > 1 {
		qs.stack = qs.stack[:len(qs.stack)-1]
	}
	return qs
}

func jsonBuildObjectForNamespace(ns *schema.Namespace, table *sqlast.Table) *sqlast.FunctionExpr {
	var pairs []sqlast.ColumnPair
	for _, name := range ns.FieldNames() {
		pairs = append(pairs, sqlast.ColumnPair{Key: name, Value: sqlast.NewColumn(name, table)})
	}
	return sqlast.JSONBuildObject(pairs...)
}

// Compile renders the root query to SQL.
func (qs *QuerySet) Compile() (sqlcompiler.Result, error) {
	if qs.err != nil {
		return sqlcompiler.Result{}, qs.err
	}
	return sqlcompiler.Compile(qs.stack[0].query)
}

// Execute compiles and runs the query set, packing each returned row
// through the root namespace's field deserializers.
func (qs *QuerySet) Execute(ctx context.Context, db pool.DB) ([]map[string]any, error) {
	result, err := qs.Compile()
	if err != nil {
		return nil, err
	}
	rows, err := db.Fetch(ctx, result.SQL, result.Params...)
	if err != nil {
		return nil, err
	}
	ns := qs.stack[0].ns
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		packed, err := ns.PackRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, packed)
	}
	return out, nil
}

// ExecuteOne runs Execute and returns the first row, or nil if none
// matched — the Go analogue of QuerySetSingleAdapter.
func (qs *QuerySet) ExecuteOne(ctx context.Context, db pool.DB) (map[string]any, error) {
	rows, err := qs.Execute(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
