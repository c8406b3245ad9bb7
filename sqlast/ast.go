// Package sqlast defines the SQL abstract syntax tree compiled by package
// sqlcompiler. It is a closed sum type (spec.md §4.2): every node
// implements Expr or Node, and sqlcompiler exhaustively switches over the
// concrete type, failing with apperror.ErrCompile on anything else.
//
// Grounded in promptview's model2/postgres/sql/{queries,expressions,joins}.py,
// translated from Python's duck-typed class hierarchy into Go's sealed
// interface + type switch idiom.
package sqlast

// Node is any AST node the compiler knows how to render.
type Node interface {
	isNode()
}

// Expr is a Node that can appear inside a WHERE/HAVING/SELECT-list
// position — a scalar or boolean-valued expression.
type Expr interface {
	Node
	isExpr()

	// And/Or let callers build predicates fluently (negation is the
	// package-level Not function),
	// `a.And(b).Or(c)`, mirroring the Python Expression.__and__/__or__.
	And(Expr) Expr
	Or(Expr) Expr
}

type base struct{}

func (base) isNode() {}

// exprBase supplies isNode/isExpr to every concrete Expr type; each type
// still implements its own And/Or so the flattened node holds a reference
// to itself rather than to exprBase.
type exprBase struct{ base }

func (exprBase) isExpr() {}

// Table references a namespace's backing table, optionally aliased.
type Table struct {
	base
	Name  string
	Alias string
}

func (t *Table) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// Column references name, optionally qualified by table and aliased in the
// projection list.
type Column struct {
	exprBase
	Name  string
	Table *Table
	Alias string
}

func NewColumn(name string, table *Table) *Column { return &Column{Name: name, Table: table} }

func (c *Column) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{c, other}} }
func (c *Column) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{c, other}} }

// Value is a literal. Inline values are rendered directly into the SQL
// text (quoted strings, bare numbers); non-inline values are bound as a
// parameter and rendered as $N (spec.md §4.2 rule 4).
type Value struct {
	exprBase
	Raw    any
	Inline bool
}

func Param(v any) *Value  { return &Value{Raw: v, Inline: false} }
func Literal(v any) *Value { return &Value{Raw: v, Inline: true} }

func (v *Value) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{v, other}} }
func (v *Value) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{v, other}} }

// BinaryOp enumerates the comparison operators (spec.md §4.2).
type BinaryOp string

const (
	OpEq  BinaryOp = "="
	OpNeq BinaryOp = "!="
	OpGt  BinaryOp = ">"
	OpGte BinaryOp = ">="
	OpLt  BinaryOp = "<"
	OpLte BinaryOp = "<="
)

// BinaryExpr is a comparison between two expressions.
type BinaryExpr struct {
	exprBase
	Left     Expr
	Operator BinaryOp
	Right    Expr
}

func Eq(left, right Expr) *BinaryExpr  { return &BinaryExpr{Left: left, Operator: OpEq, Right: right} }
func Neq(left, right Expr) *BinaryExpr { return &BinaryExpr{Left: left, Operator: OpNeq, Right: right} }
func Gt(left, right Expr) *BinaryExpr  { return &BinaryExpr{Left: left, Operator: OpGt, Right: right} }
func Gte(left, right Expr) *BinaryExpr { return &BinaryExpr{Left: left, Operator: OpGte, Right: right} }
func Lt(left, right Expr) *BinaryExpr  { return &BinaryExpr{Left: left, Operator: OpLt, Right: right} }
func Lte(left, right Expr) *BinaryExpr { return &BinaryExpr{Left: left, Operator: OpLte, Right: right} }

func (b *BinaryExpr) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{b, other}} }
func (b *BinaryExpr) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{b, other}} }

// AndExpr flattens a conjunction of conditions; constructing And(a, b) where
// a is itself an AndExpr appends rather than nests, matching the "logical
// ones are flattened" rule in spec.md §4.2.
type AndExpr struct {
	exprBase
	Conditions []Expr
}

func And(conditions ...Expr) *AndExpr {
	out := &AndExpr{}
	for _, c := range conditions {
		out.Conditions = append(out.Conditions, flattenAnd(c)...)
	}
	return out
}

func flattenAnd(e Expr) []Expr {
	if a, ok := e.(*AndExpr); ok {
		return a.Conditions
	}
	return []Expr{e}
}

func (a *AndExpr) And(other Expr) Expr {
	return And(append(append([]Expr{}, a.Conditions...), other)...)
}
func (a *AndExpr) Or(other Expr) Expr { return &OrExpr{Conditions: []Expr{a, other}} }

// OrExpr flattens a disjunction of conditions.
type OrExpr struct {
	exprBase
	Conditions []Expr
}

func Or(conditions ...Expr) *OrExpr {
	out := &OrExpr{}
	for _, c := range conditions {
		out.Conditions = append(out.Conditions, flattenOr(c)...)
	}
	return out
}

func flattenOr(e Expr) []Expr {
	if o, ok := e.(*OrExpr); ok {
		return o.Conditions
	}
	return []Expr{e}
}

func (o *OrExpr) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{o, other}} }
func (o *OrExpr) Or(other Expr) Expr {
	return Or(append(append([]Expr{}, o.Conditions...), other)...)
}

// NotExpr negates a condition.
type NotExpr struct {
	exprBase
	Condition Expr
}

func Not(e Expr) *NotExpr { return &NotExpr{Condition: e} }

func (n *NotExpr) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{n, other}} }
func (n *NotExpr) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{n, other}} }

// IsNullExpr tests an expression for SQL NULL.
type IsNullExpr struct {
	exprBase
	Value Expr
}

func IsNull(e Expr) *IsNullExpr { return &IsNullExpr{Value: e} }

func (i *IsNullExpr) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{i, other}} }
func (i *IsNullExpr) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{i, other}} }

// InExpr tests set membership; Options is either a literal slice of Expr or
// a *Subquery.
type InExpr struct {
	exprBase
	Value   Expr
	Options Node // []Expr wrapped in ExprList, or *Subquery
}

func In(value Expr, options Node) *InExpr { return &InExpr{Value: value, Options: options} }

func (i *InExpr) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{i, other}} }
func (i *InExpr) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{i, other}} }

// ExprList is a parenthesized, comma-joined list of expressions — the
// non-subquery form of an In's Options.
type ExprList struct {
	base
	Items []Expr
}

func (ExprList) isNode() {}

// BetweenExpr tests value ∈ [lower, upper].
type BetweenExpr struct {
	exprBase
	Value Expr
	Lower Expr
	Upper Expr
}

func Between(value, lower, upper Expr) *BetweenExpr {
	return &BetweenExpr{Value: value, Lower: lower, Upper: upper}
}

func (b *BetweenExpr) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{b, other}} }
func (b *BetweenExpr) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{b, other}} }

// LikeExpr is a pattern match.
type LikeExpr struct {
	exprBase
	Value   Expr
	Pattern Expr
}

func Like(value, pattern Expr) *LikeExpr { return &LikeExpr{Value: value, Pattern: pattern} }

func (l *LikeExpr) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{l, other}} }
func (l *LikeExpr) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{l, other}} }

// FunctionExpr renders name(args...) with optional DISTINCT,
// FILTER (WHERE ...), and an alias (spec.md §4.2 rule 3). Used for
// json_agg, jsonb_build_object, count, and similar.
type FunctionExpr struct {
	exprBase
	Name        string
	Args        []Expr
	Distinct    bool
	FilterWhere Expr
	Alias       string
}

func Func(name string, args ...Expr) *FunctionExpr { return &FunctionExpr{Name: name, Args: args} }

func (f *FunctionExpr) WithAlias(alias string) *FunctionExpr { f.Alias = alias; return f }
func (f *FunctionExpr) WithFilter(where Expr) *FunctionExpr  { f.FilterWhere = where; return f }
func (f *FunctionExpr) WithDistinct() *FunctionExpr          { f.Distinct = true; return f }

func (f *FunctionExpr) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{f, other}} }
func (f *FunctionExpr) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{f, other}} }

// JSONBuildObject builds a jsonb_build_object(key1, col1, key2, col2, ...)
// call from a name-ordered set of columns, mirroring
// expressions.py's json_build_object helper.
func JSONBuildObject(pairs ...ColumnPair) *FunctionExpr {
	var args []Expr
	for _, p := range pairs {
		args = append(args, Literal(p.Key), p.Value)
	}
	return Func("jsonb_build_object", args...)
}

// ColumnPair is a (json key, value expr) pair for JSONBuildObject.
type ColumnPair struct {
	Key   string
	Value Expr
}

// Coalesce renders COALESCE(values...), optionally aliased.
type Coalesce struct {
	exprBase
	Values []Expr
	Alias  string
}

func NewCoalesce(alias string, values ...Expr) *Coalesce {
	return &Coalesce{Values: values, Alias: alias}
}

func (c *Coalesce) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{c, other}} }
func (c *Coalesce) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{c, other}} }

// JoinKind is a JOIN variant.
type JoinKind string

const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
	JoinRight JoinKind = "RIGHT"
	JoinFull  JoinKind = "FULL"
)

// Join is one joined table/subquery of a SelectQuery's FROM clause.
type Join struct {
	base
	Table     Node // *Table or *Subquery
	Condition Expr
	Kind      JoinKind
	Alias     string
}

// OrderDirection is ASC or DESC.
type OrderDirection string

const (
	Asc  OrderDirection = "ASC"
	Desc OrderDirection = "DESC"
)

// OrderBy is one ORDER BY term.
type OrderBy struct {
	base
	Expr      Expr
	Direction OrderDirection
}

// CTE is one named entry of a WITH clause.
type CTE struct {
	base
	Name      string
	Select    *SelectQuery
	Recursive bool
}

// SelectQuery is the AST root for a query-set's compiled statement
// (spec.md §4.2: columns/from/joins/where/group_by/having/order_by/
// limit/offset/distinct/ctes).
type SelectQuery struct {
	base
	Columns    []Expr
	From       *Table
	Joins      []*Join
	Where      Expr
	GroupBy    []Expr
	Having     Expr
	OrderBy    []*OrderBy
	Limit      *int
	Offset     *int
	Distinct   bool
	DistinctOn []Expr
	CTEs       []*CTE

	// Union, if set, unions this query with another via UNION ALL — the
	// base-case/recursive-case split of a recursive CTE (spec.md §4.4).
	Union *SelectQuery
}

func (s *SelectQuery) isExpr() {}

func (s *SelectQuery) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{s, other}} }
func (s *SelectQuery) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{s, other}} }

// Subquery wraps a SelectQuery for use in a FROM/JOIN/IN position, aliased.
type Subquery struct {
	exprBase
	Select *SelectQuery
	Alias  string
}

func (s *Subquery) And(other Expr) Expr { return &AndExpr{Conditions: []Expr{s, other}} }
func (s *Subquery) Or(other Expr) Expr  { return &OrExpr{Conditions: []Expr{s, other}} }
