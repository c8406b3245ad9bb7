// Package sqlcompiler renders sqlast nodes to parameterized SQL text,
// grounded in promptview's model2/postgres/sql/compiler.py: a monotonic
// placeholder counter, a param slice built up alongside the text, and an
// exhaustive type switch over every AST variant.
package sqlcompiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/sqlast"
)

// Result is a compiled statement ready to hand to the connection pool.
type Result struct {
	SQL    string
	Params []any
}

// Compiler renders a *sqlast.SelectQuery to SQL. It is not safe for
// concurrent use by multiple goroutines — construct one per compilation.
type Compiler struct {
	params  []any
	counter int
}

// New returns a Compiler ready to compile one query.
func New() *Compiler {
	return &Compiler{counter: 1}
}

// Compile renders q to SQL, returning the text and the ordered parameter
// list for every non-inline Value encountered (spec.md §4.2 rule 1).
func Compile(q *sqlast.SelectQuery) (Result, error) {
	c := New()
	sql, err := c.compileSelect(q)
	if err != nil {
		return Result{}, err
	}
	return Result{SQL: sql, Params: c.params}, nil
}

func (c *Compiler) addParam(value any) string {
	c.params = append(c.params, value)
	placeholder := "$" + strconv.Itoa(c.counter)
	c.counter++
	return placeholder
}

func (c *Compiler) compileSelect(q *sqlast.SelectQuery) (string, error) {
	var b strings.Builder

	if len(q.CTEs) > 0 {
		recursive := false
		for _, cte := range q.CTEs {
			if cte.Recursive {
				recursive = true
			}
		}
		b.WriteString("WITH ")
		if recursive {
			b.WriteString("RECURSIVE ")
		}
		parts := make([]string, len(q.CTEs))
		for i, cte := range q.CTEs {
			inner, err := c.compileSelect(cte.Select)
			if err != nil {
				return "", err
			}
			parts[i] = fmt.Sprintf("%s AS (%s)", cte.Name, inner)
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}

	if q.From == nil && len(q.Columns) > 0 {
		return "", apperror.ErrCompile.WithMessage("SelectQuery has columns but no FROM table")
	}

	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
		if len(q.DistinctOn) > 0 {
			cols := make([]string, len(q.DistinctOn))
			for i, e := range q.DistinctOn {
				s, err := c.compileExpr(e)
				if err != nil {
					return "", err
				}
				cols[i] = s
			}
			b.WriteString(fmt.Sprintf("ON (%s) ", strings.Join(cols, ", ")))
		}
	}

	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		cols := make([]string, len(q.Columns))
		for i, e := range q.Columns {
			s, err := c.compileExpr(e)
			if err != nil {
				return "", err
			}
			cols[i] = s
		}
		b.WriteString(strings.Join(cols, ", "))
	}

	if q.From != nil {
		b.WriteString("\nFROM ")
		b.WriteString(c.compileTable(q.From))
	}

	for _, j := range q.Joins {
		joinSQL, err := c.compileJoin(j)
		if err != nil {
			return "", err
		}
		b.WriteString("\n")
		b.WriteString(joinSQL)
	}

	if q.Where != nil {
		s, err := c.compileExpr(q.Where)
		if err != nil {
			return "", err
		}
		b.WriteString("\nWHERE ")
		b.WriteString(s)
	}

	if len(q.GroupBy) > 0 {
		cols := make([]string, len(q.GroupBy))
		for i, e := range q.GroupBy {
			s, err := c.compileExpr(e)
			if err != nil {
				return "", err
			}
			cols[i] = s
		}
		b.WriteString("\nGROUP BY ")
		b.WriteString(strings.Join(cols, ", "))
	}

	if q.Having != nil {
		s, err := c.compileExpr(q.Having)
		if err != nil {
			return "", err
		}
		b.WriteString("\nHAVING ")
		b.WriteString(s)
	}

	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			s, err := c.compileExpr(o.Expr)
			if err != nil {
				return "", err
			}
			terms[i] = fmt.Sprintf("%s %s", s, o.Direction)
		}
		b.WriteString("\nORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}

	if q.Limit != nil {
		b.WriteString(fmt.Sprintf("\nLIMIT %d", *q.Limit))
	}
	if q.Offset != nil {
		b.WriteString(fmt.Sprintf("\nOFFSET %d", *q.Offset))
	}

	if q.Union != nil {
		rhs, err := c.compileSelect(q.Union)
		if err != nil {
			return "", err
		}
		b.WriteString("\nUNION ALL\n")
		b.WriteString(rhs)
	}

	return b.String(), nil
}

func (c *Compiler) compileTable(t *sqlast.Table) string {
	if t.Alias != "" {
		return fmt.Sprintf("%s AS %s", t.Name, t.Alias)
	}
	return t.Name
}

func (c *Compiler) compileJoin(j *sqlast.Join) (string, error) {
	var target string
	switch tbl := j.Table.(type) {
	case *sqlast.Table:
		target = c.compileTable(tbl)
	case *sqlast.Subquery:
		inner, err := c.compileSelect(tbl.Select)
		if err != nil {
			return "", err
		}
		target = fmt.Sprintf("(%s) AS %s", inner, tbl.Alias)
	default:
		return "", apperror.ErrCompile.WithMessage(fmt.Sprintf("unsupported join target type %T", j.Table))
	}

	cond, err := c.compileExpr(j.Condition)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s JOIN %s ON %s", j.Kind, target, cond), nil
}

func (c *Compiler) compileExpr(e sqlast.Expr) (string, error) {
	switch expr := e.(type) {
	case *sqlast.Column:
		prefix := ""
		if expr.Table != nil {
			prefix = expr.Table.Ref() + "."
		}
		base := prefix + expr.Name
		if expr.Alias != "" {
			return fmt.Sprintf("%s AS %s", base, expr.Alias), nil
		}
		return base, nil

	case *sqlast.Value:
		if expr.Inline {
			return inlineLiteral(expr.Raw), nil
		}
		return c.addParam(expr.Raw), nil

	case *sqlast.BinaryExpr:
		left, err := c.compileExpr(expr.Left)
		if err != nil {
			return "", err
		}
		right, err := c.compileExpr(expr.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, expr.Operator, right), nil

	case *sqlast.AndExpr:
		parts := make([]string, len(expr.Conditions))
		for i, cond := range expr.Conditions {
			s, err := c.compileExpr(cond)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, " AND ")), nil

	case *sqlast.OrExpr:
		parts := make([]string, len(expr.Conditions))
		for i, cond := range expr.Conditions {
			s, err := c.compileExpr(cond)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, " OR ")), nil

	case *sqlast.NotExpr:
		s, err := c.compileExpr(expr.Condition)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(NOT %s)", s), nil

	case *sqlast.IsNullExpr:
		s, err := c.compileExpr(expr.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s IS NULL)", s), nil

	case *sqlast.InExpr:
		val, err := c.compileExpr(expr.Value)
		if err != nil {
			return "", err
		}
		switch opts := expr.Options.(type) {
		case *sqlast.ExprList:
			placeholders := make([]string, len(opts.Items))
			for i, item := range opts.Items {
				s, err := c.compileExpr(item)
				if err != nil {
					return "", err
				}
				placeholders[i] = s
			}
			return fmt.Sprintf("(%s IN (%s))", val, strings.Join(placeholders, ", ")), nil
		case *sqlast.Subquery:
			inner, err := c.compileSelect(opts.Select)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("(%s IN (%s))", val, inner), nil
		default:
			return "", apperror.ErrCompile.WithMessage(fmt.Sprintf("unsupported In options type %T", expr.Options))
		}

	case *sqlast.BetweenExpr:
		val, err := c.compileExpr(expr.Value)
		if err != nil {
			return "", err
		}
		lower, err := c.compileExpr(expr.Lower)
		if err != nil {
			return "", err
		}
		upper, err := c.compileExpr(expr.Upper)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s BETWEEN %s AND %s)", val, lower, upper), nil

	case *sqlast.LikeExpr:
		val, err := c.compileExpr(expr.Value)
		if err != nil {
			return "", err
		}
		pattern, err := c.compileExpr(expr.Pattern)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s LIKE %s)", val, pattern), nil

	case *sqlast.Coalesce:
		args := make([]string, len(expr.Values))
		for i, v := range expr.Values {
			s, err := c.compileExpr(v)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		out := fmt.Sprintf("COALESCE(%s)", strings.Join(args, ", "))
		if expr.Alias != "" {
			out += " AS " + expr.Alias
		}
		return out, nil

	case *sqlast.FunctionExpr:
		args := make([]string, len(expr.Args))
		for i, a := range expr.Args {
			s, err := c.compileExpr(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		argList := strings.Join(args, ", ")
		if expr.Distinct {
			argList = "DISTINCT " + argList
		}
		out := fmt.Sprintf("%s(%s)", expr.Name, argList)
		if expr.FilterWhere != nil {
			s, err := c.compileExpr(expr.FilterWhere)
			if err != nil {
				return "", err
			}
			out += fmt.Sprintf(" FILTER (WHERE %s)", s)
		}
		if expr.Alias != "" {
			out += " AS " + expr.Alias
		}
		return out, nil

	case *sqlast.SelectQuery:
		inner, err := c.compileSelect(expr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s)", inner), nil

	case *sqlast.Subquery:
		inner, err := c.compileSelect(expr.Select)
		if err != nil {
			return "", err
		}
		out := fmt.Sprintf("(%s)", inner)
		if expr.Alias != "" {
			out += " AS " + expr.Alias
		}
		return out, nil

	default:
		return "", apperror.ErrCompile.WithMessage(fmt.Sprintf("unknown expression type %T", e))
	}
}

// inlineLiteral renders an inline Value per spec.md §4.2 rule 4: strings
// are single-quoted with embedded quotes doubled, numerics and bools are
// bare, nil becomes NULL.
func inlineLiteral(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", v)
	}
}
