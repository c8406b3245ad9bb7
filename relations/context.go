// Package relations implements the relation resolver of spec.md §4.5: one-
// to-one/one-to-many scalar-FK linking, many-to-many junction-row traversal,
// and reverse-FK auto-fill from the "current model in context" stack.
//
// Grounded on promptview's relation.py (Relation.query's foreign_key/
// primary_id join) and context.py (the contextvars-backed Context carrying
// the active branch/turn/partition). Go has no contextvars equivalent, but
// context.Context values are exactly as task-local: a child context produced
// by WithModel never affects its parent or any sibling goroutine's context,
// matching spec.md §5's "task-local, not global" requirement.
package relations

import (
	"context"

	"github.com/emergent-company/turnbase/schema"
)

type modelInContext struct {
	namespace *schema.Namespace
	pk        any
}

type contextStackKey struct{}

// WithModel returns a copy of ctx with (ns, pk) pushed onto the current
// model-in-context stack, consulted by AutoFillForeignKeys when a child's FK
// field is left unset on save.
func WithModel(ctx context.Context, ns *schema.Namespace, pk any) context.Context {
	stack, _ := ctx.Value(contextStackKey{}).([]modelInContext)
	next := make([]modelInContext, len(stack), len(stack)+1)
	copy(next, stack)
	next = append(next, modelInContext{namespace: ns, pk: pk})
	return context.WithValue(ctx, contextStackKey{}, next)
}

func stackFrom(ctx context.Context) []modelInContext {
	stack, _ := ctx.Value(contextStackKey{}).([]modelInContext)
	return stack
}
