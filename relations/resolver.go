package relations

import (
	"context"
	"fmt"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/schema"
)

// Resolver auto-fills reverse foreign keys and builds the scalar-FK/junction
// queries AddChild and LoadMany compile against. It holds no connection —
// callers supply one per call, matching the rest of the package's style.
type Resolver struct {
	manager *schema.NamespaceManager
}

// NewResolver binds a Resolver to manager's registry.
func NewResolver(manager *schema.NamespaceManager) *Resolver {
	return &Resolver{manager: manager}
}

// AutoFillForeignKeys walks ns's foreign-key fields and, for each one absent
// or nil in fields, consults ctx's model-in-context stack (innermost first)
// for an instance of the referenced namespace, assigning its primary key.
// A required FK field with no value supplied and no match in context fails
// with apperror.ErrMissingForeignKey (spec.md §4.5).
func (r *Resolver) AutoFillForeignKeys(ctx context.Context, ns *schema.Namespace, fields map[string]any) error {
	stack := stackFrom(ctx)
	for _, f := range ns.Fields() {
		if !f.IsForeignKey {
			continue
		}
		if v, ok := fields[f.Name]; ok && v != nil {
			continue
		}

		var pk any
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].namespace.TableName == f.ReferencedNS {
				pk = stack[i].pk
				break
			}
		}
		if pk != nil {
			fields[f.Name] = pk
			continue
		}
		if !f.IsOptional {
			return apperror.ErrMissingForeignKey.WithMessage(
				fmt.Sprintf("namespace %q: field %q has no value and no %q is in context", ns.TableName, f.Name, f.ReferencedNS))
		}
	}
	return nil
}
