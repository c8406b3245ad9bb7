package relations

import (
	"context"
	"fmt"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pool"
	"github.com/emergent-company/turnbase/schema"
	"github.com/emergent-company/turnbase/sqlast"
	"github.com/emergent-company/turnbase/sqlcompiler"
)

// AddChild implements spec.md §4.5's "Adding a child sets
// child[foreign_key] = parent[primary_key] and saves" for one-to-one/
// one-to-many relations, and "add(child) first saves the child, then
// inserts a junction row with (parent.pk, child.pk)" for many-to-many.
// parentPK is the owning row's primary-key value; childFields is the
// child's (or, for many-to-many, the related row's) payload, excluding the
// relation's own key columns, which AddChild assigns itself.
func (r *Resolver) AddChild(ctx context.Context, db pool.DB, parentNS *schema.Namespace, parentPK any, relationName string, childFields map[string]any) (map[string]any, error) {
	rel := parentNS.Relation(relationName)
	if rel == nil {
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q has no relation %q", parentNS.TableName, relationName))
	}
	childNS := r.manager.Namespace(rel.ForeignNamespace)
	if childNS == nil {
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q targets unknown namespace %q", relationName, rel.ForeignNamespace))
	}

	switch rel.Kind {
	case schema.RelationOneToOne, schema.RelationOneToMany:
		fields := copyFields(childFields)
		fields[rel.ForeignKey] = parentPK
		return InsertRow(ctx, db, childNS, fields)

	case schema.RelationManyToMany:
		junctionNS := r.manager.Namespace(rel.JunctionNamespace)
		if junctionNS == nil {
			return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q has unknown junction namespace %q", relationName, rel.JunctionNamespace))
		}
		childRow, err := InsertRow(ctx, db, childNS, childFields)
		if err != nil {
			return nil, err
		}
		childPKField := childNS.PrimaryKey()
		if childPKField == nil {
			return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q has no primary key", childNS.TableName))
		}
		childPK := childRow[childPKField.Name]

		junctionFields := map[string]any{
			rel.JunctionLocalKey: parentPK,
			rel.JunctionOtherKey: childPK,
		}
		if _, err := InsertRow(ctx, db, junctionNS, junctionFields); err != nil {
			return nil, err
		}
		return childRow, nil

	default:
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q has unsupported kind %q", relationName, rel.Kind))
	}
}

// LoadMany implements spec.md §4.5's read side: for one-to-one/one-to-many,
// "querying child.foreign_key = parent.primary_key"; for many-to-many,
// traversing "junction.local_key = parent.pk then junction.other_key =
// child.pk". Results are in child-namespace logical form (schema.PackRecord
// applied).
func (r *Resolver) LoadMany(ctx context.Context, db pool.DB, parentNS *schema.Namespace, parentPK any, relationName string) ([]map[string]any, error) {
	rel := parentNS.Relation(relationName)
	if rel == nil {
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q has no relation %q", parentNS.TableName, relationName))
	}
	childNS := r.manager.Namespace(rel.ForeignNamespace)
	if childNS == nil {
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q targets unknown namespace %q", relationName, rel.ForeignNamespace))
	}

	var q *sqlast.SelectQuery
	switch rel.Kind {
	case schema.RelationOneToOne, schema.RelationOneToMany:
		childTable := &sqlast.Table{Name: childNS.TableName}
		q = &sqlast.SelectQuery{
			From:  childTable,
			Where: sqlast.Eq(sqlast.NewColumn(rel.ForeignKey, childTable), sqlast.Param(parentPK)),
		}

	case schema.RelationManyToMany:
		junctionNS := r.manager.Namespace(rel.JunctionNamespace)
		if junctionNS == nil {
			return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q has unknown junction namespace %q", relationName, rel.JunctionNamespace))
		}
		childTable := &sqlast.Table{Name: childNS.TableName, Alias: "c"}
		junctionTable := &sqlast.Table{Name: junctionNS.TableName, Alias: "j"}
		childPKField := childNS.PrimaryKey()
		if childPKField == nil {
			return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q has no primary key", childNS.TableName))
		}
		q = &sqlast.SelectQuery{
			From: childTable,
			Joins: []*sqlast.Join{{
				Table: junctionTable,
				Kind:  sqlast.JoinInner,
				Condition: sqlast.Eq(
					sqlast.NewColumn(rel.JunctionOtherKey, junctionTable),
					sqlast.NewColumn(childPKField.Name, childTable),
				),
			}},
			Where: sqlast.Eq(sqlast.NewColumn(rel.JunctionLocalKey, junctionTable), sqlast.Param(parentPK)),
		}

	default:
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q has unsupported kind %q", relationName, rel.Kind))
	}

	result, err := sqlcompiler.Compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.Fetch(ctx, result.SQL, result.Params...)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		packed, err := childNS.PackRecord(row)
		if err != nil {
			return nil, err
		}
		out[i] = packed
	}
	return out, nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	return out
}
