package versioning

import "github.com/emergent-company/turnbase/sqlast"

// BranchHierarchyCTE builds the recursive branch_hierarchy CTE of spec.md
// §4.4: starting from branchID, it walks up forked_from_branch_id links,
// carrying each ancestor's forked_from_index forward as the descendant's
// start_turn_index, exactly as the WITH RECURSIVE text in spec.md §4.4 and
// the CTE construction in version_control_models.py's create_versioned_cte.
func BranchHierarchyCTE(branchID int) *sqlast.CTE {
	branches := &sqlast.Table{Name: "branches"}
	base := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{
			sqlast.NewColumn("id", branches),
			sqlast.NewColumn("forked_from_index", branches),
			sqlast.NewColumn("forked_from_branch_id", branches),
			&sqlast.Column{Name: "current_index", Table: branches, Alias: "start_turn_index"},
		},
		From:  branches,
		Where: sqlast.Eq(sqlast.NewColumn("id", branches), sqlast.Param(branchID)),
	}

	b := &sqlast.Table{Name: "branches", Alias: "b"}
	bh := &sqlast.Table{Name: "branch_hierarchy", Alias: "bh"}
	recursive := &sqlast.SelectQuery{
		Columns: []sqlast.Expr{
			sqlast.NewColumn("id", b),
			sqlast.NewColumn("forked_from_index", b),
			sqlast.NewColumn("forked_from_branch_id", b),
			&sqlast.Column{Name: "forked_from_index", Table: bh, Alias: "start_turn_index"},
		},
		From: b,
		Joins: []*sqlast.Join{{
			Table:     bh,
			Kind:      sqlast.JoinInner,
			Condition: sqlast.Eq(sqlast.NewColumn("id", b), sqlast.NewColumn("forked_from_branch_id", bh)),
		}},
	}

	base.Union = recursive

	return &sqlast.CTE{Name: "branch_hierarchy", Select: base, Recursive: true}
}

// VisibleRowsQuery returns the FROM branch_hierarchy / JOIN turns / JOIN
// targetTable skeleton of a versioned read (spec.md §4.4): "the caller then
// joins turns t ON t.branch_id = bh.id AND t.index <= bh.start_turn_index
// AND t.status = 'committed', and finally joins the target table on
// turn_id = t.id". Callers attach Columns/Where/GroupBy, and must prepend
// the CTE returned by BranchHierarchyCTE to the resulting query's CTEs.
//
// partitionID, when non-nil, adds the optional tenancy predicate described
// in SPEC_FULL's partition-dimension resolution: an extra equality on
// turns.partition_id alongside the branch/turn visibility predicates.
func VisibleRowsQuery(targetTable *sqlast.Table, turnIDColumn string, partitionID *int) *sqlast.SelectQuery {
	bh := &sqlast.Table{Name: "branch_hierarchy", Alias: "bh"}
	turns := &sqlast.Table{Name: "turns", Alias: "t"}

	turnsCond := sqlast.Eq(sqlast.NewColumn("branch_id", turns), sqlast.NewColumn("id", bh)).
		And(sqlast.Lte(sqlast.NewColumn("index", turns), sqlast.NewColumn("start_turn_index", bh))).
		And(sqlast.Eq(sqlast.NewColumn("status", turns), sqlast.Literal(string(StatusCommitted))))
	if partitionID != nil {
		turnsCond = turnsCond.And(sqlast.Eq(sqlast.NewColumn("partition_id", turns), sqlast.Param(*partitionID)))
	}

	targetCond := sqlast.Eq(sqlast.NewColumn(turnIDColumn, targetTable), sqlast.NewColumn("id", turns))

	return &sqlast.SelectQuery{
		From: bh,
		Joins: []*sqlast.Join{
			{Table: turns, Kind: sqlast.JoinInner, Condition: turnsCond},
			{Table: targetTable, Kind: sqlast.JoinInner, Condition: targetCond},
		},
	}
}

// VisibilityQuery composes BranchHierarchyCTE and VisibleRowsQuery into one
// query ready for a caller (the relation resolver, a query-set's root
// frame) to add Columns/Where/GroupBy/OrderBy onto.
func VisibilityQuery(branchID int, targetTable *sqlast.Table, turnIDColumn string, partitionID *int) *sqlast.SelectQuery {
	q := VisibleRowsQuery(targetTable, turnIDColumn, partitionID)
	q.CTEs = []*sqlast.CTE{BranchHierarchyCTE(branchID)}
	return q
}

// ArtifactLatestVersionQuery yields the DISTINCT ON (artifact_id) layer
// spec.md §4.4 names for artifact namespaces: DISTINCT ON artifact_id
// ordered by version descending, so each artifact's highest version
// survives. It adds no deleted_at filter; the caller's WHERE supplies that
// (GetArtifact adds deleted_at IS NULL alongside its artifact_id filter).
func ArtifactLatestVersionQuery(table *sqlast.Table) (distinctOn []sqlast.Expr, orderBy []*sqlast.OrderBy) {
	distinctOn = []sqlast.Expr{sqlast.NewColumn("artifact_id", table)}
	orderBy = []*sqlast.OrderBy{
		{Expr: sqlast.NewColumn("artifact_id", table), Direction: sqlast.Asc},
		{Expr: sqlast.NewColumn("version", table), Direction: sqlast.Desc},
	}
	return distinctOn, orderBy
}
