// Package versioning implements the branch/turn versioning engine described
// in spec.md §4.4: branch forking, atomic turn creation under contention,
// turn lifecycle (stage/commit/revert), the recursive branch-visibility
// query, and artifact insert-as-new-version semantics.
//
// Grounded in promptview's model2/versioning.py (the ArtifactLog
// classmethods) for every write path and model2/version_control_models.py
// (Branch.fork, the branch_hierarchy recursive CTE) for branch forking and
// read visibility.
package versioning

import "time"

// TurnStatus is the lifecycle state of a Turn (spec.md §4.4).
type TurnStatus string

const (
	StatusStaged    TurnStatus = "staged"
	StatusCommitted TurnStatus = "committed"
	StatusReverted  TurnStatus = "reverted"
)

// Turn represents a point in time in a branch.
type Turn struct {
	ID             int
	CreatedAt      time.Time
	EndedAt        *time.Time
	Index          int
	Status         TurnStatus
	Message        *string
	BranchID       int
	PartitionID    *int
	ForkedBranches []BranchSummary
}

// BranchSummary is the shape aggregated into Turn.ForkedBranches, mirroring
// versioning.py::get_branch_turns's json_build_object payload: every
// child branch that forked from exactly this turn.
type BranchSummary struct {
	ID                 int
	Name               *string
	ForkedFromIndex    *int
	ForkedFromBranchID *int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Branch represents a line of development.
type Branch struct {
	ID                 int
	Name               *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ForkedFromIndex    *int
	ForkedFromBranchID *int
	CurrentIndex       int
}
