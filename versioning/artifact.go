package versioning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pool"
	"github.com/emergent-company/turnbase/schema"
	"github.com/emergent-company/turnbase/sqlast"
	"github.com/emergent-company/turnbase/sqlcompiler"
)

// SaveArtifact performs the insert-as-new-version write of spec.md §4.4:
// the previous row for artifactID is never mutated; a new row is inserted
// with version = prev_max + 1, inheriting artifactID and overwriting the
// supplied fields. A nil/zero artifactID starts a new artifact at version 1.
func SaveArtifact(ctx context.Context, db pool.DB, ns *schema.Namespace, artifactID uuid.UUID, turnID, branchID int, fields map[string]any) (uuid.UUID, int, error) {
	if !ns.IsArtifact {
		return uuid.Nil, 0, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q is not an artifact namespace", ns.TableName))
	}
	if artifactID == uuid.Nil {
		artifactID = uuid.New()
	}

	prev, err := latestVersion(ctx, db, ns, artifactID)
	if err != nil {
		return uuid.Nil, 0, err
	}
	version := 1
	if prev != nil {
		version = *prev + 1
	}

	columns := []string{"artifact_id", "version", "turn_id", "branch_id"}
	values := []any{artifactID, version, turnID, branchID}
	for _, f := range ns.Fields() {
		if f.IsPrimaryKey {
			continue
		}
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		serialized, err := f.Serialize(v)
		if err != nil {
			return uuid.Nil, 0, err
		}
		columns = append(columns, f.Name)
		values = append(values, serialized)
	}

	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", ns.TableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := db.Exec(ctx, stmt, values...); err != nil {
		return uuid.Nil, 0, err
	}
	return artifactID, version, nil
}

// DeleteArtifact soft-deletes artifactID by inserting a new version with
// deleted_at set, never mutating history (spec.md §3 Artifact row,
// "Soft-delete via tombstone row" in SPEC_FULL's SUPPLEMENTED FEATURES).
func DeleteArtifact(ctx context.Context, db pool.DB, ns *schema.Namespace, artifactID uuid.UUID, turnID, branchID int) (int, error) {
	if !ns.IsArtifact {
		return 0, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q is not an artifact namespace", ns.TableName))
	}
	prev, err := latestVersion(ctx, db, ns, artifactID)
	if err != nil {
		return 0, err
	}
	if prev == nil {
		return 0, apperror.ErrNotFound.WithMessage(fmt.Sprintf("artifact %s has no existing version in %q", artifactID, ns.TableName))
	}
	version := *prev + 1

	stmt := fmt.Sprintf(
		"INSERT INTO %s (artifact_id, version, turn_id, branch_id, deleted_at) VALUES ($1, $2, $3, $4, now())",
		ns.TableName,
	)
	if _, err := db.Exec(ctx, stmt, artifactID, version, turnID, branchID); err != nil {
		return 0, err
	}
	return version, nil
}

// GetArtifact fetches a specific version of artifactID, or the latest
// non-deleted version if version is nil, independent of branch visibility
// (postgres/namespace.py::get_artifact; used by admin/debug tooling).
func GetArtifact(ctx context.Context, db pool.DB, ns *schema.Namespace, artifactID uuid.UUID, version *int) (map[string]any, error) {
	if !ns.IsArtifact {
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q is not an artifact namespace", ns.TableName))
	}
	table := &sqlast.Table{Name: ns.TableName, Alias: "a"}
	where := sqlast.Eq(sqlast.NewColumn("artifact_id", table), sqlast.Param(artifactID)).
		And(sqlast.IsNull(sqlast.NewColumn("deleted_at", table)))
	if version != nil {
		where = where.And(sqlast.Eq(sqlast.NewColumn("version", table), sqlast.Param(*version)))
	}

	distinctOn, orderBy := ArtifactLatestVersionQuery(table)
	q := &sqlast.SelectQuery{
		From:       table,
		Where:      where,
		Distinct:   true,
		DistinctOn: distinctOn,
		OrderBy:    orderBy,
	}

	result, err := sqlcompiler.Compile(q)
	if err != nil {
		return nil, err
	}
	row, err := db.FetchOne(ctx, result.SQL, result.Params...)
	if err != nil {
		return nil, err
	}
	return ns.PackRecord(row)
}

func latestVersion(ctx context.Context, db pool.DB, ns *schema.Namespace, artifactID uuid.UUID) (*int, error) {
	row, err := db.FetchOne(ctx, fmt.Sprintf("SELECT MAX(version) AS max_version FROM %s WHERE artifact_id = $1", ns.TableName), artifactID)
	if err != nil {
		return nil, err
	}
	return asIntPtr(row["max_version"])
}
