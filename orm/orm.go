// Package orm is the facade tying schema registration, the connection
// pool, the versioning engine, the relation resolver, and the query-set
// builder into the single entry point application code drives — the
// role promptview's model2/model.py's Model base class plays, minus its
// metaclass machinery (Go has no runtime class registration, so
// RegisterModel takes the place of a Model subclass's declaration-time
// self-registration).
package orm

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pkg/logger"
	"github.com/emergent-company/turnbase/pool"
	"github.com/emergent-company/turnbase/queryset"
	"github.com/emergent-company/turnbase/relations"
	"github.com/emergent-company/turnbase/schema"
	"github.com/emergent-company/turnbase/versioning"
)

// ORM bundles the registry, the versioning engine, and the relation
// resolver around a single connection pool.
type ORM struct {
	Manager   *schema.NamespaceManager
	Versioned *versioning.Engine
	Relations *relations.Resolver

	pool pool.DB
	log  *slog.Logger
}

// New builds an ORM over an already-open pool.
func New(db pool.DB, versioningConn versioning.Conn, log *slog.Logger) *ORM {
	manager := schema.NewNamespaceManager()
	return &ORM{
		Manager:   manager,
		Versioned: versioning.NewEngine(versioningConn, log),
		Relations: relations.NewResolver(manager),
		pool:      db,
		log:       log.With(logger.Scope("orm")),
	}
}

// RegisterModel parses goStruct's `turnbase:"..."` tags into a Namespace
// and registers it under tableName (spec.md §4.6: "registration is
// write-once per model name").
func (o *ORM) RegisterModel(tableName string, goStruct any) (*schema.Namespace, error) {
	ns, pending, err := schema.ParseModel(tableName, goStruct)
	if err != nil {
		return nil, err
	}
	if err := o.Manager.Register(ns, pending); err != nil {
		return nil, err
	}
	return ns, nil
}

// ResolveForeignKeys must run once, after every RegisterModel call, before
// CreateAll or any relation/versioning operation (spec.md §4.6).
func (o *ORM) ResolveForeignKeys() error {
	return o.Manager.ResolveForeignKeys()
}

// CreateAll issues CREATE TABLE/ALTER TABLE for every registered namespace.
func (o *ORM) CreateAll(ctx context.Context) error {
	return o.Manager.CreateAll(ctx, o.pool)
}

// DropAll drops every registered namespace's table, reverse registration
// order, CASCADE.
func (o *ORM) DropAll(ctx context.Context) error {
	return o.Manager.DropAll(ctx, o.pool)
}

// Query starts a query-set builder rooted at tableName.
func (o *ORM) Query(tableName string) *queryset.QuerySet {
	return queryset.New(o.Manager, tableName)
}

// Save writes fields into ns as a single row, auto-filling any missing
// foreign key from ctx's current-model-in-context stack (spec.md §4.5)
// before binding. It is the non-versioned, non-artifact write path; use
// SaveArtifact for ns.IsArtifact namespaces.
func (o *ORM) Save(ctx context.Context, ns *schema.Namespace, fields map[string]any) (map[string]any, error) {
	if ns.IsArtifact {
		return nil, apperror.ErrSchema.WithMessage("namespace is an artifact namespace; use SaveArtifact")
	}
	if err := o.Relations.AutoFillForeignKeys(ctx, ns, fields); err != nil {
		return nil, err
	}
	return relations.InsertRow(ctx, o.pool, ns, fields)
}

// SaveArtifact performs the insert-as-new-version write of spec.md §4.4 for
// an artifact namespace, using the caller-supplied turnID/branchID as-is;
// nothing is read from context.
func (o *ORM) SaveArtifact(ctx context.Context, ns *schema.Namespace, artifactID uuid.UUID, turnID, branchID int, fields map[string]any) (uuid.UUID, int, error) {
	return versioning.SaveArtifact(ctx, o.pool, ns, artifactID, turnID, branchID, fields)
}

// GetArtifact fetches a specific or latest version of an artifact row.
func (o *ORM) GetArtifact(ctx context.Context, ns *schema.Namespace, artifactID uuid.UUID, version *int) (map[string]any, error) {
	return versioning.GetArtifact(ctx, o.pool, ns, artifactID, version)
}

// DeleteArtifact tombstones an artifact row by inserting a deleted-version.
func (o *ORM) DeleteArtifact(ctx context.Context, ns *schema.Namespace, artifactID uuid.UUID, turnID, branchID int) (int, error) {
	return versioning.DeleteArtifact(ctx, o.pool, ns, artifactID, turnID, branchID)
}
