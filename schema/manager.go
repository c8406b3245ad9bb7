package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pool"
)

// reverseKey indexes (child_table, fk_column) -> RelationInfo, letting the
// relation resolver answer "who points at me, and through which column"
// without scanning every namespace (spec.md §4.6).
type reverseKey struct {
	childTable string
	fkColumn   string
}

// NamespaceManager is the process-wide registry of every Namespace, mirroring
// promptview's NamespaceManager (model2/namespace_manager.py): write-once
// registration, a reverse-FK index for the relation resolver, and
// create_all/drop_all over every registered table.
type NamespaceManager struct {
	byTable map[string]*Namespace
	order   []string // registration order, for drop_all's reverse iteration

	reverse map[reverseKey]*RelationInfo
	byChild map[string][]*RelationInfo // child_table -> relations pointing at it

	created bool
}

// NewNamespaceManager returns an empty manager.
func NewNamespaceManager() *NamespaceManager {
	return &NamespaceManager{
		byTable: make(map[string]*Namespace),
		reverse: make(map[reverseKey]*RelationInfo),
		byChild: make(map[string][]*RelationInfo),
	}
}

// Register adds ns to the registry under its table name. Double
// registration of the same table name fails with apperror.ErrSchema
// (spec.md §4.6: "Registration is write-once per model name").
func (m *NamespaceManager) Register(ns *Namespace, pending []pendingRelation) error {
	if _, exists := m.byTable[ns.TableName]; exists {
		return apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q already registered", ns.TableName))
	}

	for _, p := range pending {
		rel, err := resolvePendingRelation(ns, p)
		if err != nil {
			return err
		}
		if err := ns.AddRelation(rel); err != nil {
			return err
		}
	}

	m.byTable[ns.TableName] = ns
	m.order = append(m.order, ns.TableName)
	return nil
}

// ResolveForeignKeys must run after every model has been registered: it
// validates every FK field's ReferencedNS exists, validates relation
// foreign/junction keys against the now-complete registry, and populates
// the reverse-FK index.
func (m *NamespaceManager) ResolveForeignKeys() error {
	for _, table := range m.order {
		ns := m.byTable[table]
		for _, f := range ns.Fields() {
			if !f.IsForeignKey {
				continue
			}
			target, ok := m.byTable[f.ReferencedNS]
			if !ok {
				return apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q: field %q references unknown namespace %q", ns.TableName, f.Name, f.ReferencedNS))
			}
			if f.ReferencedPK == "" {
				if pk := target.PrimaryKey(); pk != nil {
					f.ReferencedPK = pk.Name
				}
			}
			key := reverseKey{childTable: ns.TableName, fkColumn: f.Name}
			rel := &RelationInfo{
				Name:             f.Name,
				PrimaryKey:       f.ReferencedPK,
				ForeignKey:       f.Name,
				ForeignNamespace: ns.TableName,
				Kind:             RelationOneToMany,
				OnDelete:         ActionCascade,
				OnUpdate:         ActionCascade,
			}
			m.reverse[key] = rel
			m.byChild[ns.TableName] = append(m.byChild[ns.TableName], rel)
		}

		for _, rel := range ns.Relations() {
			if err := m.validateRelation(ns, rel); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *NamespaceManager) validateRelation(owner *Namespace, rel *RelationInfo) error {
	switch rel.Kind {
	case RelationOneToOne, RelationOneToMany:
		target, ok := m.byTable[rel.ForeignNamespace]
		if !ok {
			return apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q on %q: unknown foreign namespace %q", rel.Name, owner.TableName, rel.ForeignNamespace))
		}
		if !target.HasField(rel.ForeignKey) && rel.ForeignKey != "artifact_id" {
			return apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q on %q: foreign namespace %q has no field %q", rel.Name, owner.TableName, rel.ForeignNamespace, rel.ForeignKey))
		}
	case RelationManyToMany:
		junction, ok := m.byTable[rel.JunctionNamespace]
		if !ok {
			return apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q on %q: unknown junction namespace %q", rel.Name, owner.TableName, rel.JunctionNamespace))
		}
		if !junction.HasField(rel.JunctionLocalKey) || !junction.HasField(rel.JunctionOtherKey) {
			return apperror.ErrSchema.WithMessage(fmt.Sprintf("relation %q on %q: junction %q missing keys %q/%q", rel.Name, owner.TableName, rel.JunctionNamespace, rel.JunctionLocalKey, rel.JunctionOtherKey))
		}
	}
	return nil
}

func resolvePendingRelation(owner *Namespace, p pendingRelation) (*RelationInfo, error) {
	tag := p.Tag
	joinParts := strings.SplitN(tag.Join, "=", 2)
	if len(joinParts) != 2 {
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q: relation %q has malformed join tag %q, want local=foreign", owner.TableName, p.Field.Name, tag.Join))
	}

	if tag.Target == "" {
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q: relation %q is missing a target:<namespace> tag", owner.TableName, p.Field.Name))
	}

	name := toSnakeCase(p.Field.Name)
	switch tag.Relation {
	case "has-one":
		return &RelationInfo{
			Name: name, PrimaryKey: joinParts[0], ForeignKey: joinParts[1],
			ForeignNamespace: tag.Target, Kind: RelationOneToOne,
			OnDelete: ActionCascade, OnUpdate: ActionCascade,
		}, nil
	case "has-many":
		return &RelationInfo{
			Name: name, PrimaryKey: joinParts[0], ForeignKey: joinParts[1],
			ForeignNamespace: tag.Target, Kind: RelationOneToMany,
			OnDelete: ActionCascade, OnUpdate: ActionCascade,
		}, nil
	case "many-to-many":
		junctionKeys := strings.SplitN(tag.JunctionKeys, ",", 2)
		if len(junctionKeys) != 2 {
			return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q: relation %q has malformed junction_keys tag %q", owner.TableName, p.Field.Name, tag.JunctionKeys))
		}
		return &RelationInfo{
			Name: name, PrimaryKey: joinParts[0], ForeignKey: joinParts[1],
			ForeignNamespace:  tag.Target,
			Kind:              RelationManyToMany,
			JunctionNamespace: tag.Junction,
			JunctionLocalKey:  junctionKeys[0],
			JunctionOtherKey:  junctionKeys[1],
			OnDelete:          ActionCascade, OnUpdate: ActionCascade,
		}, nil
	default:
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q: unknown relation kind %q", owner.TableName, tag.Relation))
	}
}

// Namespace returns the registered Namespace for table, or nil.
func (m *NamespaceManager) Namespace(table string) *Namespace {
	return m.byTable[table]
}

// ReverseRelation returns the RelationInfo describing how childTable's
// fkColumn points back at its parent, used by the relation resolver's
// auto-fill (spec.md §4.5).
func (m *NamespaceManager) ReverseRelation(childTable, fkColumn string) *RelationInfo {
	return m.reverse[reverseKey{childTable: childTable, fkColumn: fkColumn}]
}

// RelationsInto returns every relation whose foreign side is childTable.
func (m *NamespaceManager) RelationsInto(childTable string) []*RelationInfo {
	return m.byChild[childTable]
}

// CreateAll issues CREATE TABLE IF NOT EXISTS for every registered
// namespace, then emits every foreign-key constraint as a separate ALTER
// TABLE so that registration order never constrains table-creation order
// (spec.md §4.6). Freezes every namespace on success.
//
// Calling CreateAll again once m.created is set is a no-op (spec.md §8:
// "Creating all namespaces, then creating them again, is a no-op at the
// schema level"): Postgres has no ADD CONSTRAINT IF NOT EXISTS, so
// re-running foreignKeyStatements against tables that already have their
// constraints would fail with a duplicate-object error. DropAll clears
// the flag again.
func (m *NamespaceManager) CreateAll(ctx context.Context, db pool.DB) error {
	if m.created {
		return nil
	}

	if err := m.ResolveForeignKeys(); err != nil {
		return err
	}

	for _, table := range m.order {
		ns := m.byTable[table]
		stmt := createTableStatement(ns)
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	for _, table := range m.order {
		ns := m.byTable[table]
		for _, stmt := range foreignKeyStatements(ns) {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return err
			}
		}
	}

	for _, table := range m.order {
		m.byTable[table].Freeze()
	}
	m.created = true
	return nil
}

// DropAll drops every registered table in reverse registration order with
// CASCADE, so dependents never block a drop (spec.md §4.6). Clears the
// created flag so a following CreateAll re-creates tables and constraints
// instead of treating itself as a no-op.
func (m *NamespaceManager) DropAll(ctx context.Context, db pool.DB) error {
	for i := len(m.order) - 1; i >= 0; i-- {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", quoteIdent(m.order[i]))
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	m.created = false
	return nil
}

func createTableStatement(ns *Namespace) string {
	var cols []string
	for _, f := range ns.Fields() {
		cols = append(cols, columnDefinition(f))
	}
	if ns.IsVersioned {
		cols = append(cols,
			`"turn_id" INTEGER NOT NULL REFERENCES turns(id)`,
			`"branch_id" INTEGER NOT NULL REFERENCES branches(id)`,
		)
	}
	if ns.IsArtifact {
		cols = append(cols,
			`"artifact_id" UUID NOT NULL`,
			`"version" INTEGER NOT NULL CHECK (version >= 1)`,
			`"deleted_at" TIMESTAMP`,
		)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", quoteIdent(ns.TableName), strings.Join(cols, ",\n  "))
}

func columnDefinition(f *FieldDescriptor) string {
	parts := []string{quoteIdent(f.Name), f.BackendType}
	if f.IsPrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if f.Unique && !f.IsPrimaryKey {
		parts = append(parts, "UNIQUE")
	}
	if !f.IsOptional && !f.IsPrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if f.DefaultExpr != "" {
		parts = append(parts, "DEFAULT "+f.DefaultExpr)
	}
	return strings.Join(parts, " ")
}

func foreignKeyStatements(ns *Namespace) []string {
	var stmts []string
	for _, f := range ns.Fields() {
		if !f.IsForeignKey {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE %s ON UPDATE %s",
			quoteIdent(ns.TableName),
			quoteIdent(fmt.Sprintf("fk_%s_%s", ns.TableName, f.Name)),
			quoteIdent(f.Name),
			quoteIdent(f.ReferencedNS),
			quoteIdent(f.ReferencedPK),
			string(ActionCascade), string(ActionCascade),
		))
	}
	return stmts
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
