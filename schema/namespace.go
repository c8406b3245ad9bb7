package schema

import (
	"fmt"
	"reflect"

	"github.com/emergent-company/turnbase/pkg/apperror"
)

// RelationKind identifies the shape of a RelationInfo (spec.md §3).
type RelationKind string

const (
	RelationOneToOne   RelationKind = "one_to_one"
	RelationOneToMany  RelationKind = "one_to_many"
	RelationManyToMany RelationKind = "many_to_many"
)

// ReferentialAction is an ON DELETE / ON UPDATE action.
type ReferentialAction string

const (
	ActionCascade  ReferentialAction = "CASCADE"
	ActionRestrict ReferentialAction = "RESTRICT"
	ActionSetNull  ReferentialAction = "SET NULL"
	ActionNoAction ReferentialAction = "NO ACTION"
)

// RelationInfo describes a relation from the owning Namespace to another.
type RelationInfo struct {
	Name             string
	PrimaryKey       string // column on the owning namespace
	ForeignKey       string // column on the foreign namespace
	ForeignNamespace string
	Kind             RelationKind

	JunctionNamespace string // many-to-many only
	JunctionLocalKey   string // many-to-many only: column referring to the owning side's pk
	JunctionOtherKey   string // many-to-many only: column referring to the foreign side's pk

	OnDelete ReferentialAction
	OnUpdate ReferentialAction
}

// Namespace is a registered model: its table name, its fields in
// declaration order, and its relations. Once frozen by the
// NamespaceManager's first CreateAll, a Namespace is immutable.
type Namespace struct {
	TableName string
	GoType    reflect.Type

	fieldOrder []string
	fields     map[string]*FieldDescriptor
	relations  map[string]*RelationInfo

	IsVersioned bool
	IsArtifact  bool
	IsContext   bool
	IsRepo      bool

	frozen bool
}

// NewNamespace constructs an empty, mutable Namespace.
func NewNamespace(tableName string, goType reflect.Type) *Namespace {
	return &Namespace{
		TableName: tableName,
		GoType:    goType,
		fields:    make(map[string]*FieldDescriptor),
		relations: make(map[string]*RelationInfo),
	}
}

// AddField registers a field, enforcing at most one primary key and at most
// one default-temporal field per namespace (spec.md §3 invariants).
func (ns *Namespace) AddField(f *FieldDescriptor) error {
	if ns.frozen {
		return apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q is frozen", ns.TableName))
	}
	if f.IsPrimaryKey {
		if pk := ns.PrimaryKey(); pk != nil {
			return apperror.ErrSchema.WithMessage(
				fmt.Sprintf("namespace %q: field %q already is the primary key, cannot add %q", ns.TableName, pk.Name, f.Name))
		}
	}
	if f.IsDefaultTemporal {
		for _, name := range ns.fieldOrder {
			if ns.fields[name].IsDefaultTemporal {
				return apperror.ErrSchema.WithMessage(
					fmt.Sprintf("namespace %q: default-temporal field %q already set, cannot add %q", ns.TableName, name, f.Name))
			}
		}
	}
	if _, exists := ns.fields[f.Name]; !exists {
		ns.fieldOrder = append(ns.fieldOrder, f.Name)
	}
	ns.fields[f.Name] = f
	return nil
}

// AddRelation registers a RelationInfo, validating that PrimaryKey exists on
// this namespace (the foreign side and junction keys are validated by the
// NamespaceManager once every namespace is registered).
func (ns *Namespace) AddRelation(r *RelationInfo) error {
	if ns.frozen {
		return apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q is frozen", ns.TableName))
	}
	if _, ok := ns.fields[r.PrimaryKey]; !ok {
		return apperror.ErrSchema.WithMessage(
			fmt.Sprintf("namespace %q: relation %q references unknown primary_key %q", ns.TableName, r.Name, r.PrimaryKey))
	}
	ns.relations[r.Name] = r
	return nil
}

// Field returns the FieldDescriptor for name, or nil.
func (ns *Namespace) Field(name string) *FieldDescriptor {
	return ns.fields[name]
}

// HasField reports whether name is a registered field.
func (ns *Namespace) HasField(name string) bool {
	_, ok := ns.fields[name]
	return ok
}

// Fields returns every FieldDescriptor in declaration order.
func (ns *Namespace) Fields() []*FieldDescriptor {
	out := make([]*FieldDescriptor, len(ns.fieldOrder))
	for i, name := range ns.fieldOrder {
		out[i] = ns.fields[name]
	}
	return out
}

// FieldNames returns field names in declaration order.
func (ns *Namespace) FieldNames() []string {
	out := make([]string, len(ns.fieldOrder))
	copy(out, ns.fieldOrder)
	return out
}

// Relation returns the RelationInfo for name, or nil.
func (ns *Namespace) Relation(name string) *RelationInfo {
	return ns.relations[name]
}

// HasRelation reports whether name is a registered relation.
func (ns *Namespace) HasRelation(name string) bool {
	_, ok := ns.relations[name]
	return ok
}

// Relations returns every registered relation, unordered.
func (ns *Namespace) Relations() map[string]*RelationInfo {
	return ns.relations
}

// PrimaryKey returns the namespace's single primary-key field, or nil if
// none has been registered yet.
func (ns *Namespace) PrimaryKey() *FieldDescriptor {
	for _, name := range ns.fieldOrder {
		if ns.fields[name].IsPrimaryKey {
			return ns.fields[name]
		}
	}
	return nil
}

// Freeze forbids further AddField/AddRelation calls; called once by
// NamespaceManager.CreateAll (spec.md §3: "namespace ... process-wide,
// immutable after registration").
func (ns *Namespace) Freeze() {
	ns.frozen = true
}

// PackRecord converts a pool.Row (map[string]any straight off the wire)
// into a map of deserialized logical values, mirroring
// PostgresNamespace.pack_record in the original implementation: the
// structural columns id, branch_id, turn_id, artifact_id, version and
// deleted_at pass through unchanged whether or not they are declared
// fields; any other column must be a declared field or ErrDecode is
// returned.
func (ns *Namespace) PackRecord(record map[string]any) (map[string]any, error) {
	passthrough := map[string]bool{
		"id": true, "branch_id": true, "turn_id": true,
		"artifact_id": true, "version": true, "deleted_at": true,
	}
	out := make(map[string]any, len(record))
	for key, value := range record {
		if passthrough[key] {
			out[key] = value
			continue
		}
		field, ok := ns.fields[key]
		if !ok {
			return nil, apperror.ErrDecode.WithMessage(fmt.Sprintf("namespace %q: unknown column %q", ns.TableName, key))
		}
		decoded, err := field.Deserialize(value)
		if err != nil {
			return nil, err
		}
		out[key] = decoded
	}
	return out, nil
}
