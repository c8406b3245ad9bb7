package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/emergent-company/turnbase/pkg/apperror"
)

// ParseModel reflects over a struct (or pointer to struct) and builds its
// Namespace, reading `turnbase:"..."` tags field by field. Relation tags
// (rel:has-one / rel:has-many / rel:many-to-many) are recorded but left
// unvalidated against the foreign side until NamespaceManager.Register
// resolves them, since the foreign namespace may not exist yet.
func ParseModel(tableName string, model any) (*Namespace, []pendingRelation, error) {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("model for %q must be a struct", tableName))
	}

	ns := NewNamespace(tableName, t)
	var pending []pendingRelation

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := parseTag(sf)
		if tag.Skip {
			continue
		}

		if tag.Relation != "" {
			pending = append(pending, buildPendingRelation(ns.TableName, sf, tag))
			continue
		}

		field, err := buildField(sf, tag)
		if err != nil {
			return nil, nil, err
		}
		if err := ns.AddField(field); err != nil {
			return nil, nil, err
		}
	}

	if ns.PrimaryKey() == nil {
		return nil, nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("namespace %q: no primary key field declared", tableName))
	}

	return ns, pending, nil
}

// pendingRelation carries a relation tag's raw contents until the
// NamespaceManager can resolve the foreign namespace by name.
type pendingRelation struct {
	OwningTable string
	Field       reflect.StructField
	Tag         parsedTag
}

func buildPendingRelation(owningTable string, sf reflect.StructField, tag parsedTag) pendingRelation {
	return pendingRelation{OwningTable: owningTable, Field: sf, Tag: tag}
}

func buildField(sf reflect.StructField, tag parsedTag) (*FieldDescriptor, error) {
	logical, backend, optional, err := goTypeToLogical(sf.Type)
	if err != nil {
		return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("field %q: %s", sf.Name, err.Error()))
	}
	if tag.DBType != "" {
		backend = tag.DBType
	}

	f := &FieldDescriptor{
		Name:        tag.Column,
		GoType:      sf.Type,
		LogicalType: logical,
		BackendType: backend,
		IsOptional:  optional,
		DefaultExpr: tag.Default,
		Index:       tag.Index,
		Unique:      tag.Unique,
	}

	if tag.PrimaryKey {
		f.IsPrimaryKey = true
		if f.LogicalType == LogicalInt && f.DefaultExpr == "" {
			f.BackendType = "SERIAL"
		}
		if f.LogicalType == LogicalUUID && f.DefaultExpr == "" {
			f.DefaultExpr = "gen_random_uuid()"
		}
	}

	if tag.FK != "" {
		parts := strings.SplitN(tag.FK, ".", 2)
		if len(parts) != 2 {
			return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("field %q: malformed fk tag %q, want namespace.column", sf.Name, tag.FK))
		}
		f.IsForeignKey = true
		f.ReferencedNS = parts[0]
		f.ReferencedPK = parts[1]
	}

	if strings.EqualFold(f.Name, "created_at") && f.DefaultExpr == "" {
		f.DefaultExpr = "now()"
		f.IsDefaultTemporal = true
	}

	if tag.Enum != "" {
		if f.LogicalType != LogicalString {
			return nil, apperror.ErrSchema.WithMessage(fmt.Sprintf("field %q: enum tag requires a string-backed field, got %s", sf.Name, f.LogicalType))
		}
		f.LogicalType = LogicalEnum
		f.EnumMembers = strings.Split(tag.Enum, "|")
	}

	return f, nil
}
