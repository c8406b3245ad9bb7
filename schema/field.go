// Package schema implements model registration: turning a Go struct tagged
// with `turnbase:"..."` into a Namespace the rest of the engine (compiler,
// query-set, versioning) can drive. It mirrors the teacher's bun struct-tag
// convention (domain/projects/entity.go: `bun:"id,pk,type:uuid,default:..."`)
// but is grounded semantically in promptview's PgFieldInfo
// (model2/postgres/fields_query.py): logical type, backend SQL type,
// optionality, default expression, primary/foreign key flags.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/emergent-company/turnbase/pkg/apperror"
)

// LogicalType is the portable type a field holds, independent of its SQL
// representation.
type LogicalType string

const (
	LogicalString   LogicalType = "string"
	LogicalInt      LogicalType = "int"
	LogicalFloat    LogicalType = "float"
	LogicalBool     LogicalType = "bool"
	LogicalUUID     LogicalType = "uuid"
	LogicalTime     LogicalType = "time"
	LogicalJSON     LogicalType = "json"
	LogicalEnum     LogicalType = "enum"
	LogicalIntArray LogicalType = "int_array"
	LogicalStrArray LogicalType = "string_array"
)

// IndexKind names a supported PostgreSQL index method (fields_query.py's
// PgIndexType).
type IndexKind string

const (
	IndexNone   IndexKind = ""
	IndexBTree  IndexKind = "btree"
	IndexHash   IndexKind = "hash"
	IndexGIN    IndexKind = "gin"
	IndexGIST   IndexKind = "gist"
	IndexSPGIST IndexKind = "spgist"
	IndexBRIN   IndexKind = "brin"
)

// FieldDescriptor fully describes one column of a Namespace.
type FieldDescriptor struct {
	Name         string
	GoType       reflect.Type
	LogicalType  LogicalType
	BackendType  string // the rendered SQL type, e.g. "TEXT", "JSONB", "UUID"
	IsOptional   bool
	IsPrimaryKey bool
	IsForeignKey bool
	ReferencedNS string // namespace name the FK points at, if IsForeignKey
	ReferencedPK string // column name on the referenced namespace, usually "id"
	DefaultExpr  string // SQL default expression, e.g. "now()", "gen_random_uuid()"
	IsDefaultTemporal bool // defaults to CURRENT_TIMESTAMP-like semantics on insert
	EnumMembers  []string
	Index        IndexKind
	Unique       bool
}

// Placeholder returns the bind placeholder for position n, annotated with
// an explicit cast for types Postgres won't infer from a bare $n (mirrors
// PgFieldInfo.get_placeholder).
func (f *FieldDescriptor) Placeholder(n int) string {
	switch f.LogicalType {
	case LogicalJSON:
		return fmt.Sprintf("$%d::JSONB", n)
	case LogicalTime:
		return fmt.Sprintf("$%d::TIMESTAMP", n)
	case LogicalUUID:
		return fmt.Sprintf("$%d::UUID", n)
	default:
		return fmt.Sprintf("$%d", n)
	}
}

// Serialize converts a Go value into the form the driver should bind,
// generating a fresh UUID for an empty primary key and JSON-encoding
// map/struct values destined for a JSONB column.
func (f *FieldDescriptor) Serialize(value any) (any, error) {
	if f.IsPrimaryKey && f.LogicalType == LogicalUUID {
		if value == nil {
			return uuid.New(), nil
		}
		if s, ok := value.(string); ok && s == "" {
			return uuid.New(), nil
		}
	}
	if f.LogicalType == LogicalJSON && value != nil {
		switch value.(type) {
		case string, []byte:
			return value, nil
		default:
			b, err := json.Marshal(value)
			if err != nil {
				return nil, apperror.ErrBind.WithInternal(err).WithMessage(
					fmt.Sprintf("field %q: cannot marshal to JSON", f.Name))
			}
			return string(b), nil
		}
	}
	if f.LogicalType == LogicalEnum && value != nil {
		if rv := reflect.ValueOf(value); rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	}
	return value, nil
}

// Deserialize converts a driver-returned value back to the field's logical
// Go representation (mirrors PgFieldInfo.deserialize).
func (f *FieldDescriptor) Deserialize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch f.LogicalType {
	case LogicalJSON:
		raw, ok := asBytesOrString(value)
		if !ok {
			return value, nil
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, apperror.ErrDecode.WithInternal(err).WithMessage(
				fmt.Sprintf("field %q: malformed JSON", f.Name))
		}
		return out, nil
	case LogicalUUID:
		switch v := value.(type) {
		case uuid.UUID:
			return v, nil
		case [16]byte:
			return uuid.UUID(v), nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, apperror.ErrDecode.WithInternal(err).WithMessage(
					fmt.Sprintf("field %q: malformed uuid", f.Name))
			}
			return id, nil
		default:
			return value, nil
		}
	case LogicalEnum:
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		if f.GoType != nil && f.GoType.Kind() == reflect.String && f.GoType != reflect.TypeOf("") {
			return reflect.ValueOf(s).Convert(f.GoType).Interface(), nil
		}
		return s, nil
	default:
		return value, nil
	}
}

// Validate rejects a bind value that cannot possibly satisfy the field:
// nil into a required, non-optional field; an enum value outside
// EnumMembers; or a list element whose type doesn't match the field's
// declared element type (mirrors fields_query.py's PgFieldInfo checks for
// enum and list-typed fields).
func (f *FieldDescriptor) Validate(value any) error {
	if value == nil {
		if !f.IsOptional && f.DefaultExpr == "" && !f.IsPrimaryKey {
			return apperror.ErrBind.WithMessage(fmt.Sprintf("field %q is required", f.Name))
		}
		return nil
	}

	switch f.LogicalType {
	case LogicalEnum:
		return f.validateEnumMember(value)
	case LogicalIntArray, LogicalStrArray:
		return f.validateArrayElements(value)
	}
	return nil
}

func (f *FieldDescriptor) validateEnumMember(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.String {
		return apperror.ErrBind.WithMessage(fmt.Sprintf("field %q: enum value must be a string, got %T", f.Name, value))
	}
	member := rv.String()
	for _, m := range f.EnumMembers {
		if m == member {
			return nil
		}
	}
	return apperror.ErrBind.WithMessage(fmt.Sprintf("field %q: %q is not one of %v", f.Name, member, f.EnumMembers))
}

func (f *FieldDescriptor) validateArrayElements(value any) error {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return apperror.ErrBind.WithMessage(fmt.Sprintf("field %q: expected a list, got %T", f.Name, value))
	}

	wantKind := reflect.Int
	if f.LogicalType == LogicalStrArray {
		wantKind = reflect.String
	}

	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i)
		for elem.Kind() == reflect.Interface {
			elem = elem.Elem()
		}
		if !kindMatches(elem.Kind(), wantKind) {
			return apperror.ErrBind.WithMessage(fmt.Sprintf("field %q: element %d has type %s, want %s matching the declared element type", f.Name, i, elem.Kind(), wantKind))
		}
	}
	return nil
}

// kindMatches reports whether actual is an acceptable reflect.Kind for an
// element declared as want, treating every sized integer kind as
// interchangeable with reflect.Int.
func kindMatches(actual, want reflect.Kind) bool {
	if want != reflect.Int {
		return actual == want
	}
	switch actual {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func asBytesOrString(value any) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// goTypeToLogical infers LogicalType and default BackendType from a Go
// reflect.Type, unwrapping pointers to mark the field optional.
func goTypeToLogical(t reflect.Type) (logical LogicalType, backend string, optional bool, err error) {
	if t.Kind() == reflect.Ptr {
		optional = true
		t = t.Elem()
	}

	switch {
	case t == reflect.TypeOf(uuid.UUID{}):
		return LogicalUUID, "UUID", optional, nil
	case t == reflect.TypeOf(time.Time{}):
		return LogicalTime, "TIMESTAMP", optional, nil
	case t.Kind() == reflect.String:
		return LogicalString, "TEXT", optional, nil
	case t.Kind() == reflect.Bool:
		return LogicalBool, "BOOLEAN", optional, nil
	case t.Kind() == reflect.Int || t.Kind() == reflect.Int32 || t.Kind() == reflect.Int64:
		return LogicalInt, "INTEGER", optional, nil
	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		return LogicalFloat, "FLOAT", optional, nil
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Int:
		return LogicalIntArray, "INTEGER[]", optional, nil
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String:
		return LogicalStrArray, "TEXT[]", optional, nil
	case t.Kind() == reflect.Map, t.Kind() == reflect.Slice, t.Kind() == reflect.Struct:
		return LogicalJSON, "JSONB", optional, nil
	default:
		return "", "", optional, apperror.ErrSchema.WithMessage(fmt.Sprintf("unsupported field type: %s", t))
	}
}
