package schema

import (
	"reflect"
	"strings"
)

// parsedTag is the decoded form of a `turnbase:"..."` struct tag, modeled
// on bun's comma-separated tag syntax (column,pk,type:...,default:...).
type parsedTag struct {
	Column       string
	Skip         bool
	PrimaryKey   bool
	Unique       bool
	DBType       string
	Default      string
	FK           string // "namespace.column"
	Relation     string // "has-one" | "has-many" | "many-to-many"
	Join         string // "local_key=foreign_key"
	Junction     string // namespace name of the junction table, for many-to-many
	JunctionKeys string // "left_key,right_key"
	Index        IndexKind
	Target       string // target namespace table name, for relation fields
	Enum         string // "member1|member2|...", for enum-typed fields
}

func parseTag(field reflect.StructField) parsedTag {
	raw, ok := field.Tag.Lookup("turnbase")
	if !ok {
		return parsedTag{Column: toSnakeCase(field.Name)}
	}
	parts := strings.Split(raw, ",")
	tag := parsedTag{Column: toSnakeCase(field.Name)}
	if len(parts) > 0 && parts[0] != "" && !strings.Contains(parts[0], ":") {
		if parts[0] == "-" {
			tag.Skip = true
			return tag
		}
		tag.Column = parts[0]
		parts = parts[1:]
	}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch {
		case p == "pk":
			tag.PrimaryKey = true
		case p == "unique":
			tag.Unique = true
		case strings.HasPrefix(p, "type:"):
			tag.DBType = strings.TrimPrefix(p, "type:")
		case strings.HasPrefix(p, "default:"):
			tag.Default = strings.TrimPrefix(p, "default:")
		case strings.HasPrefix(p, "fk:"):
			tag.FK = strings.TrimPrefix(p, "fk:")
		case strings.HasPrefix(p, "rel:"):
			tag.Relation = strings.TrimPrefix(p, "rel:")
		case strings.HasPrefix(p, "join:"):
			tag.Join = strings.TrimPrefix(p, "join:")
		case strings.HasPrefix(p, "junction:"):
			tag.Junction = strings.TrimPrefix(p, "junction:")
		case strings.HasPrefix(p, "junction_keys:"):
			tag.JunctionKeys = strings.TrimPrefix(p, "junction_keys:")
		case strings.HasPrefix(p, "index:"):
			tag.Index = IndexKind(strings.TrimPrefix(p, "index:"))
		case strings.HasPrefix(p, "target:"):
			tag.Target = strings.TrimPrefix(p, "target:")
		case strings.HasPrefix(p, "enum:"):
			tag.Enum = strings.TrimPrefix(p, "enum:")
		}
	}
	return tag
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
