package relations

import (
	"context"
	"fmt"
	"strings"

	"github.com/emergent-company/turnbase/pool"
	"github.com/emergent-company/turnbase/schema"
)

// InsertRow builds and runs a parameterized INSERT ... RETURNING * for ns,
// binding every field present in fields and omitting the rest (letting the
// column's SQL DEFAULT, e.g. a SERIAL sequence or gen_random_uuid(), apply).
// Used by AddChild for both the child row and, on a many-to-many relation,
// the junction row, and by the orm facade's plain (non-versioned) Save.
func InsertRow(ctx context.Context, db pool.DB, ns *schema.Namespace, fields map[string]any) (map[string]any, error) {
	var columns []string
	var placeholders []string
	var values []any

	for _, f := range ns.Fields() {
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		if err := f.Validate(v); err != nil {
			return nil, err
		}
		serialized, err := f.Serialize(v)
		if err != nil {
			return nil, err
		}
		columns = append(columns, f.Name)
		placeholders = append(placeholders, f.Placeholder(len(values)+1))
		values = append(values, serialized)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		ns.TableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	row, err := db.FetchOne(ctx, stmt, values...)
	if err != nil {
		return nil, err
	}
	return ns.PackRecord(row)
}
