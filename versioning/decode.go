package versioning

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/emergent-company/turnbase/pkg/apperror"
	"github.com/emergent-company/turnbase/pool"
)

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, apperror.ErrDecode.WithMessage(fmt.Sprintf("expected integer, got %v", n))
		}
		return int(n), nil
	default:
		return 0, apperror.ErrDecode.WithMessage(fmt.Sprintf("expected integer, got %T", v))
	}
}

func asIntPtr(v any) (*int, error) {
	if v == nil {
		return nil, nil
	}
	n, err := asInt(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func asTime(v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, apperror.ErrDecode.WithMessage(fmt.Sprintf("expected time, got %T", v))
	}
	return t, nil
}

func asTimePtr(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := asTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func asStringPtr(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, apperror.ErrDecode.WithMessage(fmt.Sprintf("expected string, got %T", v))
	}
	return &s, nil
}

func decodeBranch(row pool.Row) (*Branch, error) {
	id, err := asInt(row["id"])
	if err != nil {
		return nil, err
	}
	name, err := asStringPtr(row["name"])
	if err != nil {
		return nil, err
	}
	createdAt, err := asTime(row["created_at"])
	if err != nil {
		return nil, err
	}
	updatedAt, err := asTime(row["updated_at"])
	if err != nil {
		return nil, err
	}
	forkedFromIndex, err := asIntPtr(row["forked_from_index"])
	if err != nil {
		return nil, err
	}
	forkedFromBranchID, err := asIntPtr(row["forked_from_branch_id"])
	if err != nil {
		return nil, err
	}
	currentIndex, err := asInt(row["current_index"])
	if err != nil {
		return nil, err
	}
	return &Branch{
		ID:                 id,
		Name:               name,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
		ForkedFromIndex:    forkedFromIndex,
		ForkedFromBranchID: forkedFromBranchID,
		CurrentIndex:       currentIndex,
	}, nil
}

func decodeTurn(row pool.Row) (*Turn, error) {
	id, err := asInt(row["id"])
	if err != nil {
		return nil, err
	}
	createdAt, err := asTime(row["created_at"])
	if err != nil {
		return nil, err
	}
	endedAt, err := asTimePtr(row["ended_at"])
	if err != nil {
		return nil, err
	}
	index, err := asInt(row["index"])
	if err != nil {
		return nil, err
	}
	statusStr, ok := row["status"].(string)
	if !ok {
		return nil, apperror.ErrDecode.WithMessage(fmt.Sprintf("turn %d: expected string status, got %T", id, row["status"]))
	}
	message, err := asStringPtr(row["message"])
	if err != nil {
		return nil, err
	}
	branchID, err := asInt(row["branch_id"])
	if err != nil {
		return nil, err
	}
	partitionID, err := asIntPtr(row["partition_id"])
	if err != nil {
		return nil, err
	}

	turn := &Turn{
		ID:          id,
		CreatedAt:   createdAt,
		EndedAt:     endedAt,
		Index:       index,
		Status:      TurnStatus(statusStr),
		Message:     message,
		BranchID:    branchID,
		PartitionID: partitionID,
	}

	if raw, ok := row["forked_branches"]; ok {
		forked, err := decodeForkedBranches(raw)
		if err != nil {
			return nil, err
		}
		turn.ForkedBranches = forked
	}

	return turn, nil
}

// decodeForkedBranches accepts either the native decoding pgx already
// performs for a json/jsonb column ([]any of map[string]any) or a raw
// text/byte payload, mirroring the json.loads the Python original needs
// because asyncpg hands back unparsed JSON text.
func decodeForkedBranches(raw any) ([]BranchSummary, error) {
	var items []any
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		items = v
	case string:
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return nil, apperror.ErrDecode.WithInternal(err).WithMessage("malformed forked_branches JSON")
		}
	case []byte:
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, apperror.ErrDecode.WithInternal(err).WithMessage("malformed forked_branches JSON")
		}
	default:
		return nil, apperror.ErrDecode.WithMessage(fmt.Sprintf("forked_branches: unexpected type %T", raw))
	}

	out := make([]BranchSummary, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, apperror.ErrDecode.WithMessage(fmt.Sprintf("forked_branches entry: unexpected type %T", item))
		}
		summary, err := toBranchSummary(m)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func toBranchSummary(m map[string]any) (BranchSummary, error) {
	id, err := asInt(m["id"])
	if err != nil {
		return BranchSummary{}, err
	}
	name, err := asStringPtr(m["name"])
	if err != nil {
		return BranchSummary{}, err
	}
	forkedFromIndex, err := asIntPtr(m["forked_from_index"])
	if err != nil {
		return BranchSummary{}, err
	}
	forkedFromBranchID, err := asIntPtr(m["forked_from_branch_id"])
	if err != nil {
		return BranchSummary{}, err
	}
	createdAt, err := parseTimeField(m["created_at"])
	if err != nil {
		return BranchSummary{}, err
	}
	updatedAt, err := parseTimeField(m["updated_at"])
	if err != nil {
		return BranchSummary{}, err
	}
	return BranchSummary{
		ID:                 id,
		Name:               name,
		ForkedFromIndex:    forkedFromIndex,
		ForkedFromBranchID: forkedFromBranchID,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}

// parseTimeField handles a timestamp that arrived through JSON aggregation:
// jsonb_build_object renders it as an RFC3339-ish string rather than the
// native time.Time pgx would give a plain column.
func parseTimeField(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			parsed, err = time.Parse("2006-01-02T15:04:05", t)
			if err != nil {
				return time.Time{}, apperror.ErrDecode.WithInternal(err).WithMessage(fmt.Sprintf("malformed timestamp %q", t))
			}
		}
		return parsed, nil
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, apperror.ErrDecode.WithMessage(fmt.Sprintf("expected timestamp, got %T", v))
	}
}
