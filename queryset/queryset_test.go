package queryset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/turnbase/schema"
)

type Branch struct {
	ID   int    `turnbase:"id,pk"`
	Name string `turnbase:"name"`
}

type Widget struct {
	ID       int    `turnbase:"id,pk"`
	BranchID int    `turnbase:"branch_id,fk:branches.id"`
	Label    string `turnbase:"label"`
}

func buildManager(t *testing.T) *schema.NamespaceManager {
	t.Helper()
	m := schema.NewNamespaceManager()

	branchNS, branchPending, err := schema.ParseModel("branches", Branch{})
	require.NoError(t, err)
	require.NoError(t, m.Register(branchNS, branchPending))

	widgetNS, widgetPending, err := schema.ParseModel("widgets", Widget{})
	require.NoError(t, err)
	require.NoError(t, m.Register(widgetNS, widgetPending))

	require.NoError(t, m.ResolveForeignKeys())

	require.NoError(t, branchNS.AddRelation(&schema.RelationInfo{
		Name: "widgets", PrimaryKey: "id", ForeignKey: "branch_id",
		ForeignNamespace: "widgets", Kind: schema.RelationOneToMany,
		OnDelete: schema.ActionCascade, OnUpdate: schema.ActionCascade,
	}))

	return m
}

func TestSelectStarExpandsFields(t *testing.T) {
	m := buildManager(t)
	qs := New(m, "branches").Select("*")
	require.NoError(t, qs.Err())

	result, err := qs.Compile()
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "SELECT b.id, b.name")
}

func TestFilterProducesParameterizedEquality(t *testing.T) {
	m := buildManager(t)
	qs := New(m, "branches").Select("id").Filter(map[string]any{"name": "trunk"})

	result, err := qs.Compile()
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "WHERE (b.name = $1)")
	assert.Equal(t, []any{"trunk"}, result.Params)
}

func TestFirstSetsOrderAndLimit(t *testing.T) {
	m := buildManager(t)
	qs := New(m, "branches").Select("id").First()

	result, err := qs.Compile()
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "ORDER BY b.id ASC")
	assert.Contains(t, result.SQL, "LIMIT 1")
}

func TestUnknownFieldFails(t *testing.T) {
	m := buildManager(t)
	qs := New(m, "branches").Select("nonexistent")
	assert.Error(t, qs.Err())
}

func TestJoinEmitsNestedJSONAggregation(t *testing.T) {
	m := buildManager(t)
	qs := New(m, "branches").Select("id", "name").Join("widgets")
	require.NoError(t, qs.Err())

	result, err := qs.Compile()
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "LEFT JOIN widgets")
	assert.Contains(t, result.SQL, "json_agg(DISTINCT jsonb_build_object(")
	assert.Contains(t, result.SQL, "COALESCE(")
	assert.Contains(t, result.SQL, "AS widgets")
	assert.Contains(t, result.SQL, "GROUP BY b.id")
}

func TestUnknownRelationFails(t *testing.T) {
	m := buildManager(t)
	qs := New(m, "branches").Join("nonexistent")
	assert.Error(t, qs.Err())
}
