package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/storage/memory"
)

func newEngine(t *testing.T) (*graph.Engine, *graph.Project) {
	t.Helper()
	e := graph.New(memory.New())
	p, err := e.GetOrCreateDefaultProject(context.Background())
	require.NoError(t, err)
	return e, p
}

func TestCreateEntityRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.Error(t, err)
	assert.Equal(t, graph.KindAlreadyExists, graph.KindOf(err))
}

func TestCreateEntityRejectsMissingProject(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, "proj_does_not_exist")
	require.Error(t, err)
	assert.Equal(t, graph.KindNotFound, graph.KindOf(err))
}

func TestGetEntitiesReturnsPresentSubsetWithoutError(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	out, err := e.GetEntities(ctx, []string{"alice", "nobody"}, p.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "alice", out[0].Name)
}

func TestUpdateEntityRefusesProjectChange(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	other, err := e.CreateProject(ctx, "other", "")
	require.NoError(t, err)

	ent, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	ent.ProjectID = other.ID
	err = e.UpdateEntity(ctx, ent)
	require.Error(t, err)
	assert.Equal(t, graph.KindInvalidInput, graph.KindOf(err))
}

func TestAddObservationsPreservesOrder(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person", Observations: []string{"first"}}, p.ID)
	require.NoError(t, err)

	ent, err := e.AddObservations(ctx, "alice", []string{"second", "third"}, p.ID)
	require.NoError(t, err)
	require.Len(t, ent.Observations, 3)
	assert.Equal(t, "first", ent.Observations[0].Content)
	assert.Equal(t, "second", ent.Observations[1].Content)
	assert.Equal(t, "third", ent.Observations[2].Content)
}

func TestRemoveObservationsPreservesOrderOfSurvivors(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	ent, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person", Observations: []string{"a", "b", "c"}}, p.ID)
	require.NoError(t, err)

	removed := ent.Observations[1].ID
	ent, err = e.RemoveObservations(ctx, "alice", []string{removed}, p.ID)
	require.NoError(t, err)
	require.Len(t, ent.Observations, 2)
	assert.Equal(t, "a", ent.Observations[0].Content)
	assert.Equal(t, "c", ent.Observations[1].Content)
}

func TestAddTagsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	ent, err := e.AddTags(ctx, "alice", []string{"vip", "vip"}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, ent.Tags)

	ent, err = e.AddTags(ctx, "alice", []string{"vip"}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, ent.Tags)
}

func TestRemoveTagsHasSetSemantics(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person", Tags: []string{"vip", "friend"}}, p.ID)
	require.NoError(t, err)

	ent, err := e.RemoveTags(ctx, "alice", []string{"vip"}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"friend"}, ent.Tags)
}

func TestDeleteEntityCascadesRelations(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "bob", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	rel, err := e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "bob", RelationType: "knows"}, p.ID, p.ID)
	require.NoError(t, err)

	require.NoError(t, e.DeleteEntity(ctx, "alice", p.ID))

	_, err = e.Store().GetRelation(ctx, rel.ID)
	require.Error(t, err)
	assert.Equal(t, graph.KindNotFound, graph.KindOf(err))
}

func TestDeleteEntityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	require.NoError(t, e.DeleteEntity(ctx, "nobody", p.ID))
}

func TestCreateRelationRejectsDuplicateTriple(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)

	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "bob", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	_, err = e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "bob", RelationType: "knows"}, p.ID, p.ID)
	require.NoError(t, err)

	_, err = e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "bob", RelationType: "knows"}, p.ID, p.ID)
	require.Error(t, err)
	assert.Equal(t, graph.KindAlreadyExists, graph.KindOf(err))
}

func TestCreateRelationRejectsNegativeWeight(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)
	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "bob", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	weight := -1.0
	_, err = e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "bob", RelationType: "knows", Weight: &weight}, p.ID, p.ID)
	require.Error(t, err)
	assert.Equal(t, graph.KindInvalidInput, graph.KindOf(err))
}

func TestUpdateRelationWeightReplacesWeightNotIdentity(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)
	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "bob", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	rel, err := e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "bob", RelationType: "knows"}, p.ID, p.ID)
	require.NoError(t, err)

	newWeight := 2.5
	updated, err := e.UpdateRelationWeight(ctx, rel.ID, &newWeight, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.Weight)
	assert.Equal(t, 2.5, *updated.Weight)
	assert.Equal(t, rel.FromEntityID, updated.FromEntityID)
	assert.Equal(t, rel.ToEntityID, updated.ToEntityID)
}

func TestGetRelationsMergesLocalAndCrossProjectEdges(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)
	other, err := e.CreateProject(ctx, "other", "")
	require.NoError(t, err)

	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "widget", EntityType: "product"}, other.ID)
	require.NoError(t, err)

	_, err = e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "widget", RelationType: "owns"}, p.ID, other.ID)
	require.NoError(t, err)

	rels, err := e.GetRelations(ctx, "alice", graph.DirOutgoing, p.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "owns", rels[0].RelationType)
}

func TestDeleteProjectRequiresForceWhenNotEmpty(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)
	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	err = e.DeleteProject(ctx, p.ID, false)
	require.Error(t, err)
	assert.Equal(t, graph.KindInvalidInput, graph.KindOf(err))

	require.NoError(t, e.DeleteProject(ctx, p.ID, true))
	_, err = e.GetProject(ctx, p.ID)
	require.Error(t, err)
	assert.Equal(t, graph.KindNotFound, graph.KindOf(err))
}

func TestReadGraphReturnsEntitiesAndRelations(t *testing.T) {
	ctx := context.Background()
	e, p := newEngine(t)
	_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "bob", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "bob", RelationType: "knows"}, p.ID, p.ID)
	require.NoError(t, err)

	g, err := e.ReadGraph(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, g.Entities, 2)
	assert.Len(t, g.Relations, 1)
}
