package traverse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/storage/memory"
	"github.com/parsnip-mcp/parsnip/internal/traverse"
)

// chain builds alice -> bob -> carol -> dave, each "knows" edge weight 1,
// plus a costlier direct alice -> dave edge, so weighted and unweighted
// path queries disagree about the best route.
func chain(t *testing.T) (*graph.Engine, string) {
	t.Helper()
	ctx := context.Background()
	e := graph.New(memory.New())
	p, err := e.GetOrCreateDefaultProject(ctx)
	require.NoError(t, err)

	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: name, EntityType: "person"}, p.ID)
		require.NoError(t, err)
	}

	link := func(from, to string, weight *float64) {
		_, err := e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: from, ToEntityName: to, RelationType: "knows", Weight: weight}, p.ID, p.ID)
		require.NoError(t, err)
	}
	link("alice", "bob", nil)
	link("bob", "carol", nil)
	link("carol", "dave", nil)
	costly := 10.0
	link("alice", "dave", &costly)

	return e, p.ID
}

func TestBFSRespectsMaxDepth(t *testing.T) {
	e, projectID := chain(t)
	ctx := context.Background()

	g, err := traverse.BFS(ctx, e.Store(), traverse.Query{
		Start:     "alice",
		ProjectID: projectID,
		MaxDepth:  1,
		Direction: graph.DirOutgoing,
	})
	require.NoError(t, err)

	names := entityNames(g.Entities)
	assert.Contains(t, names, "alice")
	assert.Contains(t, names, "bob")
	assert.Contains(t, names, "dave") // direct edge, also depth 1
	assert.NotContains(t, names, "carol")
}

func TestBFSDirectionIncomingOnlyFollowsReverseEdges(t *testing.T) {
	e, projectID := chain(t)
	ctx := context.Background()

	g, err := traverse.BFS(ctx, e.Store(), traverse.Query{
		Start:     "carol",
		ProjectID: projectID,
		MaxDepth:  5,
		Direction: graph.DirIncoming,
	})
	require.NoError(t, err)

	names := entityNames(g.Entities)
	assert.Contains(t, names, "carol")
	assert.Contains(t, names, "bob")
	assert.Contains(t, names, "alice")
	assert.NotContains(t, names, "dave") // dave is only reachable forward from carol
}

func TestBFSFiltersByRelationType(t *testing.T) {
	ctx := context.Background()
	e := graph.New(memory.New())
	p, err := e.GetOrCreateDefaultProject(ctx)
	require.NoError(t, err)
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := e.CreateEntity(ctx, &graph.NewEntity{Name: name, EntityType: "person"}, p.ID)
		require.NoError(t, err)
	}
	_, err = e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "bob", RelationType: "knows"}, p.ID, p.ID)
	require.NoError(t, err)
	_, err = e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "carol", RelationType: "blocks"}, p.ID, p.ID)
	require.NoError(t, err)

	g, err := traverse.BFS(ctx, e.Store(), traverse.Query{
		Start:         "alice",
		ProjectID:     p.ID,
		MaxDepth:      2,
		Direction:     graph.DirBoth,
		RelationTypes: []string{"knows"},
	})
	require.NoError(t, err)

	names := entityNames(g.Entities)
	assert.Contains(t, names, "bob")
	assert.NotContains(t, names, "carol")
}

func TestFindPathUnweightedTakesFewestHops(t *testing.T) {
	e, projectID := chain(t)
	ctx := context.Background()

	path, err := traverse.FindPath(ctx, e.Store(), traverse.Query{
		Start:     "alice",
		Target:    "dave",
		ProjectID: projectID,
		Direction: graph.DirOutgoing,
		Weighted:  false,
	})
	require.NoError(t, err)

	assert.Len(t, path.Entities, 2) // direct edge: fewest hops wins over the longer chain
	assert.Equal(t, "alice", path.Entities[0].Name)
	assert.Equal(t, "dave", path.Entities[1].Name)
}

func TestFindPathWeightedPrefersCheaperLongerRoute(t *testing.T) {
	e, projectID := chain(t)
	ctx := context.Background()

	path, err := traverse.FindPath(ctx, e.Store(), traverse.Query{
		Start:     "alice",
		Target:    "dave",
		ProjectID: projectID,
		Direction: graph.DirOutgoing,
		Weighted:  true,
	})
	require.NoError(t, err)

	assert.Len(t, path.Entities, 4) // alice->bob->carol->dave costs 3, cheaper than the direct 10-weight edge
	assert.Equal(t, 3.0, path.Cost)
}

func TestFindPathReturnsNoPathWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	e := graph.New(memory.New())
	p, err := e.GetOrCreateDefaultProject(ctx)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "island", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	_, err = traverse.FindPath(ctx, e.Store(), traverse.Query{
		Start:     "alice",
		Target:    "island",
		ProjectID: p.ID,
		Direction: graph.DirOutgoing,
	})
	require.Error(t, err)
	assert.Equal(t, graph.KindNoPath, graph.KindOf(err))
}

func TestDijkstraRejectsNegativeWeight(t *testing.T) {
	ctx := context.Background()
	e := graph.New(memory.New())
	p, err := e.GetOrCreateDefaultProject(ctx)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "alice", EntityType: "person"}, p.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "bob", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	negative := -5.0
	_, err = e.CreateRelation(ctx, &graph.NewRelation{FromEntityName: "alice", ToEntityName: "bob", RelationType: "knows", Weight: &negative}, p.ID, p.ID)
	require.Error(t, err) // rejected at creation time by the engine itself
	assert.Equal(t, graph.KindInvalidInput, graph.KindOf(err))

	// The store does not validate weights, so a negative edge written to it
	// directly still reaches Dijkstra, which refuses it.
	alice, err := e.GetEntity(ctx, "alice", p.ID)
	require.NoError(t, err)
	bob, err := e.GetEntity(ctx, "bob", p.ID)
	require.NoError(t, err)
	require.NoError(t, e.Store().CreateRelation(ctx, &graph.Relation{
		ID: "rel_negative", FromProjectID: p.ID, ToProjectID: p.ID,
		FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows", Weight: &negative,
	}))
	_, err = traverse.FindPath(ctx, e.Store(), traverse.Query{Start: "alice", Target: "bob", ProjectID: p.ID, Direction: graph.DirOutgoing, Weighted: true})
	require.Error(t, err)
	assert.Equal(t, graph.KindInvalidInput, graph.KindOf(err))
}

func entityNames(entities []*graph.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}
