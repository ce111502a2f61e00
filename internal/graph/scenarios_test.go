package graph_test

// End-to-end scenarios running the fully wired engine: graph validation,
// search ranking, and traversal all behind the single Engine contract a
// driver sees, over the in-memory backend.

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/search"
	"github.com/parsnip-mcp/parsnip/internal/storage/memory"
	"github.com/parsnip-mcp/parsnip/internal/traverse"
)

// wiredEngine assembles the full stack the way a driver's startup does.
func wiredEngine(t *testing.T) *graph.Engine {
	t.Helper()
	store := memory.New()
	ge := graph.New(store)
	search.New(store, "").Wire(ge)
	traverse.Wire(ge)
	return ge
}

func TestScenarioPersonWorksAtCompany(t *testing.T) {
	ctx := context.Background()
	ge := wiredEngine(t)

	work, err := ge.CreateProject(ctx, "work", "")
	require.NoError(t, err)

	_, err = ge.CreateEntity(ctx, &graph.NewEntity{
		Name:         "John_Smith",
		EntityType:   "person",
		Observations: []string{"Senior engineer at Acme"},
		Tags:         []string{"engineer"},
	}, work.ID)
	require.NoError(t, err)
	_, err = ge.CreateEntity(ctx, &graph.NewEntity{Name: "Acme_Corp", EntityType: "company"}, work.ID)
	require.NoError(t, err)
	_, err = ge.CreateRelation(ctx, &graph.NewRelation{
		FromEntityName: "John_Smith", ToEntityName: "Acme_Corp", RelationType: "works_at",
	}, work.ID, work.ID)
	require.NoError(t, err)

	res, err := ge.Search(ctx, graph.SearchQuery{
		Text:  "John",
		Mode:  graph.SearchModeExact,
		Scope: graph.SearchScope{Kind: graph.ScopeSingle, ProjectIDs: []string{work.ID}},
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "John_Smith", res.Hits[0].Entity.Name)

	rels, err := ge.GetRelations(ctx, "John_Smith", graph.DirOutgoing, work.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "works_at", rels[0].RelationType)
	acme, err := ge.GetEntity(ctx, "Acme_Corp", work.ID)
	require.NoError(t, err)
	assert.Equal(t, acme.ID, rels[0].ToEntityID)
}

func TestScenarioCrossProjectTraversal(t *testing.T) {
	ctx := context.Background()
	ge := wiredEngine(t)

	a, err := ge.CreateProject(ctx, "a", "")
	require.NoError(t, err)
	b, err := ge.CreateProject(ctx, "b", "")
	require.NoError(t, err)

	_, err = ge.CreateEntity(ctx, &graph.NewEntity{Name: "Alice", EntityType: "person"}, a.ID)
	require.NoError(t, err)
	_, err = ge.CreateEntity(ctx, &graph.NewEntity{Name: "Bob", EntityType: "person"}, b.ID)
	require.NoError(t, err)
	_, err = ge.CreateRelation(ctx, &graph.NewRelation{
		FromEntityName: "Alice", ToEntityName: "Bob", RelationType: "knows",
	}, a.ID, b.ID)
	require.NoError(t, err)

	g, err := ge.Traverse(ctx, graph.TraverseQuery{
		Start: "Alice", ProjectID: a.ID, MaxDepth: 1, Direction: graph.DirBoth,
	})
	require.NoError(t, err)
	require.Len(t, g.Entities, 2)
	names := []string{g.Entities[0].Name, g.Entities[1].Name}
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, names)
	require.Len(t, g.Relations, 1)
	assert.Equal(t, "knows", g.Relations[0].RelationType)
}

func TestScenarioWeightedPathPrefersCheaperHops(t *testing.T) {
	ctx := context.Background()
	ge := wiredEngine(t)

	p, err := ge.GetOrCreateDefaultProject(ctx)
	require.NoError(t, err)

	for _, name := range []string{"Alice", "Bob", "Carol", "Dave"} {
		_, err := ge.CreateEntity(ctx, &graph.NewEntity{Name: name, EntityType: "person"}, p.ID)
		require.NoError(t, err)
	}
	one := 1.0
	for _, hop := range [][2]string{{"Alice", "Bob"}, {"Bob", "Carol"}, {"Carol", "Dave"}} {
		_, err := ge.CreateRelation(ctx, &graph.NewRelation{
			FromEntityName: hop[0], ToEntityName: hop[1], RelationType: "reports_to", Weight: &one,
		}, p.ID, p.ID)
		require.NoError(t, err)
	}

	path, err := ge.FindPath(ctx, graph.TraverseQuery{
		Start: "Alice", Target: "Dave", ProjectID: p.ID, Direction: graph.DirOutgoing,
	})
	require.NoError(t, err)
	require.Len(t, path.Entities, 4)
	for i, want := range []string{"Alice", "Bob", "Carol", "Dave"} {
		assert.Equal(t, want, path.Entities[i].Name)
	}

	ten := 10.0
	_, err = ge.CreateRelation(ctx, &graph.NewRelation{
		FromEntityName: "Alice", ToEntityName: "Dave", RelationType: "reports_to", Weight: &ten,
	}, p.ID, p.ID)
	require.NoError(t, err)

	path, err = ge.FindPath(ctx, graph.TraverseQuery{
		Start: "Alice", Target: "Dave", ProjectID: p.ID, Direction: graph.DirOutgoing, Weighted: true,
	})
	require.NoError(t, err)
	require.Len(t, path.Entities, 4)
	assert.Equal(t, 3.0, path.Cost)
}

func TestScenarioFullTextPaginationPartitionsMatches(t *testing.T) {
	ctx := context.Background()
	ge := wiredEngine(t)

	p, err := ge.GetOrCreateDefaultProject(ctx)
	require.NoError(t, err)

	matching := []string{
		"Ada", "Ben", "Cyn", "Dee", "Eli",
		"Fay", "Gus", "Hal", "Ivy", "Jon",
	}
	for _, name := range matching {
		_, err := ge.CreateEntity(ctx, &graph.NewEntity{
			Name:         name,
			EntityType:   "person",
			Observations: []string{"Works as an engineer on the platform team."},
		}, p.ID)
		require.NoError(t, err)
	}
	for _, name := range []string{"Kim", "Lou", "Mia", "Ned", "Ona", "Pat", "Quo", "Rex", "Sal", "Tia"} {
		_, err := ge.CreateEntity(ctx, &graph.NewEntity{
			Name:         name,
			EntityType:   "person",
			Observations: []string{"Tends the rooftop garden."},
		}, p.ID)
		require.NoError(t, err)
	}

	page := func(n int) *graph.SearchResult {
		res, err := ge.Search(ctx, graph.SearchQuery{
			Text:     "engineer",
			Mode:     graph.SearchModeFullText,
			Scope:    graph.SearchScope{Kind: graph.ScopeSingle, ProjectIDs: []string{p.ID}},
			Page:     n,
			PageSize: 5,
		})
		require.NoError(t, err)
		return res
	}

	first, second := page(0), page(1)
	require.Len(t, first.Hits, 5)
	require.Len(t, second.Hits, 5)
	assert.Equal(t, 10, first.Total)
	assert.Equal(t, 10, second.Total)

	seen := map[string]bool{}
	for _, h := range append(first.Hits, second.Hits...) {
		assert.False(t, seen[h.Entity.Name], "entity %q appears on both pages", h.Entity.Name)
		seen[h.Entity.Name] = true
	}
	for _, name := range matching {
		assert.True(t, seen[name], "entity %q missing from the paged union", name)
	}
}

func TestScenarioRemoveMiddleObservationKeepsOrder(t *testing.T) {
	ctx := context.Background()
	ge := wiredEngine(t)

	p, err := ge.GetOrCreateDefaultProject(ctx)
	require.NoError(t, err)

	eve, err := ge.CreateEntity(ctx, &graph.NewEntity{
		Name:         "Eve",
		EntityType:   "person",
		Observations: []string{"a", "b", "c"},
	}, p.ID)
	require.NoError(t, err)
	require.Len(t, eve.Observations, 3)

	eve, err = ge.RemoveObservations(ctx, "Eve", []string{eve.Observations[1].ID}, p.ID)
	require.NoError(t, err)
	require.Len(t, eve.Observations, 2)
	assert.Equal(t, "a", eve.Observations[0].Content)
	assert.Equal(t, "c", eve.Observations[1].Content)
}

func TestScenarioFuzzyThresholdGatesTypoMatch(t *testing.T) {
	ctx := context.Background()
	ge := wiredEngine(t)

	p, err := ge.GetOrCreateDefaultProject(ctx)
	require.NoError(t, err)

	_, err = ge.CreateEntity(ctx, &graph.NewEntity{Name: "John_Smith", EntityType: "person"}, p.ID)
	require.NoError(t, err)

	fuzzy := func(threshold float64) *graph.SearchResult {
		res, err := ge.Search(ctx, graph.SearchQuery{
			Text:           "jonh smth",
			Mode:           graph.SearchModeFuzzy,
			FuzzyThreshold: threshold,
			Scope:          graph.SearchScope{Kind: graph.ScopeSingle, ProjectIDs: []string{p.ID}},
		})
		require.NoError(t, err)
		return res
	}

	res := fuzzy(0.3)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "John_Smith", res.Hits[0].Entity.Name)
	assert.GreaterOrEqual(t, res.Hits[0].Score, 0.3)

	assert.Empty(t, fuzzy(0.95).Hits)
}

func TestSearchIncludeRelationsReturnsEdgesForPage(t *testing.T) {
	ctx := context.Background()
	ge := wiredEngine(t)

	work, err := ge.CreateProject(ctx, "work", "")
	require.NoError(t, err)
	_, err = ge.CreateEntity(ctx, &graph.NewEntity{Name: "John_Smith", EntityType: "person"}, work.ID)
	require.NoError(t, err)
	_, err = ge.CreateEntity(ctx, &graph.NewEntity{Name: "Acme_Corp", EntityType: "company"}, work.ID)
	require.NoError(t, err)
	_, err = ge.CreateRelation(ctx, &graph.NewRelation{
		FromEntityName: "John_Smith", ToEntityName: "Acme_Corp", RelationType: "works_at",
	}, work.ID, work.ID)
	require.NoError(t, err)

	res, err := ge.Search(ctx, graph.SearchQuery{
		Text:             "John",
		Mode:             graph.SearchModeExact,
		Scope:            graph.SearchScope{Kind: graph.ScopeSingle, ProjectIDs: []string{work.ID}},
		IncludeRelations: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	require.Len(t, res.Relations, 1)
	assert.Equal(t, "works_at", res.Relations[0].RelationType)
}
