package snapshot_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/snapshot"
	"github.com/parsnip-mcp/parsnip/internal/storage/memory"
)

func seedStore(t *testing.T) (graph.Store, *graph.Engine) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	e := graph.New(store)

	work, err := e.CreateProject(ctx, "work", "")
	require.NoError(t, err)
	home, err := e.CreateProject(ctx, "home", "")
	require.NoError(t, err)

	_, err = e.CreateEntity(ctx, &graph.NewEntity{
		Name:         "John_Smith",
		EntityType:   "person",
		Observations: []string{"Senior engineer at Acme"},
		Tags:         []string{"engineer"},
	}, work.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "Acme_Corp", EntityType: "company"}, work.ID)
	require.NoError(t, err)
	_, err = e.CreateEntity(ctx, &graph.NewEntity{Name: "Garden", EntityType: "place"}, home.ID)
	require.NoError(t, err)

	_, err = e.CreateRelation(ctx, &graph.NewRelation{
		FromEntityName: "John_Smith", ToEntityName: "Acme_Corp", RelationType: "works_at",
	}, work.ID, work.ID)
	require.NoError(t, err)
	_, err = e.CreateRelation(ctx, &graph.NewRelation{
		FromEntityName: "John_Smith", ToEntityName: "Garden", RelationType: "tends",
	}, work.ID, home.ID)
	require.NoError(t, err)

	return store, e
}

func TestExportImportRoundTripsIntoFreshStore(t *testing.T) {
	ctx := context.Background()
	store, _ := seedStore(t)

	snap, err := snapshot.Export(ctx, store)
	require.NoError(t, err)
	require.Len(t, snap.Projects, 2)
	require.Len(t, snap.Entities, 3)
	require.Len(t, snap.Relations, 2)

	fresh := memory.New()
	result, err := snapshot.Import(ctx, fresh, snap, snapshot.Options{})
	require.NoError(t, err)
	require.Equal(t, 2, result.ProjectsCreated)
	require.Equal(t, 3, result.EntitiesCreated)
	require.Equal(t, 2, result.RelationsCreated)
	require.Zero(t, result.Skipped)

	// Re-exporting the fresh store yields the same projection: same ids,
	// same fields, same order.
	snap2, err := snapshot.Export(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, snap.Projects, snap2.Projects)
	require.Equal(t, snap.Entities, snap2.Entities)
	require.Equal(t, snap.Relations, snap2.Relations)
}

func TestWriteFileThenReadFilePreservesDocument(t *testing.T) {
	ctx := context.Background()
	store, _ := seedStore(t)

	snap, err := snapshot.Export(ctx, store)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, snapshot.WriteFile(path, snap))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := snapshot.ReadFile(path)
	require.NoError(t, err)

	// The round-trip law is bytewise equivalence of the projection, so
	// compare re-marshaled JSON rather than Go values (time.Time equality
	// through reflect is stricter than RFC 3339 carries).
	want, err := json.Marshal(snap)
	require.NoError(t, err)
	got, err := json.Marshal(loaded)
	require.NoError(t, err)
	require.JSONEq(t, string(want), string(got))

	require.True(t, snap.Entities[0].CreatedAt.Equal(loaded.Entities[0].CreatedAt))
}

func TestImportSkipExistingCountsCollisions(t *testing.T) {
	ctx := context.Background()
	store, _ := seedStore(t)

	snap, err := snapshot.Export(ctx, store)
	require.NoError(t, err)

	// Importing back into the same store collides on everything.
	_, err = snapshot.Import(ctx, store, snap, snapshot.Options{})
	require.Error(t, err)
	require.Equal(t, graph.KindAlreadyExists, graph.KindOf(err))

	result, err := snapshot.Import(ctx, store, snap, snapshot.Options{SkipExisting: true})
	require.NoError(t, err)
	require.Zero(t, result.ProjectsCreated+result.EntitiesCreated+result.RelationsCreated)
	require.Equal(t, 7, result.Skipped)
}

func TestImportRejectsRelationWithMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	fresh := memory.New()

	snap := &snapshot.Snapshot{
		Relations: []*graph.Relation{{
			ID: "rel_x", FromProjectID: "p", ToProjectID: "p",
			FromEntityID: "ent_missing", ToEntityID: "ent_also_missing", RelationType: "knows",
		}},
	}
	_, err := snapshot.Import(ctx, fresh, snap, snapshot.Options{SkipExisting: true})
	require.Error(t, err)
	require.Equal(t, graph.KindNotFound, graph.KindOf(err))
}
