package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/storage"
	"github.com/parsnip-mcp/parsnip/internal/storage/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := sqlite.Open(context.Background(), dir, storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchemaAtVersionOne(t *testing.T) {
	s := openStore(t)
	v, err := s.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graph.LatestSchemaVersion, v)
}

func TestOpenSecondTimeFailsWhileFirstHandleIsOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first, err := sqlite.Open(ctx, dir, storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	_, err = sqlite.Open(ctx, dir, storage.Options{})
	require.Error(t, err)
}

func TestProjectCRUD(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p := &graph.Project{ID: "proj_1", Name: "demo", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProjectByName(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	all, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteProject(ctx, p.ID, false))
	_, err = s.GetProject(ctx, p.ID)
	require.Error(t, err)
	assert.Equal(t, graph.KindNotFound, graph.KindOf(err))
}

func TestEntityCRUDAndTagIndex(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p := &graph.Project{ID: "proj_1", Name: "demo", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateProject(ctx, p))

	now := time.Now().UTC()
	e := &graph.Entity{
		ID: "ent_1", ProjectID: p.ID, Name: "alice", EntityType: "person",
		Tags: []string{"vip"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateEntity(ctx, e))

	got, err := s.GetEntity(ctx, p.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)

	listed, err := s.ListEntities(ctx, graph.EntityFilter{ProjectIDs: []string{p.ID}, Tags: []string{"vip"}})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, s.DeleteEntity(ctx, p.ID, "alice"))
	_, err = s.GetEntityByID(ctx, "ent_1")
	require.Error(t, err)
}

func TestRelationCRUDAndDuplicateTripleRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p := &graph.Project{ID: "proj_1", Name: "demo", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateProject(ctx, p))
	now := time.Now().UTC()
	alice := &graph.Entity{ID: "ent_a", ProjectID: p.ID, Name: "alice", EntityType: "person", CreatedAt: now, UpdatedAt: now}
	bob := &graph.Entity{ID: "ent_b", ProjectID: p.ID, Name: "bob", EntityType: "person", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateEntity(ctx, alice))
	require.NoError(t, s.CreateEntity(ctx, bob))

	rel := &graph.Relation{ID: "rel_1", FromProjectID: p.ID, ToProjectID: p.ID, FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows", CreatedAt: now}
	require.NoError(t, s.CreateRelation(ctx, rel))

	dup := &graph.Relation{ID: "rel_2", FromProjectID: p.ID, ToProjectID: p.ID, FromEntityID: alice.ID, ToEntityID: bob.ID, RelationType: "knows", CreatedAt: now}
	err := s.CreateRelation(ctx, dup)
	require.Error(t, err)
	assert.Equal(t, graph.KindAlreadyExists, graph.KindOf(err))

	rels, err := s.GetRelationsForEntity(ctx, p.ID, alice.ID, graph.DirOutgoing)
	require.NoError(t, err)
	require.Len(t, rels, 1)

	require.NoError(t, s.DeleteRelation(ctx, rel.ID))
	_, err = s.GetRelation(ctx, rel.ID)
	require.Error(t, err)
}

func TestMigrateIsNoOpWhenVersionsMatch(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Migrate(context.Background(), graph.LatestSchemaVersion, graph.LatestSchemaVersion))
}
