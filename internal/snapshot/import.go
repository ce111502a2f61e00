package snapshot

import (
	"context"
	"fmt"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// Options configures how Import handles records already present in the
// target store.
type Options struct {
	// SkipExisting counts a record whose id or unique key is already taken
	// as skipped instead of failing the whole import.
	SkipExisting bool
}

// Result reports what Import actually did.
type Result struct {
	ProjectsCreated  int
	EntitiesCreated  int
	RelationsCreated int
	Skipped          int
}

// Import loads snap into store, preserving ids and timestamps. Projects
// land first, then entities, then relations, so every reference resolves by
// the time it's written. A relation whose endpoint is neither in the
// snapshot nor already in the store fails NotFound regardless of options;
// that's a broken snapshot, not a collision.
func Import(ctx context.Context, store graph.Store, snap *Snapshot, opts Options) (*Result, error) {
	result := &Result{}

	for _, p := range snap.Projects {
		if p.ID == "" || p.Name == "" {
			return nil, graph.InvalidInput("snapshot_import", fmt.Errorf("project with empty id or name"))
		}
		err := store.CreateProject(ctx, p)
		switch {
		case err == nil:
			result.ProjectsCreated++
		case graph.KindOf(err) == graph.KindAlreadyExists && opts.SkipExisting:
			result.Skipped++
		default:
			return nil, err
		}
	}

	for _, e := range snap.Entities {
		if e.ID == "" || e.Name == "" || e.ProjectID == "" {
			return nil, graph.InvalidInput("snapshot_import", fmt.Errorf("entity with empty id, name, or project_id"))
		}
		err := store.CreateEntity(ctx, e)
		switch {
		case err == nil:
			result.EntitiesCreated++
		case graph.KindOf(err) == graph.KindAlreadyExists && opts.SkipExisting:
			result.Skipped++
		default:
			return nil, err
		}
	}

	for _, r := range snap.Relations {
		if r.ID == "" || r.FromEntityID == "" || r.ToEntityID == "" || r.RelationType == "" {
			return nil, graph.InvalidInput("snapshot_import", fmt.Errorf("relation with empty id, endpoint, or type"))
		}
		if r.Weight != nil && *r.Weight < 0 {
			return nil, graph.InvalidInput("snapshot_import", fmt.Errorf("relation %q has negative weight", r.ID))
		}
		err := store.CreateRelation(ctx, r)
		switch {
		case err == nil:
			result.RelationsCreated++
		case graph.KindOf(err) == graph.KindAlreadyExists && opts.SkipExisting:
			result.Skipped++
		default:
			return nil, err
		}
	}

	return result, nil
}
