// Package snapshot serializes a store's full contents (projects, entities,
// relations) to a single JSON document and loads one back, preserving ids
// and timestamps so an export followed by an import into a fresh store is
// an equivalent projection of the original. Drivers build their `export`
// and `import` surfaces on top of this package.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// Snapshot is the export document: one object with projects, entities, and
// relations arrays. Timestamps serialize as RFC 3339 via encoding/json's
// time.Time encoding.
type Snapshot struct {
	Projects  []*graph.Project  `json:"projects"`
	Entities  []*graph.Entity   `json:"entities"`
	Relations []*graph.Relation `json:"relations"`
}

// Export captures every project, entity, and relation in store, each slice
// sorted by id so repeated exports of the same store are byte-identical.
func Export(ctx context.Context, store graph.Store) (*Snapshot, error) {
	projects, err := store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := store.ListEntities(ctx, graph.EntityFilter{})
	if err != nil {
		return nil, err
	}
	relations, err := store.GetAllRelationsAllProjects(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	sort.Slice(relations, func(i, j int) bool { return relations[i].ID < relations[j].ID })

	return &Snapshot{Projects: projects, Entities: entities, Relations: relations}, nil
}

// WriteFile writes snap to path atomically: the document lands in a temp
// file in the same directory, is renamed over path, and ends up owner-only
// (0600) since exported graphs can hold sensitive facts.
func WriteFile(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return graph.StorageErr("snapshot_write", fmt.Errorf("marshal snapshot: %w", err))
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return graph.StorageErr("snapshot_write", fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return graph.StorageErr("snapshot_write", fmt.Errorf("chmod temp file: %w", err))
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return graph.StorageErr("snapshot_write", fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return graph.StorageErr("snapshot_write", fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return graph.StorageErr("snapshot_write", fmt.Errorf("rename into place: %w", err))
	}
	return nil
}

// ReadFile loads a snapshot document written by WriteFile (or any document
// matching the export format).
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, graph.StorageErr("snapshot_read", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, graph.InvalidInput("snapshot_read", fmt.Errorf("parse snapshot: %w", err))
	}
	return &snap, nil
}
