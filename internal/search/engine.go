package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// Engine dispatches a validated Query to the ranking mode it names. It holds
// the one piece of mutable state the ranking modes need beyond the store:
// the full-text inverted index, since fuzzy/exact/vector scoring is cheap
// enough to recompute per-query directly against graph.Store.
type Engine struct {
	store graph.Store
	index *Index
}

// New wraps a Store with a full-text index persisted under dataDir (pass ""
// to keep the index in-memory only).
func New(store graph.Store, dataDir string) *Engine {
	return &Engine{store: store, index: NewIndex(dataDir)}
}

// Invalidate marks the full-text index stale. Callers that mutate entities
// or observations through the graph engine should call this afterward; the
// next fulltext or hybrid search pays the rebuild cost once, coalesced
// across concurrent callers.
func (e *Engine) Invalidate() { e.index.Invalidate() }

// Search runs q against the store and returns one page of ranked hits.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	projectIDs, err := resolveProjectIDs(ctx, e.store, q.Scope)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	switch q.Mode {
	case ModeExact:
		hits, err = searchExact(ctx, e.store, q, projectIDs)
	case ModeFuzzy:
		hits, err = searchFuzzy(ctx, e.store, q, projectIDs)
	case ModeFullText:
		hits, err = searchFullText(ctx, e.store, e.index, q, projectIDs)
	case ModeHybrid:
		hits, err = searchHybrid(ctx, e.store, e.index, q, projectIDs)
	case ModeVector:
		hits, err = searchVector(ctx, e.store, q, projectIDs)
	default:
		return nil, graph.InvalidInput("search", fmt.Errorf("unknown search mode %q", q.Mode))
	}
	if err != nil {
		return nil, err
	}

	result := paginate(hits, q.Page, q.PageSize)
	if q.IncludeRelations {
		result.Relations, err = relationsForPage(ctx, e.store, result.Hits)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// relationsForPage collects every edge touching an entity on the returned
// page, including cross-project edges, deduplicated by relation id and
// sorted by id.
func relationsForPage(ctx context.Context, store graph.Store, hits []Hit) ([]*graph.Relation, error) {
	seen := make(map[string]bool)
	var out []*graph.Relation
	for _, h := range hits {
		rels, err := store.GetRelationsForEntityGlobal(ctx, h.Entity.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
