package search

import (
	"context"
	"sort"
	"strings"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// searchExact does a case-insensitive substring match over each entity's
// name and observation contents. Ordering is deterministic by name
// ascending rather than by score — exact mode is a membership test, not a
// ranking.
func searchExact(ctx context.Context, store graph.Store, q Query, projectIDs []string) ([]Hit, error) {
	entities, err := listCandidates(ctx, store, q, projectIDs)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(q.Text)
	if needle == "" {
		return nil, nil
	}

	var hits []Hit
	for _, e := range entities {
		matched := strings.Contains(strings.ToLower(e.Name), needle)
		if !matched {
			for _, obs := range e.Observations {
				if strings.Contains(strings.ToLower(obs.Content), needle) {
					matched = true
					break
				}
			}
		}
		if matched {
			hits = append(hits, Hit{Entity: e, Score: 1})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Entity.Name < hits[j].Entity.Name })
	return hits, nil
}

// listCandidates applies the shared EntityFilter (scope, type, tags) ahead
// of any text-ranking pass.
func listCandidates(ctx context.Context, store graph.Store, q Query, projectIDs []string) ([]*graph.Entity, error) {
	return store.ListEntities(ctx, graph.EntityFilter{
		ProjectIDs: projectIDs,
		Types:      q.EntityTypes,
		Tags:       q.Tags,
		TagMode:    q.TagMode,
	})
}

// sortHitsDesc orders by score descending, then name ascending, so ties are
// deterministic across modes that rank rather than just filter (fuzzy,
// fulltext, hybrid, vector).
func sortHitsDesc(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entity.Name < hits[j].Entity.Name
	})
}
