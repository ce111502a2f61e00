package search

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// searchFuzzy ranks candidates by case-insensitive Jaro-Winkler similarity
// against the entity's name and, for multi-word queries, the best-scoring
// observation, taking the max of the two; anything below q.FuzzyThreshold
// is dropped.
// antzucaro/matchr is the only Jaro-Winkler implementation available.
func searchFuzzy(ctx context.Context, store graph.Store, q Query, projectIDs []string) ([]Hit, error) {
	entities, err := listCandidates(ctx, store, q, projectIDs)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(q.Text)
	multiWord := len(strings.Fields(needle)) > 1

	var hits []Hit
	for _, e := range entities {
		best := matchr.JaroWinkler(needle, strings.ToLower(e.Name), true)
		if multiWord {
			for _, obs := range e.Observations {
				if s := matchr.JaroWinkler(needle, strings.ToLower(obs.Content), true); s > best {
					best = s
				}
			}
		}
		if best >= q.FuzzyThreshold {
			hits = append(hits, Hit{Entity: e, Score: best})
		}
	}
	sortHitsDesc(hits)
	return hits, nil
}
