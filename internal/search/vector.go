package search

import (
	"context"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/vecmath"
)

// searchVector ranks candidates by cosine similarity between q.QueryEmbedding
// and each entity's stored embedding. Entities with no embedding (or one of
// a different dimensionality) are skipped rather than erroring, so a
// partially-embedded project degrades gracefully instead of failing the
// whole query.
func searchVector(ctx context.Context, store graph.Store, q Query, projectIDs []string) ([]Hit, error) {
	entities, err := store.ListEntities(ctx, graph.EntityFilter{
		ProjectIDs: projectIDs,
		Types:      q.EntityTypes,
		Tags:       q.Tags,
		TagMode:    q.TagMode,
	})
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, e := range entities {
		if len(e.Embedding) == 0 || len(e.Embedding) != len(q.QueryEmbedding) {
			continue
		}
		score := vecmath.Cosine(q.QueryEmbedding, e.Embedding)
		if score >= q.SimilarityThreshold {
			hits = append(hits, Hit{Entity: e, Score: score})
		}
	}
	sortHitsDesc(hits)
	return hits, nil
}
