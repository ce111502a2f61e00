package search

import (
	"context"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// searchHybrid fuses the fuzzy and full-text rankings: each mode's scores
// are min-max normalized to [0,1] independently, then combined with the
// query's configured weights (default 0.5/0.5). An entity scored by only
// one mode is still ranked, using 0 for the missing half.
func searchHybrid(ctx context.Context, store graph.Store, idx *Index, q Query, projectIDs []string) ([]Hit, error) {
	fuzzyHits, err := searchFuzzy(ctx, store, withFuzzyFloor(q), projectIDs)
	if err != nil {
		return nil, err
	}
	fullTextHits, err := searchFullText(ctx, store, idx, q, projectIDs)
	if err != nil {
		return nil, err
	}

	fuzzyNorm := normalize(fuzzyHits)
	fullTextNorm := normalize(fullTextHits)

	combined := map[string]*Hit{}
	for id, s := range fuzzyNorm {
		combined[id] = &Hit{Entity: s.entity, Score: q.HybridFuzzyWeight * s.score}
	}
	for id, s := range fullTextNorm {
		if h, ok := combined[id]; ok {
			h.Score += q.HybridFullTextWeight * s.score
		} else {
			combined[id] = &Hit{Entity: s.entity, Score: q.HybridFullTextWeight * s.score}
		}
	}

	hits := make([]Hit, 0, len(combined))
	for _, h := range combined {
		hits = append(hits, *h)
	}
	sortHitsDesc(hits)
	return hits, nil
}

// withFuzzyFloor relaxes the fuzzy threshold for the hybrid pass: hybrid
// fusion should consider any non-trivial fuzzy candidate and let the fused
// score (not a hard per-mode cutoff) decide rank.
func withFuzzyFloor(q Query) Query {
	q.FuzzyThreshold = 0
	return q
}

type normalizedHit struct {
	entity *graph.Entity
	score  float64
}

// normalize min-max scales a hit list's scores to [0,1]. A single hit (or a
// zero spread) normalizes to 1, since there's nothing to scale against.
func normalize(hits []Hit) map[string]normalizedHit {
	out := make(map[string]normalizedHit, len(hits))
	if len(hits) == 0 {
		return out
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	spread := max - min
	for _, h := range hits {
		norm := 1.0
		if spread > 0 {
			norm = (h.Score - min) / spread
		}
		out[h.Entity.ID] = normalizedHit{entity: h.Entity, score: norm}
	}
	return out
}
