package search

import "github.com/parsnip-mcp/parsnip/internal/graph"

// Hit is one ranked result: the matched entity plus the score the active
// mode assigned it. Score is mode-specific (1 for every exact match,
// Jaro-Winkler similarity for fuzzy, BM25 for fulltext, fused [0,1] for
// hybrid, cosine similarity for vector) and only comparable within a
// single Result.
type Hit struct {
	Entity *graph.Entity
	Score  float64
}

// Result is one page of ranked hits. Relations is populated only when the
// query asked for IncludeRelations: every edge touching an entity on this
// page, deduplicated by relation id and sorted by id for reproducibility.
type Result struct {
	Hits      []Hit
	Relations []*graph.Relation
	Total     int // total matches before pagination
	Page      int
	PageSize  int
}

// paginate slices a fully-ranked hit list down to the requested page,
// returning the total count alongside it.
func paginate(hits []Hit, page, pageSize int) *Result {
	total := len(hits)
	start := page * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out := make([]Hit, end-start)
	copy(out, hits[start:end])
	return &Result{Hits: out, Total: total, Page: page, PageSize: pageSize}
}
