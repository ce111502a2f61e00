package search

import (
	"context"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// Wire registers e as the search implementation and invalidation hook behind
// ge, converting between the graph package's driver-facing contract types
// and this package's own Query/Result shapes. Queries arriving through this
// seam are unvalidated driver input, so they run through the Builder rather
// than being copied field-for-field.
func (e *Engine) Wire(ge *graph.Engine) {
	ge.SetSearchFunc(func(ctx context.Context, _ graph.Store, gq graph.SearchQuery) (*graph.SearchResult, error) {
		q, err := fromGraphQuery(gq)
		if err != nil {
			return nil, err
		}
		result, err := e.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		return toGraphResult(result), nil
	})
	ge.SetIndexHook(e.Invalidate)
}

func fromGraphQuery(q graph.SearchQuery) (Query, error) {
	mode := Mode(q.Mode)
	if q.Mode == "" {
		mode = ModeExact
	}
	pageSize := q.PageSize
	if pageSize == 0 { // zero value means the driver left it unset
		pageSize = DefaultPageSize
	}
	b := NewBuilder().
		Text(q.Text).
		Mode(mode).
		FuzzyThreshold(q.FuzzyThreshold).
		SimilarityThreshold(q.SimilarityThreshold).
		EntityTypes(q.EntityTypes).
		Tags(q.Tags, q.TagMode).
		Page(q.Page, pageSize).
		IncludeRelations(q.IncludeRelations).
		QueryEmbedding(q.QueryEmbedding)
	if q.Scope.Kind != "" {
		b = b.Scope(Scope{Kind: ScopeKind(q.Scope.Kind), ProjectIDs: q.Scope.ProjectIDs})
	}
	return b.Build()
}

func toGraphResult(r *Result) *graph.SearchResult {
	out := &graph.SearchResult{Total: r.Total, Relations: r.Relations}
	for _, h := range r.Hits {
		out.Hits = append(out.Hits, graph.SearchHit{Entity: h.Entity, Score: h.Score})
	}
	return out
}
