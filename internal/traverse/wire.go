package traverse

import (
	"context"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// Wire registers BFS and FindPath as the traversal implementations behind
// ge, converting between the graph package's driver-facing contract types
// and this package's own Query/Path shapes.
func Wire(ge *graph.Engine) {
	ge.SetTraverseFunc(func(ctx context.Context, store graph.Store, q graph.TraverseQuery) (*graph.Graph, error) {
		return BFS(ctx, store, fromGraphQuery(q))
	})
	ge.SetFindPathFunc(func(ctx context.Context, store graph.Store, q graph.TraverseQuery) (*graph.Path, error) {
		p, err := FindPath(ctx, store, fromGraphQuery(q))
		if err != nil {
			return nil, err
		}
		return &graph.Path{Entities: p.Entities, Relations: p.Relations, Cost: p.Cost}, nil
	})
}

func fromGraphQuery(q graph.TraverseQuery) Query {
	return Query{
		Start:         q.Start,
		Target:        q.Target,
		ProjectID:     q.ProjectID,
		MaxDepth:      q.MaxDepth,
		Direction:     q.Direction,
		EntityTypes:   q.EntityTypes,
		RelationTypes: q.RelationTypes,
		Weighted:      q.Weighted,
	}
}
