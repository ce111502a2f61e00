package search

import (
	"context"
	"fmt"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// resolveProjectIDs turns a Scope into the concrete project id list passed
// to graph.EntityFilter.ProjectIDs. ScopeAll resolves to nil (the store's
// own "no constraint means every project" convention), so callers never pay
// for an explicit project enumeration on the common case.
func resolveProjectIDs(ctx context.Context, store graph.Store, scope Scope) ([]string, error) {
	switch scope.Kind {
	case ScopeAll, "":
		return nil, nil
	case ScopeSingle:
		if len(scope.ProjectIDs) != 1 {
			return nil, graph.InvalidInput("resolve_scope", fmt.Errorf("single scope requires exactly one project id"))
		}
		if _, err := store.GetProject(ctx, scope.ProjectIDs[0]); err != nil {
			return nil, err
		}
		return scope.ProjectIDs, nil
	case ScopeMultiple:
		if len(scope.ProjectIDs) == 0 {
			return nil, graph.InvalidInput("resolve_scope", fmt.Errorf("multiple scope requires at least one project id"))
		}
		for _, id := range scope.ProjectIDs {
			if _, err := store.GetProject(ctx, id); err != nil {
				return nil, err
			}
		}
		return scope.ProjectIDs, nil
	default:
		return nil, graph.InvalidInput("resolve_scope", fmt.Errorf("unknown scope kind %q", scope.Kind))
	}
}
