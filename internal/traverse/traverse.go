// Package traverse implements bounded graph walks (BFS) and weighted
// shortest paths (Dijkstra) over the typed edge set exposed by the storage
// layer, built on container/heap and plain BFS.
package traverse

import (
	"context"
	"sort"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// Query describes a bounded graph walk.
type Query struct {
	Start         string // entity name
	Target        string // optional, for path queries
	ProjectID     string
	MaxDepth      int
	Direction     graph.Direction
	EntityTypes   []string // OR filter; empty = no filter
	RelationTypes []string // OR filter; empty = no filter
	Weighted      bool
}

func (q Query) entityTypeAllowed(t string) bool {
	if len(q.EntityTypes) == 0 {
		return true
	}
	for _, want := range q.EntityTypes {
		if want == t {
			return true
		}
	}
	return false
}

func (q Query) relationTypeAllowed(t string) bool {
	if len(q.RelationTypes) == 0 {
		return true
	}
	for _, want := range q.RelationTypes {
		if want == t {
			return true
		}
	}
	return false
}

// neighbor describes one admissible hop discovered while expanding a node.
type neighbor struct {
	relation *graph.Relation
	entityID string
}

// expand returns the relations leaving (or entering, or both, per
// q.Direction) entityID, sorted by relation id ascending so equal-cost or
// equal-depth results are reproducible, filtered by relation type and the
// neighbor entity's type.
func expand(ctx context.Context, store graph.Store, q Query, entityID string) ([]neighbor, error) {
	rels, err := store.GetRelationsForEntityGlobal(ctx, entityID)
	if err != nil {
		return nil, err
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })

	var out []neighbor
	for _, r := range rels {
		var neighborID string
		switch {
		case r.FromEntityID == entityID && (q.Direction == graph.DirOutgoing || q.Direction == graph.DirBoth):
			neighborID = r.ToEntityID
		case r.ToEntityID == entityID && (q.Direction == graph.DirIncoming || q.Direction == graph.DirBoth):
			neighborID = r.FromEntityID
		default:
			continue
		}
		if !q.relationTypeAllowed(r.RelationType) {
			continue
		}
		neighborEntity, err := store.GetEntityByID(ctx, neighborID)
		if err != nil {
			if graph.KindOf(err) == graph.KindNotFound {
				continue
			}
			return nil, err
		}
		if !q.entityTypeAllowed(neighborEntity.EntityType) {
			continue
		}
		out = append(out, neighbor{relation: r, entityID: neighborID})
	}
	return out, nil
}

// BFS performs a level-order walk from q.Start up to q.MaxDepth hops,
// returning every entity reached (including the start) and every admissible
// relation followed from an expanded entity, including relations that lead
// back to an entity already reached.
func BFS(ctx context.Context, store graph.Store, q Query) (*graph.Graph, error) {
	start, err := store.GetEntity(ctx, q.ProjectID, q.Start)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{start.ID: true}
	order := []string{start.ID}
	usedRelations := map[string]*graph.Relation{}

	frontier := []string{start.ID}
	for depth := 0; depth < q.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := expand(ctx, store, q, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				usedRelations[n.relation.ID] = n.relation
				if !visited[n.entityID] {
					visited[n.entityID] = true
					order = append(order, n.entityID)
					next = append(next, n.entityID)
				}
			}
		}
		frontier = next
	}

	entities := make([]*graph.Entity, 0, len(order))
	for _, id := range order {
		e, err := store.GetEntityByID(ctx, id)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	relations := make([]*graph.Relation, 0, len(usedRelations))
	for _, r := range usedRelations {
		relations = append(relations, r)
	}
	sort.Slice(relations, func(i, j int) bool { return relations[i].ID < relations[j].ID })

	return &graph.Graph{Entities: entities, Relations: relations}, nil
}
