package traverse

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// Path is the result of a shortest-path query: the entities visited in
// order (including start and target) and the relations traversed between
// consecutive entities, plus the total cost.
type Path struct {
	Entities  []*graph.Entity
	Relations []*graph.Relation
	Cost      float64
}

// FindPath computes the shortest path from q.Start to q.Target. When
// q.Weighted, it runs Dijkstra over relation.weight (defaulting to 1.0) and
// rejects negative weights. Otherwise it runs unweighted BFS path
// reconstruction, with ties broken by first-discovered (i.e. by the
// ascending relation-id expansion order shared with BFS).
func FindPath(ctx context.Context, store graph.Store, q Query) (*Path, error) {
	start, err := store.GetEntity(ctx, q.ProjectID, q.Start)
	if err != nil {
		return nil, err
	}
	target, err := store.GetEntity(ctx, q.ProjectID, q.Target)
	if err != nil {
		return nil, err
	}

	if q.Weighted {
		return dijkstra(ctx, store, q, start.ID, target.ID)
	}
	return unweightedPath(ctx, store, q, start.ID, target.ID)
}

type pqItem struct {
	entityID string
	cost     float64
	index    int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].cost < pq[j].cost }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

func dijkstra(ctx context.Context, store graph.Store, q Query, startID, targetID string) (*Path, error) {
	dist := map[string]float64{startID: 0}
	prevEntity := map[string]string{}
	prevRelation := map[string]*graph.Relation{}
	visited := map[string]bool{}

	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &pqItem{entityID: startID, cost: 0})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		if visited[cur.entityID] {
			continue
		}
		visited[cur.entityID] = true
		if cur.entityID == targetID {
			break
		}
		neighbors, err := expand(ctx, store, q, cur.entityID)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			w := n.relation.EffectiveWeight()
			if w < 0 {
				return nil, graph.InvalidInput("find_path", fmt.Errorf("relation %q has negative weight", n.relation.ID))
			}
			newCost := cur.cost + w
			if existing, ok := dist[n.entityID]; !ok || newCost < existing {
				dist[n.entityID] = newCost
				prevEntity[n.entityID] = cur.entityID
				prevRelation[n.entityID] = n.relation
				heap.Push(pq, &pqItem{entityID: n.entityID, cost: newCost})
			}
		}
	}

	if _, ok := dist[targetID]; !ok {
		return nil, graph.NoPath("find_path")
	}
	return reconstructPath(ctx, store, startID, targetID, prevEntity, prevRelation, dist[targetID])
}

// unweightedPath runs BFS from startID and reconstructs the shortest hop
// path to targetID, using the same ascending-relation-id expansion order as
// BFS so ties are broken by first-discovered.
func unweightedPath(ctx context.Context, store graph.Store, q Query, startID, targetID string) (*Path, error) {
	if startID == targetID {
		e, err := store.GetEntityByID(ctx, startID)
		if err != nil {
			return nil, err
		}
		return &Path{Entities: []*graph.Entity{e}}, nil
	}

	prevEntity := map[string]string{}
	prevRelation := map[string]*graph.Relation{}
	visited := map[string]bool{startID: true}
	frontier := []string{startID}

	depth := 0
	maxDepth := q.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1 << 30
	}
	found := false
	for depth < maxDepth && len(frontier) > 0 && !found {
		depth++
		var next []string
		for _, id := range frontier {
			neighbors, err := expand(ctx, store, q, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.entityID] {
					continue
				}
				visited[n.entityID] = true
				prevEntity[n.entityID] = id
				prevRelation[n.entityID] = n.relation
				next = append(next, n.entityID)
				if n.entityID == targetID {
					found = true
				}
			}
		}
		frontier = next
	}

	if !visited[targetID] {
		return nil, graph.NoPath("find_path")
	}
	return reconstructPath(ctx, store, startID, targetID, prevEntity, prevRelation, float64(len(prevEntity)))
}

func reconstructPath(ctx context.Context, store graph.Store, startID, targetID string, prevEntity map[string]string, prevRelation map[string]*graph.Relation, cost float64) (*Path, error) {
	var entityIDs []string
	var relations []*graph.Relation
	cur := targetID
	for cur != startID {
		entityIDs = append(entityIDs, cur)
		relations = append(relations, prevRelation[cur])
		cur = prevEntity[cur]
	}
	entityIDs = append(entityIDs, startID)

	// reverse into start->target order
	for i, j := 0, len(entityIDs)-1; i < j; i, j = i+1, j-1 {
		entityIDs[i], entityIDs[j] = entityIDs[j], entityIDs[i]
	}
	for i, j := 0, len(relations)-1; i < j; i, j = i+1, j-1 {
		relations[i], relations[j] = relations[j], relations[i]
	}

	entities := make([]*graph.Entity, 0, len(entityIDs))
	for _, id := range entityIDs {
		e, err := store.GetEntityByID(ctx, id)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	actualCost := 0.0
	for _, r := range relations {
		actualCost += r.EffectiveWeight()
	}

	return &Path{Entities: entities, Relations: relations, Cost: actualCost}, nil
}
