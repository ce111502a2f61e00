// Package graph is the embedded memory-graph engine: the typed data model,
// validation of the entity/observation/relation/project invariants, and the
// unified contract (Engine) that the search and traversal engines and every
// upper driver (CLI, MCP server) build on.
package graph

import "time"

// Direction restricts which edges a relation query or traversal considers.
type Direction string

const (
	DirOutgoing Direction = "outgoing"
	DirIncoming Direction = "incoming"
	DirBoth     Direction = "both"
)

// Project is a namespace that owns Entities. Relations may cross project
// boundaries, but every Entity belongs to exactly one Project.
type Project struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Observation is an append-only fact embedded in an Entity. Observations are
// never edited in place; they are only appended or removed by id.
type Observation struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Source     string    `json:"source,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entity is a node in a Project's graph.
type Entity struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	Name         string         `json:"name"`
	EntityType   string         `json:"entity_type"`
	Observations []Observation  `json:"observations"`
	Tags         []string       `json:"tags,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Embedding    []float32      `json:"embedding,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// HasTag reports whether the entity carries tag, by case-sensitive equality.
func (e *Entity) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Relation is a directed, typed edge, possibly crossing project boundaries.
type Relation struct {
	ID            string         `json:"id"`
	FromProjectID string         `json:"from_project_id"`
	ToProjectID   string         `json:"to_project_id"`
	FromEntityID  string         `json:"from_entity_id"`
	ToEntityID    string         `json:"to_entity_id"`
	RelationType  string         `json:"relation_type"`
	Weight        *float64       `json:"weight,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EffectiveWeight returns the relation's weight, or 1.0 if unset.
func (r *Relation) EffectiveWeight() float64 {
	if r.Weight != nil {
		return *r.Weight
	}
	return 1.0
}

// NewEntity is the input payload for CreateEntity; IDs and timestamps are
// assigned by the engine.
type NewEntity struct {
	Name         string
	EntityType   string
	Observations []string
	Tags         []string
	Metadata     map[string]any
	Embedding    []float32
}

// NewRelation is the input payload for CreateRelation; endpoints are
// resolved by (project, name) at creation time.
type NewRelation struct {
	FromEntityName string
	ToEntityName   string
	RelationType   string
	Weight         *float64
	Metadata       map[string]any
}

// Graph is the induced subgraph returned by ReadGraph and by traversals.
type Graph struct {
	Entities  []*Entity   `json:"entities"`
	Relations []*Relation `json:"relations"`
}
