package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/parsnip-mcp/parsnip/internal/idgen"
)

// DefaultProjectName is the project every driver falls back to when the
// caller hasn't picked one; GetOrCreateDefaultProject creates it lazily on
// first use.
const DefaultProjectName = "default"

// Engine is the unified contract drivers (CLI, MCP server) depend on. It
// owns no state of its own beyond the Store handle: identifier assignment,
// invariant checks, and cascade semantics live here; persistence and
// indexing live in the Store. Search and traversal are reached through the
// same Engine via Search/Traverse/FindPath, whose implementations are
// injected by the search and traverse packages at wiring time.
type Engine struct {
	store        Store
	indexHook    func()
	searchFunc   SearchFunc
	traverseFunc TraverseFunc
	findPathFunc FindPathFunc
}

// New wraps a Store with the graph engine's validation and ID-assignment
// logic.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// Store exposes the underlying backend for the search and traversal
// engines, which need direct read access to avoid re-deriving Engine logic.
func (e *Engine) Store() Store { return e.store }

// SetIndexHook registers fn to be called after every committed mutation that
// changes what a search can return (entity create/update/delete, observation
// add/remove, tag add/remove, project delete). The search engine wires search.Engine.Invalidate
// through this seam, so the graph package itself carries no dependency on
// search.
func (e *Engine) SetIndexHook(fn func()) { e.indexHook = fn }

func (e *Engine) notifyIndex() {
	if e.indexHook != nil {
		e.indexHook()
	}
}

// --- Projects ---

func (e *Engine) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	if err := validateProjectName(name); err != nil {
		return nil, err
	}
	p := &Project{
		ID:          idgen.New("proj"),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) GetOrCreateDefaultProject(ctx context.Context) (*Project, error) {
	p, err := e.store.GetProjectByName(ctx, DefaultProjectName)
	if err == nil {
		return p, nil
	}
	if KindOf(err) != KindNotFound {
		return nil, err
	}
	return e.CreateProject(ctx, DefaultProjectName, "default project")
}

func (e *Engine) GetProject(ctx context.Context, id string) (*Project, error) {
	return e.store.GetProject(ctx, id)
}

func (e *Engine) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	return e.store.GetProjectByName(ctx, name)
}

func (e *Engine) ListProjects(ctx context.Context) ([]*Project, error) {
	return e.store.ListProjects(ctx)
}

func (e *Engine) DeleteProject(ctx context.Context, id string, force bool) error {
	if err := e.store.DeleteProject(ctx, id, force); err != nil {
		return err
	}
	e.notifyIndex()
	return nil
}

func validateProjectName(name string) error {
	if name == "" {
		return InvalidInput("validate_project_name", fmt.Errorf("name must not be empty"))
	}
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return InvalidInput("validate_project_name", fmt.Errorf("name %q must be alphanumeric plus underscore", name))
		}
	}
	return nil
}

// --- Entities ---

func (e *Engine) CreateEntity(ctx context.Context, new *NewEntity, projectID string) (*Entity, error) {
	if new.Name == "" {
		return nil, InvalidInput("create_entity", fmt.Errorf("name must not be empty"))
	}
	now := time.Now().UTC()
	entity := &Entity{
		ID:         idgen.New("ent"),
		ProjectID:  projectID,
		Name:       new.Name,
		EntityType: new.EntityType,
		Tags:       dedupeStrings(new.Tags),
		Metadata:   new.Metadata,
		Embedding:  new.Embedding,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, text := range new.Observations {
		entity.Observations = append(entity.Observations, Observation{
			ID:        idgen.New("obs"),
			Content:   text,
			CreatedAt: now,
		})
	}
	if err := e.store.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}
	e.notifyIndex()
	return entity, nil
}

func (e *Engine) GetEntity(ctx context.Context, name, projectID string) (*Entity, error) {
	return e.store.GetEntity(ctx, projectID, name)
}

// GetEntities returns the subset of names present in projectID; missing
// names are silently omitted rather than producing an error.
func (e *Engine) GetEntities(ctx context.Context, names []string, projectID string) ([]*Entity, error) {
	var out []*Entity
	for _, name := range names {
		ent, err := e.store.GetEntity(ctx, projectID, name)
		if err != nil {
			if KindOf(err) == KindNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}

// UpdateEntity performs a full replacement by id; project id and id are
// immutable.
func (e *Engine) UpdateEntity(ctx context.Context, entity *Entity) error {
	entity.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateEntity(ctx, entity); err != nil {
		return err
	}
	e.notifyIndex()
	return nil
}

// DeleteEntity cascades relation deletes and is idempotent for an absent name.
func (e *Engine) DeleteEntity(ctx context.Context, name, projectID string) error {
	ent, err := e.store.GetEntity(ctx, projectID, name)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil
		}
		return err
	}
	if err := e.store.DeleteRelationsForEntity(ctx, projectID, ent.ID); err != nil {
		return err
	}
	if err := e.store.DeleteEntity(ctx, projectID, name); err != nil {
		return err
	}
	e.notifyIndex()
	return nil
}

// AddObservations appends texts to the entity's observation list, preserving
// insertion order, inside a single read-modify-write of the entity so a
// concurrent mutation on the same entity can't be silently lost.
func (e *Engine) AddObservations(ctx context.Context, name string, texts []string, projectID string) (*Entity, error) {
	ent, err := e.store.MutateEntity(ctx, projectID, name, func(ent *Entity) error {
		now := time.Now().UTC()
		for _, text := range texts {
			ent.Observations = append(ent.Observations, Observation{
				ID:        idgen.New("obs"),
				Content:   text,
				CreatedAt: now,
			})
		}
		ent.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notifyIndex()
	return ent, nil
}

// RemoveObservations deletes observations by id, preserving the relative
// order of the survivors.
func (e *Engine) RemoveObservations(ctx context.Context, name string, ids []string, projectID string) (*Entity, error) {
	ent, err := e.store.MutateEntity(ctx, projectID, name, func(ent *Entity) error {
		remove := make(map[string]bool, len(ids))
		for _, id := range ids {
			remove[id] = true
		}
		kept := ent.Observations[:0:0]
		for _, obs := range ent.Observations {
			if !remove[obs.ID] {
				kept = append(kept, obs)
			}
		}
		ent.Observations = kept
		ent.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notifyIndex()
	return ent, nil
}

// AddTags has set semantics: adding an already-present tag is a no-op.
func (e *Engine) AddTags(ctx context.Context, name string, tags []string, projectID string) (*Entity, error) {
	ent, err := e.store.MutateEntity(ctx, projectID, name, func(ent *Entity) error {
		have := make(map[string]bool, len(ent.Tags))
		for _, t := range ent.Tags {
			have[t] = true
		}
		for _, t := range tags {
			if !have[t] {
				ent.Tags = append(ent.Tags, t)
				have[t] = true
			}
		}
		ent.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notifyIndex()
	return ent, nil
}

func (e *Engine) RemoveTags(ctx context.Context, name string, tags []string, projectID string) (*Entity, error) {
	ent, err := e.store.MutateEntity(ctx, projectID, name, func(ent *Entity) error {
		remove := make(map[string]bool, len(tags))
		for _, t := range tags {
			remove[t] = true
		}
		kept := ent.Tags[:0:0]
		for _, t := range ent.Tags {
			if !remove[t] {
				kept = append(kept, t)
			}
		}
		ent.Tags = kept
		ent.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notifyIndex()
	return ent, nil
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// --- Relations ---

func (e *Engine) CreateRelation(ctx context.Context, new *NewRelation, fromProjectID, toProjectID string) (*Relation, error) {
	if new.RelationType == "" {
		return nil, InvalidInput("create_relation", fmt.Errorf("relation_type must not be empty"))
	}
	if new.Weight != nil && *new.Weight < 0 {
		return nil, InvalidInput("create_relation", fmt.Errorf("weight must be non-negative"))
	}
	from, err := e.store.GetEntity(ctx, fromProjectID, new.FromEntityName)
	if err != nil {
		return nil, err
	}
	to, err := e.store.GetEntity(ctx, toProjectID, new.ToEntityName)
	if err != nil {
		return nil, err
	}
	rel := &Relation{
		ID:            idgen.New("rel"),
		FromProjectID: fromProjectID,
		ToProjectID:   toProjectID,
		FromEntityID:  from.ID,
		ToEntityID:    to.ID,
		RelationType:  new.RelationType,
		Weight:        new.Weight,
		Metadata:      new.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateRelation(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// UpdateRelationWeight replaces a relation's weight and metadata by id;
// weight and metadata are not part of relation identity, so the endpoints
// and relation type are left untouched.
func (e *Engine) UpdateRelationWeight(ctx context.Context, id string, weight *float64, metadata map[string]any) (*Relation, error) {
	if weight != nil && *weight < 0 {
		return nil, InvalidInput("update_relation_weight", fmt.Errorf("weight must be non-negative"))
	}
	return e.store.UpdateRelationWeight(ctx, id, weight, metadata)
}

func (e *Engine) GetRelations(ctx context.Context, entityName string, dir Direction, projectID string) ([]*Relation, error) {
	ent, err := e.store.GetEntity(ctx, projectID, entityName)
	if err != nil {
		return nil, err
	}
	local, err := e.store.GetRelationsForEntity(ctx, projectID, ent.ID, dir)
	if err != nil {
		return nil, err
	}
	global, err := e.store.GetRelationsForEntityGlobal(ctx, ent.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(local))
	out := make([]*Relation, 0, len(local))
	for _, r := range local {
		seen[r.ID] = true
		out = append(out, r)
	}
	for _, r := range global {
		if seen[r.ID] {
			continue
		}
		if matchesDirection(r, ent.ID, dir) {
			out = append(out, r)
		}
	}
	return out, nil
}

func matchesDirection(r *Relation, entityID string, dir Direction) bool {
	switch dir {
	case DirOutgoing:
		return r.FromEntityID == entityID
	case DirIncoming:
		return r.ToEntityID == entityID
	default:
		return r.FromEntityID == entityID || r.ToEntityID == entityID
	}
}

func (e *Engine) DeleteRelation(ctx context.Context, id string) error {
	return e.store.DeleteRelation(ctx, id)
}

// ReadGraph returns the entire subgraph owned by projectID: every entity in
// the project plus every relation touching one of them (including
// cross-project edges).
func (e *Engine) ReadGraph(ctx context.Context, projectID string) (*Graph, error) {
	entities, err := e.store.ListEntities(ctx, EntityFilter{ProjectIDs: []string{projectID}})
	if err != nil {
		return nil, err
	}
	relations, err := e.store.GetRelationsForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Graph{Entities: entities, Relations: relations}, nil
}
