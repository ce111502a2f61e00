// Package memory is the in-memory Store backend, used by the engine's own
// test suite and by driver tests that don't want a filesystem dependency:
// plain Go maps guarded by one mutex, no serialization, with read-modify-
// write operations simply holding the mutex for the duration of a closure.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/storage"
)

func init() {
	storage.RegisterBackend("memory", func(_ context.Context, _ string, _ storage.Options) (graph.Store, error) {
		return New(), nil
	})
}

// Store is the in-memory Store implementation.
type Store struct {
	mu sync.RWMutex

	schemaVersion int

	projectsByID   map[string]*graph.Project
	projectsByName map[string]string // name -> id

	entitiesByID    map[string]*graph.Entity
	entityNameIndex map[string]map[string]string          // projectID -> name -> entityID
	tagIndex        map[string]map[string]map[string]bool // projectID -> tag -> entityID set
	typeIndex       map[string]map[string]map[string]bool // projectID -> type -> entityID set

	relationsByID map[string]*graph.Relation
	outgoing      map[string]map[string]bool // entityID -> relationID set
	incoming      map[string]map[string]bool // entityID -> relationID set
	tripleIndex   map[string]string          // from|to|type -> relationID
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		schemaVersion:   graph.LatestSchemaVersion,
		projectsByID:    make(map[string]*graph.Project),
		projectsByName:  make(map[string]string),
		entitiesByID:    make(map[string]*graph.Entity),
		entityNameIndex: make(map[string]map[string]string),
		tagIndex:        make(map[string]map[string]map[string]bool),
		typeIndex:       make(map[string]map[string]map[string]bool),
		relationsByID:   make(map[string]*graph.Relation),
		outgoing:        make(map[string]map[string]bool),
		incoming:        make(map[string]map[string]bool),
		tripleIndex:     make(map[string]string),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CurrentVersion(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemaVersion, nil
}

// Migrate only records the target version for the in-memory backend: there
// is no stored data layout to convert.
func (s *Store) Migrate(_ context.Context, from, to int) error {
	if from == to {
		return nil
	}
	if to > graph.LatestSchemaVersion {
		return graph.SchemaTooNewErr("migrate", fmt.Errorf("target version %d exceeds supported %d", to, graph.LatestSchemaVersion))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaVersion = to
	return nil
}

func cloneEntity(e *graph.Entity) *graph.Entity {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Observations = append([]graph.Observation(nil), e.Observations...)
	cp.Tags = append([]string(nil), e.Tags...)
	if e.Embedding != nil {
		cp.Embedding = append([]float32(nil), e.Embedding...)
	}
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func cloneRelation(r *graph.Relation) *graph.Relation {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Weight != nil {
		w := *r.Weight
		cp.Weight = &w
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func cloneProject(p *graph.Project) *graph.Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Settings != nil {
		cp.Settings = make(map[string]any, len(p.Settings))
		for k, v := range p.Settings {
			cp.Settings[k] = v
		}
	}
	return &cp
}

func tripleKey(from, to, typ string) string { return from + "|" + to + "|" + typ }

// --- Projects ---

func (s *Store) CreateProject(_ context.Context, p *graph.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projectsByName[p.Name]; ok {
		return graph.AlreadyExists("create_project", fmt.Errorf("project %q already exists", p.Name))
	}
	s.projectsByID[p.ID] = cloneProject(p)
	s.projectsByName[p.Name] = p.ID
	s.entityNameIndex[p.ID] = make(map[string]string)
	s.tagIndex[p.ID] = make(map[string]map[string]bool)
	s.typeIndex[p.ID] = make(map[string]map[string]bool)
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (*graph.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projectsByID[id]
	if !ok {
		return nil, graph.NotFound("get_project", fmt.Errorf("project %q", id))
	}
	return cloneProject(p), nil
}

func (s *Store) GetProjectByName(_ context.Context, name string) (*graph.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.projectsByName[name]
	if !ok {
		return nil, graph.NotFound("get_project_by_name", fmt.Errorf("project %q", name))
	}
	return cloneProject(s.projectsByID[id]), nil
}

func (s *Store) ListProjects(_ context.Context) ([]*graph.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*graph.Project, 0, len(s.projectsByID))
	for _, p := range s.projectsByID {
		out = append(out, cloneProject(p))
	}
	return out, nil
}

func (s *Store) DeleteProject(_ context.Context, id string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projectsByID[id]
	if !ok {
		return nil // idempotent
	}
	names := s.entityNameIndex[id]
	if len(names) > 0 && !force {
		return graph.InvalidInput("delete_project", fmt.Errorf("project %q is not empty", p.Name))
	}
	// Cascade: delete every owned entity (which cascades its relations too),
	// including relations that reach into surviving projects (Open Question a).
	for _, entityID := range names {
		s.deleteEntityByIDLocked(entityID)
	}
	delete(s.projectsByID, id)
	delete(s.projectsByName, p.Name)
	delete(s.entityNameIndex, id)
	delete(s.tagIndex, id)
	delete(s.typeIndex, id)
	return nil
}

// --- Entities ---

func (s *Store) CreateEntity(_ context.Context, e *graph.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, ok := s.entityNameIndex[e.ProjectID]
	if !ok {
		return graph.NotFound("create_entity", fmt.Errorf("project %q", e.ProjectID))
	}
	if _, exists := names[e.Name]; exists {
		return graph.AlreadyExists("create_entity", fmt.Errorf("entity %q in project %q", e.Name, e.ProjectID))
	}
	s.entitiesByID[e.ID] = cloneEntity(e)
	names[e.Name] = e.ID
	s.indexTagsAndType(e)
	return nil
}

func (s *Store) indexTagsAndType(e *graph.Entity) {
	if s.typeIndex[e.ProjectID] == nil {
		s.typeIndex[e.ProjectID] = make(map[string]map[string]bool)
	}
	if s.typeIndex[e.ProjectID][e.EntityType] == nil {
		s.typeIndex[e.ProjectID][e.EntityType] = make(map[string]bool)
	}
	s.typeIndex[e.ProjectID][e.EntityType][e.ID] = true

	if s.tagIndex[e.ProjectID] == nil {
		s.tagIndex[e.ProjectID] = make(map[string]map[string]bool)
	}
	for _, tag := range e.Tags {
		if s.tagIndex[e.ProjectID][tag] == nil {
			s.tagIndex[e.ProjectID][tag] = make(map[string]bool)
		}
		s.tagIndex[e.ProjectID][tag][e.ID] = true
	}
}

func (s *Store) unindexTagsAndType(e *graph.Entity) {
	if byType, ok := s.typeIndex[e.ProjectID]; ok {
		delete(byType[e.EntityType], e.ID)
	}
	if byTag, ok := s.tagIndex[e.ProjectID]; ok {
		for _, tag := range e.Tags {
			delete(byTag[tag], e.ID)
		}
	}
}

func (s *Store) GetEntity(_ context.Context, projectID, name string) (*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, ok := s.entityNameIndex[projectID]
	if !ok {
		return nil, graph.NotFound("get_entity", fmt.Errorf("project %q", projectID))
	}
	id, ok := names[name]
	if !ok {
		return nil, graph.NotFound("get_entity", fmt.Errorf("entity %q", name))
	}
	return cloneEntity(s.entitiesByID[id]), nil
}

func (s *Store) GetEntityByID(_ context.Context, id string) (*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entitiesByID[id]
	if !ok {
		return nil, graph.NotFound("get_entity_by_id", fmt.Errorf("entity %q", id))
	}
	return cloneEntity(e), nil
}

func (s *Store) UpdateEntity(_ context.Context, e *graph.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entitiesByID[e.ID]
	if !ok {
		return graph.NotFound("update_entity", fmt.Errorf("entity %q", e.ID))
	}
	if existing.ProjectID != e.ProjectID {
		return graph.InvalidInput("update_entity", fmt.Errorf("cannot change project_id"))
	}
	if existing.Name != e.Name {
		names := s.entityNameIndex[e.ProjectID]
		if _, clash := names[e.Name]; clash {
			return graph.AlreadyExists("update_entity", fmt.Errorf("entity %q in project %q", e.Name, e.ProjectID))
		}
		delete(names, existing.Name)
		names[e.Name] = e.ID
	}
	s.unindexTagsAndType(existing)
	cp := cloneEntity(e)
	if cp.UpdatedAt.Before(cp.CreatedAt) {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.entitiesByID[e.ID] = cp
	s.indexTagsAndType(cp)
	return nil
}

// MutateEntity loads the entity at (projectID, name), applies fn, and
// writes the result back, all while holding s.mu, so a concurrent mutation
// on the same entity can't be lost between an earlier Get and a later
// Update.
func (s *Store) MutateEntity(_ context.Context, projectID, name string, fn func(*graph.Entity) error) (*graph.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, ok := s.entityNameIndex[projectID]
	if !ok {
		return nil, graph.NotFound("mutate_entity", fmt.Errorf("project %q", projectID))
	}
	id, ok := names[name]
	if !ok {
		return nil, graph.NotFound("mutate_entity", fmt.Errorf("entity %q", name))
	}
	e := cloneEntity(s.entitiesByID[id])
	if err := fn(e); err != nil {
		return nil, err
	}
	if e.Name != name {
		if _, clash := names[e.Name]; clash {
			return nil, graph.AlreadyExists("mutate_entity", fmt.Errorf("entity %q in project %q", e.Name, e.ProjectID))
		}
		delete(names, name)
		names[e.Name] = e.ID
	}
	s.unindexTagsAndType(s.entitiesByID[id])
	cp := cloneEntity(e)
	s.entitiesByID[id] = cp
	s.indexTagsAndType(cp)
	return cloneEntity(cp), nil
}

func (s *Store) DeleteEntity(_ context.Context, projectID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, ok := s.entityNameIndex[projectID]
	if !ok {
		return nil
	}
	id, ok := names[name]
	if !ok {
		return nil // idempotent
	}
	s.deleteEntityByIDLocked(id)
	return nil
}

// deleteEntityByIDLocked removes an entity and cascades relation deletes.
// Caller must hold s.mu.
func (s *Store) deleteEntityByIDLocked(id string) {
	e, ok := s.entitiesByID[id]
	if !ok {
		return
	}
	for relID := range s.outgoing[id] {
		s.removeRelationLocked(relID)
	}
	for relID := range s.incoming[id] {
		s.removeRelationLocked(relID)
	}
	s.unindexTagsAndType(e)
	delete(s.entityNameIndex[e.ProjectID], e.Name)
	delete(s.entitiesByID, id)
	delete(s.outgoing, id)
	delete(s.incoming, id)
}

func (s *Store) ListEntities(_ context.Context, filter graph.EntityFilter) ([]*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidateProjects []string
	if len(filter.ProjectIDs) > 0 {
		candidateProjects = filter.ProjectIDs
	} else {
		for pid := range s.entityNameIndex {
			candidateProjects = append(candidateProjects, pid)
		}
	}

	var out []*graph.Entity
	for _, pid := range candidateProjects {
		for _, id := range s.entityNameIndex[pid] {
			e := s.entitiesByID[id]
			if e == nil {
				continue
			}
			if !filter.TypeMatches(e.EntityType) {
				continue
			}
			if !filter.TagsMatch(e.Tags) {
				continue
			}
			out = append(out, cloneEntity(e))
		}
	}
	return out, nil
}

// --- Relations ---

func (s *Store) CreateRelation(_ context.Context, r *graph.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entitiesByID[r.FromEntityID]; !ok {
		return graph.NotFound("create_relation", fmt.Errorf("from entity %q", r.FromEntityID))
	}
	if _, ok := s.entitiesByID[r.ToEntityID]; !ok {
		return graph.NotFound("create_relation", fmt.Errorf("to entity %q", r.ToEntityID))
	}
	key := tripleKey(r.FromEntityID, r.ToEntityID, r.RelationType)
	if _, exists := s.tripleIndex[key]; exists {
		return graph.AlreadyExists("create_relation", fmt.Errorf("relation %s->%s[%s]", r.FromEntityID, r.ToEntityID, r.RelationType))
	}
	s.relationsByID[r.ID] = cloneRelation(r)
	s.tripleIndex[key] = r.ID
	if s.outgoing[r.FromEntityID] == nil {
		s.outgoing[r.FromEntityID] = make(map[string]bool)
	}
	s.outgoing[r.FromEntityID][r.ID] = true
	if s.incoming[r.ToEntityID] == nil {
		s.incoming[r.ToEntityID] = make(map[string]bool)
	}
	s.incoming[r.ToEntityID][r.ID] = true
	return nil
}

func (s *Store) GetRelation(_ context.Context, id string) (*graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relationsByID[id]
	if !ok {
		return nil, graph.NotFound("get_relation", fmt.Errorf("relation %q", id))
	}
	return cloneRelation(r), nil
}

// UpdateRelationWeight replaces a relation's weight and metadata by id
// while holding s.mu for the whole read-modify-write.
func (s *Store) UpdateRelationWeight(_ context.Context, id string, weight *float64, metadata map[string]any) (*graph.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.relationsByID[id]
	if !ok {
		return nil, graph.NotFound("update_relation_weight", fmt.Errorf("relation %q", id))
	}
	cp := cloneRelation(r)
	cp.Weight = weight
	cp.Metadata = metadata
	s.relationsByID[id] = cp
	return cloneRelation(cp), nil
}

func (s *Store) DeleteRelation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeRelationLocked(id)
	return nil
}

// removeRelationLocked deletes a relation from all indexes. Caller holds s.mu.
func (s *Store) removeRelationLocked(id string) {
	r, ok := s.relationsByID[id]
	if !ok {
		return
	}
	delete(s.tripleIndex, tripleKey(r.FromEntityID, r.ToEntityID, r.RelationType))
	delete(s.outgoing[r.FromEntityID], id)
	delete(s.incoming[r.ToEntityID], id)
	delete(s.relationsByID, id)
}

func (s *Store) DeleteRelationsForEntity(_ context.Context, _ string, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for relID := range s.outgoing[entityID] {
		s.removeRelationLocked(relID)
	}
	for relID := range s.incoming[entityID] {
		s.removeRelationLocked(relID)
	}
	return nil
}

func (s *Store) GetRelationsForEntity(_ context.Context, _ string, entityID string, dir graph.Direction) ([]*graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relationsForEntityLocked(entityID, dir), nil
}

func (s *Store) GetRelationsForEntityGlobal(_ context.Context, entityID string) ([]*graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relationsForEntityLocked(entityID, graph.DirBoth), nil
}

func (s *Store) relationsForEntityLocked(entityID string, dir graph.Direction) []*graph.Relation {
	seen := make(map[string]bool)
	var out []*graph.Relation
	add := func(ids map[string]bool) {
		for id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, cloneRelation(s.relationsByID[id]))
		}
	}
	if dir == graph.DirOutgoing || dir == graph.DirBoth {
		add(s.outgoing[entityID])
	}
	if dir == graph.DirIncoming || dir == graph.DirBoth {
		add(s.incoming[entityID])
	}
	return out
}

func (s *Store) GetRelationsForProject(_ context.Context, projectID string) ([]*graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.Relation
	for _, r := range s.relationsByID {
		if r.FromProjectID == projectID || r.ToProjectID == projectID {
			out = append(out, cloneRelation(r))
		}
	}
	return out, nil
}

func (s *Store) GetAllRelationsAllProjects(_ context.Context) ([]*graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*graph.Relation, 0, len(s.relationsByID))
	for _, r := range s.relationsByID {
		out = append(out, cloneRelation(r))
	}
	return out, nil
}

var _ graph.Store = (*Store)(nil)
