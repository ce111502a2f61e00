package graph

import (
	"context"
	"errors"
)

var (
	errSearchNotWired   = errors.New("no search engine wired in, call SetSearchFunc first")
	errTraverseNotWired = errors.New("no traversal engine wired in, call SetTraverseFunc first")
	errFindPathNotWired = errors.New("no traversal engine wired in, call SetFindPathFunc first")
)

// SearchMode selects how SearchQuery.Text (or QueryEmbedding) is matched
// against entities. The concrete ranking logic for each mode lives in the
// search package; these are the graph-native shapes Engine.Search accepts
// and returns so a driver never has to import the search package directly.
type SearchMode string

const (
	SearchModeExact    SearchMode = "exact"
	SearchModeFuzzy    SearchMode = "fuzzy"
	SearchModeFullText SearchMode = "fulltext"
	SearchModeHybrid   SearchMode = "hybrid"
	SearchModeVector   SearchMode = "vector"
)

// ScopeKind selects which projects a SearchQuery considers.
type ScopeKind string

const (
	ScopeSingle   ScopeKind = "single"
	ScopeMultiple ScopeKind = "multiple"
	ScopeAll      ScopeKind = "all"
)

// SearchScope names the projects a search runs over.
type SearchScope struct {
	Kind       ScopeKind
	ProjectIDs []string
}

// SearchQuery is the input to Engine.Search.
type SearchQuery struct {
	Text                string
	QueryEmbedding      []float32
	Mode                SearchMode
	Scope               SearchScope
	EntityTypes         []string
	Tags                []string
	TagMode             TagMatchMode
	FuzzyThreshold      float64
	SimilarityThreshold float64
	Page                int
	PageSize            int
	IncludeRelations    bool
}

// SearchHit is a single scored result from Engine.Search.
type SearchHit struct {
	Entity *Entity
	Score  float64
}

// SearchResult is the paginated output of Engine.Search. Relations is only
// populated when the query set IncludeRelations: every edge touching an
// entity on the returned page, deduplicated by relation id.
type SearchResult struct {
	Hits      []SearchHit
	Relations []*Relation
	Total     int
}

// TraverseQuery is the input to Engine.Traverse and Engine.FindPath.
type TraverseQuery struct {
	Start         string
	Target        string
	ProjectID     string
	MaxDepth      int
	Direction     Direction
	EntityTypes   []string
	RelationTypes []string
	Weighted      bool
}

// Path is a sequence of entities and the relations connecting them, as
// returned by Engine.FindPath.
type Path struct {
	Entities  []*Entity
	Relations []*Relation
	Cost      float64
}

// SearchFunc performs a search over the Store the Engine wraps. The search
// package wires one in via Engine.SetSearchFunc so that graph stays free of
// an import on search while still exposing it through Engine.Search.
type SearchFunc func(ctx context.Context, store Store, q SearchQuery) (*SearchResult, error)

// TraverseFunc walks the Store the Engine wraps. The traverse package wires
// one in via Engine.SetTraverseFunc.
type TraverseFunc func(ctx context.Context, store Store, q TraverseQuery) (*Graph, error)

// FindPathFunc computes a path through the Store the Engine wraps. The
// traverse package wires one in via Engine.SetFindPathFunc.
type FindPathFunc func(ctx context.Context, store Store, q TraverseQuery) (*Path, error)

// SetSearchFunc registers the function Search delegates to.
func (e *Engine) SetSearchFunc(fn SearchFunc) { e.searchFunc = fn }

// SetTraverseFunc registers the function Traverse delegates to.
func (e *Engine) SetTraverseFunc(fn TraverseFunc) { e.traverseFunc = fn }

// SetFindPathFunc registers the function FindPath delegates to.
func (e *Engine) SetFindPathFunc(fn FindPathFunc) { e.findPathFunc = fn }

// Search runs q against the search engine wired in by SetSearchFunc. Drivers
// reach search through this single contract instead of importing the search
// package themselves.
func (e *Engine) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if e.searchFunc == nil {
		return nil, InvalidInput("search", errSearchNotWired)
	}
	return e.searchFunc(ctx, e.store, q)
}

// Traverse walks the graph from q.Start using the traversal engine wired in
// by SetTraverseFunc.
func (e *Engine) Traverse(ctx context.Context, q TraverseQuery) (*Graph, error) {
	if e.traverseFunc == nil {
		return nil, InvalidInput("traverse", errTraverseNotWired)
	}
	return e.traverseFunc(ctx, e.store, q)
}

// FindPath computes a path from q.Start to q.Target using the traversal
// engine wired in by SetFindPathFunc.
func (e *Engine) FindPath(ctx context.Context, q TraverseQuery) (*Path, error) {
	if e.findPathFunc == nil {
		return nil, InvalidInput("find_path", errFindPathNotWired)
	}
	return e.findPathFunc(ctx, e.store, q)
}
