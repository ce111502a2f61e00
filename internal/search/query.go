// Package search implements the five ranked retrieval modes (exact, fuzzy,
// full-text BM25, hybrid fusion, vector cosine) behind one SearchQuery
// contract, including pagination and project-scope resolution.
package search

import (
	"fmt"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// Mode selects the ranking strategy.
type Mode string

const (
	ModeExact    Mode = "exact"
	ModeFuzzy    Mode = "fuzzy"
	ModeFullText Mode = "fulltext"
	ModeHybrid   Mode = "hybrid"
	ModeVector   Mode = "vector"
)

// ScopeKind selects which projects a query ranges over.
type ScopeKind string

const (
	ScopeSingle   ScopeKind = "single"
	ScopeMultiple ScopeKind = "multiple"
	ScopeAll      ScopeKind = "all"
)

// Scope identifies the set of projects a search or traversal ranges over.
type Scope struct {
	Kind       ScopeKind
	ProjectIDs []string // for Single (len 1) and Multiple
}

func SingleScope(projectID string) Scope { return Scope{Kind: ScopeSingle, ProjectIDs: []string{projectID}} }
func MultipleScope(projectIDs []string) Scope {
	return Scope{Kind: ScopeMultiple, ProjectIDs: projectIDs}
}
func AllScope() Scope { return Scope{Kind: ScopeAll} }

const (
	MinPageSize     = 1
	MaxPageSize     = 1000
	DefaultPageSize = 100

	DefaultHybridFuzzyWeight    = 0.5
	DefaultHybridFullTextWeight = 0.5
)

// Query is the normalized, validated search request the engine executes
// without further checks.
type Query struct {
	Text                 string
	Mode                 Mode
	FuzzyThreshold       float64
	EntityTypes          []string
	Tags                 []string
	TagMode              graph.TagMatchMode
	Scope                Scope
	Page                 int
	PageSize             int
	IncludeRelations     bool
	QueryEmbedding       []float32
	SimilarityThreshold  float64
	HybridFuzzyWeight    float64
	HybridFullTextWeight float64
}

// Builder is a fluent constructor that validates inputs and emits a
// normalized Query.
type Builder struct {
	q   Query
	err error
}

// NewBuilder starts a Query builder with default pagination and hybrid
// fusion weights.
func NewBuilder() *Builder {
	return &Builder{q: Query{
		Mode:                 ModeExact,
		Page:                 0,
		PageSize:             DefaultPageSize,
		TagMode:              graph.TagMatchAny,
		HybridFuzzyWeight:    DefaultHybridFuzzyWeight,
		HybridFullTextWeight: DefaultHybridFullTextWeight,
	}}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) Text(text string) *Builder { b.q.Text = text; return b }

func (b *Builder) Mode(mode Mode) *Builder {
	switch mode {
	case ModeExact, ModeFuzzy, ModeFullText, ModeHybrid, ModeVector:
		b.q.Mode = mode
	default:
		return b.fail(graph.InvalidInput("query_builder", fmt.Errorf("unknown search mode %q", mode)))
	}
	return b
}

func (b *Builder) FuzzyThreshold(t float64) *Builder {
	if t < 0 || t > 1 {
		return b.fail(graph.InvalidInput("query_builder", fmt.Errorf("fuzzy threshold %v out of [0,1]", t)))
	}
	b.q.FuzzyThreshold = t
	return b
}

func (b *Builder) SimilarityThreshold(t float64) *Builder {
	if t < -1 || t > 1 {
		return b.fail(graph.InvalidInput("query_builder", fmt.Errorf("similarity threshold %v out of [-1,1]", t)))
	}
	b.q.SimilarityThreshold = t
	return b
}

func (b *Builder) EntityTypes(types []string) *Builder { b.q.EntityTypes = types; return b }

func (b *Builder) Tags(tags []string, mode graph.TagMatchMode) *Builder {
	b.q.Tags = tags
	if mode != "" {
		b.q.TagMode = mode
	}
	return b
}

func (b *Builder) Scope(scope Scope) *Builder { b.q.Scope = scope; return b }

func (b *Builder) Page(page, pageSize int) *Builder {
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return b.fail(graph.InvalidInput("query_builder", fmt.Errorf("page_size %d out of [%d,%d]", pageSize, MinPageSize, MaxPageSize)))
	}
	if page < 0 {
		return b.fail(graph.InvalidInput("query_builder", fmt.Errorf("page %d must be >= 0", page)))
	}
	b.q.Page = page
	b.q.PageSize = pageSize
	return b
}

func (b *Builder) IncludeRelations(v bool) *Builder { b.q.IncludeRelations = v; return b }

func (b *Builder) QueryEmbedding(vec []float32) *Builder { b.q.QueryEmbedding = vec; return b }

func (b *Builder) HybridWeights(fuzzy, fullText float64) *Builder {
	b.q.HybridFuzzyWeight = fuzzy
	b.q.HybridFullTextWeight = fullText
	return b
}

// entityFilterMatches applies the query's type/tag filters to an entity
// fetched by id, for modes (like fulltext) that resolve candidates from an
// index rather than from graph.EntityFilter directly.
func (q Query) entityFilterMatches(e *graph.Entity) bool {
	filter := graph.EntityFilter{Types: q.EntityTypes, Tags: q.Tags, TagMode: q.TagMode}
	return filter.TypeMatches(e.EntityType) && filter.TagsMatch(e.Tags)
}

// Build validates the accumulated inputs and returns the normalized Query.
func (b *Builder) Build() (Query, error) {
	if b.err != nil {
		return Query{}, b.err
	}
	if b.q.PageSize == 0 {
		b.q.PageSize = DefaultPageSize
	}
	switch b.q.Mode {
	case ModeExact, ModeFuzzy, ModeFullText, ModeHybrid:
		if b.q.Text == "" {
			return Query{}, graph.InvalidInput("query_builder", fmt.Errorf("text must not be empty for mode %q", b.q.Mode))
		}
	case ModeVector:
		if len(b.q.QueryEmbedding) == 0 {
			return Query{}, graph.InvalidInput("query_builder", fmt.Errorf("query_embedding must not be empty for vector mode"))
		}
	}
	if b.q.Scope.Kind == "" {
		b.q.Scope = AllScope()
	}
	return b.q, nil
}
