package search

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/sync/singleflight"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// errSnapshotDirty means the on-disk snapshot predates an unsaved mutation
// and must not be served; the caller falls through to a full rebuild.
var errSnapshotDirty = errors.New("fulltext snapshot is marked dirty")

// docStats is the per-entity term-frequency summary the BM25 scorer needs.
type docStats struct {
	ProjectID string
	TermFreq  map[string]int
	Length    int
}

// snapshot is the on-disk form of the index, written under
// <dataDir>/index/fulltext/index.gob and reloaded on open so a cold start
// doesn't pay a full corpus scan unless the index is missing or stale.
type snapshot struct {
	Docs        map[string]docStats
	Postings    map[string]map[string]int // term -> docID -> freq
	TotalLength int
}

// Index is the inverted full-text index behind ModeFullText and the
// full-text half of ModeHybrid. Tokenization uses clipperhouse/uax29/v2, a
// Unicode-aware word segmenter, rather than splitting on strings.Fields.
// The scoring function (Okapi BM25) is arithmetic over the postings this
// package already builds, not a separate dependency.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]docStats
	postings map[string]map[string]int
	totalLen int
	dirty    bool
	built    bool

	path string
	sf   singleflight.Group
}

// NewIndex constructs an index that persists its snapshot under
// <dataDir>/index/fulltext/index.gob. Pass "" to keep the index in-memory
// only (used by tests and the in-memory backend).
func NewIndex(dataDir string) *Index {
	idx := &Index{
		docs:     map[string]docStats{},
		postings: map[string]map[string]int{},
		dirty:    true,
	}
	if dataDir != "" {
		idx.path = filepath.Join(dataDir, "index", "fulltext", "index.gob")
	}
	return idx
}

// Invalidate marks the index dirty so the next search rebuilds it. The
// search engine's callers invoke this after any entity/observation mutation
// since the index has no direct hook into store writes. For a persisted
// index the dirty bit also lands on disk as a marker file, so a process
// that dies between a primary-store commit and the next snapshot save
// rebuilds on open instead of serving the stale snapshot.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	idx.dirty = true
	idx.mu.Unlock()
	if idx.path != "" {
		_ = os.MkdirAll(filepath.Dir(idx.path), 0o755)
		_ = os.WriteFile(idx.dirtyMarkerPath(), nil, 0o644)
	}
}

func (idx *Index) dirtyMarkerPath() string {
	return filepath.Join(filepath.Dir(idx.path), "dirty")
}

// ensureBuilt rebuilds the index from store if dirty, coalescing concurrent
// callers onto a single rebuild via singleflight so a burst of queries after
// a write doesn't each pay their own full scan.
func (idx *Index) ensureBuilt(ctx context.Context, store graph.Store) error {
	idx.mu.RLock()
	needsBuild := !idx.built || idx.dirty
	idx.mu.RUnlock()
	if !needsBuild {
		return nil
	}

	_, err, _ := idx.sf.Do("rebuild", func() (any, error) {
		idx.mu.RLock()
		stillDirty := !idx.built || idx.dirty
		idx.mu.RUnlock()
		if !stillDirty {
			return nil, nil
		}
		if idx.path != "" && !idx.built {
			if idx.load() == nil {
				idx.mu.Lock()
				idx.built = true
				idx.dirty = false
				idx.mu.Unlock()
				return nil, nil
			}
		}
		return nil, idx.rebuild(ctx, store)
	})
	return err
}

func (idx *Index) rebuild(ctx context.Context, store graph.Store) error {
	entities, err := store.ListEntities(ctx, graph.EntityFilter{})
	if err != nil {
		return err
	}

	docs := make(map[string]docStats, len(entities))
	postings := map[string]map[string]int{}
	totalLen := 0

	for _, e := range entities {
		var buf strings.Builder
		buf.WriteString(e.Name)
		for _, obs := range e.Observations {
			buf.WriteByte(' ')
			buf.WriteString(obs.Content)
		}
		terms := tokenize(buf.String())
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		docs[e.ID] = docStats{ProjectID: e.ProjectID, TermFreq: freq, Length: len(terms)}
		totalLen += len(terms)
		for t := range freq {
			if postings[t] == nil {
				postings[t] = map[string]int{}
			}
			postings[t][e.ID] = freq[t]
		}
	}

	idx.mu.Lock()
	idx.docs = docs
	idx.postings = postings
	idx.totalLen = totalLen
	idx.built = true
	idx.dirty = false
	idx.mu.Unlock()

	if idx.path != "" {
		_ = idx.save()
	}
	return nil
}

// tokenize splits text on Unicode word boundaries and keeps only tokens
// containing at least one letter or digit (dropping pure punctuation and
// whitespace segments uax29 also emits), lowercased for case-insensitive
// matching.
func tokenize(text string) []string {
	var out []string
	seg := words.FromBytes([]byte(text))
	for seg.Next() {
		tok := string(seg.Value())
		if !hasWordRune(tok) {
			continue
		}
		out = append(out, strings.ToLower(tok))
	}
	return out
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// score runs Okapi BM25 over the query terms against every doc in scope,
// returning entity-id -> score for ids scoring above 0.
func (idx *Index) score(queryText string, allowed func(docID, projectID string) bool) map[string]float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := tokenize(queryText)
	if len(terms) == 0 || len(idx.docs) == 0 {
		return nil
	}
	avgdl := float64(idx.totalLen) / float64(len(idx.docs))
	if avgdl == 0 {
		avgdl = 1
	}
	n := float64(len(idx.docs))

	out := map[string]float64{}
	seen := map[string]bool{}
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		postings := idx.postings[t]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		for docID, f := range postings {
			doc := idx.docs[docID]
			if allowed != nil && !allowed(docID, doc.ProjectID) {
				continue
			}
			tf := float64(f)
			denom := tf + bm25K1*(1-bm25B+bm25B*float64(doc.Length)/avgdl)
			out[docID] += idf * (tf * (bm25K1 + 1)) / denom
		}
	}
	return out
}

func (idx *Index) save() error {
	snap := snapshot{Docs: idx.docs, Postings: idx.postings, TotalLength: idx.totalLen}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(idx.path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	// Snapshot is on disk and current; clear the dirty marker last so a
	// failure anywhere above still leaves the next open rebuilding.
	if err := os.Remove(idx.dirtyMarkerPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (idx *Index) load() error {
	if _, err := os.Stat(idx.dirtyMarkerPath()); err == nil {
		return errSnapshotDirty
	}
	data, err := os.ReadFile(idx.path)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.docs = snap.Docs
	idx.postings = snap.Postings
	idx.totalLen = snap.TotalLength
	idx.mu.Unlock()
	return nil
}

// searchFullText runs BM25 scoring scoped to projectIDs (nil = all) and the
// entity type/tag filters in q, then resolves the scored doc ids back to
// entities.
func searchFullText(ctx context.Context, store graph.Store, idx *Index, q Query, projectIDs []string) ([]Hit, error) {
	if err := idx.ensureBuilt(ctx, store); err != nil {
		return nil, err
	}

	inScope := func(projectID string) bool {
		if len(projectIDs) == 0 {
			return true
		}
		for _, id := range projectIDs {
			if id == projectID {
				return true
			}
		}
		return false
	}
	scores := idx.score(q.Text, func(_, projectID string) bool { return inScope(projectID) })
	if len(scores) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids) // stable traversal order before entity fetch

	var hits []Hit
	for _, id := range ids {
		e, err := store.GetEntityByID(ctx, id)
		if err != nil {
			continue
		}
		if !q.entityFilterMatches(e) {
			continue
		}
		hits = append(hits, Hit{Entity: e, Score: scores[id]})
	}
	sortHitsDesc(hits)
	return hits, nil
}
