// Package storage is the backend registry: concrete backends (sqlite, dolt,
// memory) register a constructor in their own init() rather than this
// package importing them, so a driver pulls in only the backends it blank
// imports.
package storage

import (
	"context"
	"fmt"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// BackendFactory constructs a graph.Store for the given data directory.
type BackendFactory func(ctx context.Context, dataDir string, opts Options) (graph.Store, error)

var registry = make(map[string]BackendFactory)

// Options configures how a backend opens its data directory.
type Options struct {
	ReadOnly bool
}

// RegisterBackend registers a named backend constructor. Called from each
// backend package's init().
func RegisterBackend(name string, factory BackendFactory) {
	registry[name] = factory
}

// DefaultBackend is used when the caller (CLI, config) does not specify one.
const DefaultBackend = "sqlite"

// Open constructs the named backend's Store rooted at dataDir.
func Open(ctx context.Context, backend, dataDir string, opts Options) (graph.Store, error) {
	if backend == "" {
		backend = DefaultBackend
	}
	factory, ok := registry[backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (registered: %v)", backend, registeredNames())
	}
	return factory(ctx, dataDir, opts)
}

func registeredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
