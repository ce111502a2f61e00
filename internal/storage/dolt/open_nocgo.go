//go:build !cgo

package dolt

import (
	"context"
	"fmt"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/storage"
)

// openEmbedded reports a clear StorageError when the binary was built
// without CGO: embedded Dolt (github.com/dolthub/driver) requires it.
func openEmbedded(_ context.Context, _ string, _ storage.Options) (*Store, error) {
	return nil, graph.StorageErr("open", fmt.Errorf("dolt backend requires a CGO-enabled build"))
}
