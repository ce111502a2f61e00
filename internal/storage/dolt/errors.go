package dolt

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return graph.NotFound(op, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE") {
		return graph.AlreadyExists(op, err)
	}
	return graph.StorageErr(op, err)
}
