package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

// wrapDBError translates a raw database/sql error into the typed graph.Error
// kind drivers switch on.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return graph.NotFound(op, err)
	}
	if isUniqueViolation(err) {
		return graph.AlreadyExists(op, err)
	}
	return graph.StorageErr(op, err)
}

// isUniqueViolation reports whether err is a SQLite UNIQUE/PRIMARY KEY
// constraint failure. modernc.org/sqlite surfaces these as a plain string
// match on the driver error rather than a typed sentinel.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
