// Package dolt is the embedded SQL compat backend: a MySQL-protocol-
// compatible embedded database opened via github.com/dolthub/driver, run
// in-process with no server. Unlike the default sqlite backend's narrow KV
// tables, this backend uses an ordinary third-normal-form relational schema
// (projects, entities, observations, relations, tags, entity_types) to
// prove the graph.Store contract is implementable against a conventional
// relational layout too. This backend is scoped to single-writer,
// embedded-only use: there is no federation, server mode, or
// version-control surface here, so Dolt's watchdog/remote/push-pull
// machinery doesn't have a home in this package (see DESIGN.md).
package dolt

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the MySQL wire-protocol error types the embedded driver
	// shares; the compat backend never dials a real MySQL server.
	_ "github.com/go-sql-driver/mysql"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/storage"
)

func init() {
	storage.RegisterBackend("dolt", func(ctx context.Context, dataDir string, opts storage.Options) (graph.Store, error) {
		return openEmbedded(ctx, dataDir, opts)
	})
}

// Store is the embedded-Dolt-backed Store implementation.
type Store struct {
	db     *sql.DB
	closer func() error
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.closer != nil {
		if cerr := s.closer(); err == nil {
			err = cerr
		}
	}
	return err
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (version INT NOT NULL);

CREATE TABLE IF NOT EXISTS projects (
	id          VARCHAR(64) PRIMARY KEY,
	name        VARCHAR(255) NOT NULL UNIQUE,
	description TEXT,
	settings    TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_types (
	project_id  VARCHAR(64) NOT NULL,
	entity_type VARCHAR(255) NOT NULL,
	entity_id   VARCHAR(64) NOT NULL,
	PRIMARY KEY (project_id, entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS entities (
	id          VARCHAR(64) PRIMARY KEY,
	project_id  VARCHAR(64) NOT NULL,
	name        VARCHAR(255) NOT NULL,
	entity_type VARCHAR(255) NOT NULL,
	tags        TEXT,
	metadata    TEXT,
	embedding   TEXT,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	UNIQUE KEY entities_project_name (project_id, name),
	FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS observations (
	id         VARCHAR(64) PRIMARY KEY,
	entity_id  VARCHAR(64) NOT NULL,
	seq        INT NOT NULL,
	content    TEXT NOT NULL,
	source     VARCHAR(255),
	confidence DOUBLE,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (entity_id) REFERENCES entities(id)
);

CREATE TABLE IF NOT EXISTS tags (
	project_id TEXT,
	tag        VARCHAR(255) NOT NULL,
	entity_id  VARCHAR(64) NOT NULL,
	PRIMARY KEY (tag, entity_id)
);

CREATE TABLE IF NOT EXISTS relations (
	id              VARCHAR(64) PRIMARY KEY,
	from_project_id VARCHAR(64) NOT NULL,
	to_project_id   VARCHAR(64) NOT NULL,
	from_entity_id  VARCHAR(64) NOT NULL,
	to_entity_id    VARCHAR(64) NOT NULL,
	relation_type   VARCHAR(255) NOT NULL,
	weight          DOUBLE,
	metadata        TEXT,
	created_at      DATETIME NOT NULL,
	UNIQUE KEY relations_triple (from_entity_id, to_entity_id, relation_type)
);
`

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range splitStatements(schemaDDL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return graph.StorageErr("ensure_schema", fmt.Errorf("exec %q: %w", stmt, err))
		}
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return graph.StorageErr("ensure_schema", err)
	}
	if count == 0 {
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, graph.LatestSchemaVersion); err != nil {
			return graph.StorageErr("ensure_schema", err)
		}
		return nil
	}
	var version int
	if err := db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return graph.StorageErr("ensure_schema", err)
	}
	if version > graph.LatestSchemaVersion {
		return graph.SchemaTooNewErr("ensure_schema", fmt.Errorf("database schema version %d is newer than this binary supports (%d)", version, graph.LatestSchemaVersion))
	}
	return nil
}

func (s *Store) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		return 0, graph.StorageErr("current_version", err)
	}
	return version, nil
}

func (s *Store) Migrate(ctx context.Context, from, to int) error {
	if from == to {
		return nil
	}
	if to > graph.LatestSchemaVersion {
		return graph.SchemaTooNewErr("migrate", fmt.Errorf("target version %d exceeds supported %d", to, graph.LatestSchemaVersion))
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE schema_version SET version = ?`, to); err != nil {
		return graph.MigrationFailedErr("migrate", err)
	}
	return nil
}

// splitStatements is a minimal `;`-delimited statement splitter. The DDL
// above never puts a semicolon inside a string literal, so this avoids
// pulling in a SQL parser just to feed statements to the embedded driver
// one at a time (it doesn't support multi-statement Exec).
func splitStatements(script string) []string {
	var out []string
	var cur []byte
	for i := 0; i < len(script); i++ {
		c := script[i]
		if c == ';' {
			stmt := trimSpace(string(cur))
			if stmt != "" {
				out = append(out, stmt)
			}
			cur = cur[:0]
			continue
		}
		cur = append(cur, c)
	}
	if stmt := trimSpace(string(cur)); stmt != "" {
		out = append(out, stmt)
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

var _ graph.Store = (*Store)(nil)
