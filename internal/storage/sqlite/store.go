// Package sqlite is the durable embedded KV backend and the default storage
// backend: a single modernc.org/sqlite database, opened once for process
// lifetime, with each logical table realized as a narrow key/value table
// (a JSON blob plus whatever columns serve as primary key or index) rather
// than a wide relational schema. It's driven through the pure-Go
// modernc.org/sqlite driver instead of a cgo binding, so the default backend
// has zero system dependencies.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/parsnip-mcp/parsnip/internal/graph"
	"github.com/parsnip-mcp/parsnip/internal/storage"
)

func init() {
	storage.RegisterBackend("sqlite", func(ctx context.Context, dataDir string, opts storage.Options) (graph.Store, error) {
		return Open(ctx, dataDir, opts)
	})
}

// Store is the modernc.org/sqlite-backed Store implementation.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open opens (creating if absent) the SQLite database under
// <dataDir>/parsnip.db, taking an exclusive process-lifetime flock over the
// data directory so two parsnip processes can't share one store.
func Open(ctx context.Context, dataDir string, opts storage.Options) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, graph.StorageErr("open", fmt.Errorf("create data dir: %w", err))
	}

	lockPath := filepath.Join(dataDir, ".parsnip.lock")
	lk := flock.New(lockPath)
	var locked bool
	var err error
	if opts.ReadOnly {
		locked, err = lk.TryRLock()
	} else {
		locked, err = lk.TryLock()
	}
	if err != nil {
		return nil, graph.StorageErr("open", fmt.Errorf("acquire lock: %w", err))
	}
	if !locked {
		return nil, graph.StorageErr("open", fmt.Errorf("data directory %q is locked by another parsnip process", dataDir))
	}

	dbPath := filepath.Join(dataDir, "parsnip.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)", dbPath)
	if opts.ReadOnly {
		dsn += "&mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lk.Unlock()
		return nil, graph.StorageErr("open", fmt.Errorf("open sqlite: %w", err))
	}
	// The default backend is single-writer; one connection keeps every write
	// serialized through the same SQLite connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = lk.Unlock()
		return nil, graph.StorageErr("open", fmt.Errorf("ping sqlite: %w", err))
	}

	s := &Store{db: db, lock: lk, path: dbPath}
	if !opts.ReadOnly {
		if err := s.ensureSchema(ctx); err != nil {
			_ = db.Close()
			_ = lk.Unlock()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

// schemaDDL creates the logical tables as narrow KV tables, plus the
// secondary-index multimaps. entities/relations/projects store their full
// record as a JSON blob in `data`; the surrounding columns exist purely to
// serve as the primary key and the indexes the engine queries by.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS projects (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	project_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	entity_id  TEXT NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (project_id, name)
);
CREATE UNIQUE INDEX IF NOT EXISTS entities_by_id ON entities(entity_id);

CREATE TABLE IF NOT EXISTS tag_index (
	project_id TEXT NOT NULL,
	tag        TEXT NOT NULL,
	entity_id  TEXT NOT NULL,
	PRIMARY KEY (project_id, tag, entity_id)
);

CREATE TABLE IF NOT EXISTS type_index (
	project_id  TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	PRIMARY KEY (project_id, entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS relations (
	id              TEXT PRIMARY KEY,
	from_project_id TEXT NOT NULL,
	to_project_id   TEXT NOT NULL,
	from_entity_id  TEXT NOT NULL,
	to_entity_id    TEXT NOT NULL,
	relation_type   TEXT NOT NULL,
	data            BLOB NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS relations_triple ON relations(from_entity_id, to_entity_id, relation_type);
CREATE INDEX IF NOT EXISTS relations_outgoing ON relations(from_entity_id);
CREATE INDEX IF NOT EXISTS relations_incoming ON relations(to_entity_id);
CREATE INDEX IF NOT EXISTS relations_from_project ON relations(from_project_id);
CREATE INDEX IF NOT EXISTS relations_to_project ON relations(to_project_id);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return graph.StorageErr("ensure_schema", err)
	}
	version, err := s.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, graph.LatestSchemaVersion); err != nil {
			return graph.StorageErr("ensure_schema", err)
		}
		return nil
	}
	if version > graph.LatestSchemaVersion {
		return graph.SchemaTooNewErr("ensure_schema", fmt.Errorf("database schema version %d is newer than this binary supports (%d)", version, graph.LatestSchemaVersion))
	}
	return s.Migrate(ctx, version, graph.LatestSchemaVersion)
}

// CurrentVersion returns 0 if the schema_version table has never been
// populated (a brand-new database).
func (s *Store) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, graph.StorageErr("current_version", err)
	}
	return version, nil
}

// Migrate runs the ordered, idempotent migration chain from 'from' to 'to'.
// There is only schema version 1 today, so migrate is a structural no-op
// that just records the target version; future migrations append cases here
// in ascending order.
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

var _ graph.Store = (*Store)(nil)
