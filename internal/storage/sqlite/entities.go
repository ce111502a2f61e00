package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

func (s *Store) CreateEntity(ctx context.Context, e *graph.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("create_entity", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, e.ProjectID).Scan(&count); err != nil {
		return wrapDBError("create_entity", err)
	}
	if count == 0 {
		return graph.NotFound("create_entity", errProjectMissing(e.ProjectID))
	}

	data, err := json.Marshal(e)
	if err != nil {
		return graph.StorageErr("create_entity", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO entities (project_id, name, entity_id, data) VALUES (?, ?, ?, ?)`,
		e.ProjectID, e.Name, e.ID, data)
	if err != nil {
		return wrapDBError("create_entity", err)
	}
	if err := indexEntityTx(ctx, tx, e); err != nil {
		return err
	}
	return wrapDBError("create_entity", tx.Commit())
}

func indexEntityTx(ctx context.Context, tx *sql.Tx, e *graph.Entity) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO type_index (project_id, entity_type, entity_id) VALUES (?, ?, ?)`,
		e.ProjectID, e.EntityType, e.ID); err != nil {
		return wrapDBError("index_entity", err)
	}
	for _, tag := range e.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tag_index (project_id, tag, entity_id) VALUES (?, ?, ?)`,
			e.ProjectID, tag, e.ID); err != nil {
			return wrapDBError("index_entity", err)
		}
	}
	return nil
}

func unindexEntityTx(ctx context.Context, tx *sql.Tx, projectID, entityID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM type_index WHERE project_id = ? AND entity_id = ?`, projectID, entityID); err != nil {
		return wrapDBError("unindex_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tag_index WHERE project_id = ? AND entity_id = ?`, projectID, entityID); err != nil {
		return wrapDBError("unindex_entity", err)
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, projectID, name string) (*graph.Entity, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM entities WHERE project_id = ? AND name = ?`, projectID, name).Scan(&data)
	if err != nil {
		return nil, wrapDBError("get_entity", err)
	}
	return decodeEntity(data)
}

func (s *Store) GetEntityByID(ctx context.Context, id string) (*graph.Entity, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM entities WHERE entity_id = ?`, id).Scan(&data)
	if err != nil {
		return nil, wrapDBError("get_entity_by_id", err)
	}
	return decodeEntity(data)
}

func (s *Store) UpdateEntity(ctx context.Context, e *graph.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("update_entity", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingData []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM entities WHERE entity_id = ?`, e.ID).Scan(&existingData)
	if err == sql.ErrNoRows {
		return graph.NotFound("update_entity", errEntityMissing(e.ID))
	}
	if err != nil {
		return wrapDBError("update_entity", err)
	}
	existing, err := decodeEntity(existingData)
	if err != nil {
		return err
	}
	if existing.ProjectID != e.ProjectID {
		return graph.InvalidInput("update_entity", errImmutableField("project_id"))
	}

	if existing.Name != e.Name {
		var clash int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE project_id = ? AND name = ?`, e.ProjectID, e.Name).Scan(&clash); err != nil {
			return wrapDBError("update_entity", err)
		}
		if clash > 0 {
			return graph.AlreadyExists("update_entity", errEntityNameTaken(e.Name))
		}
	}

	if err := unindexEntityTx(ctx, tx, existing.ProjectID, existing.ID); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return graph.StorageErr("update_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE entity_id = ?`, e.ID); err != nil {
		return wrapDBError("update_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO entities (project_id, name, entity_id, data) VALUES (?, ?, ?, ?)`,
		e.ProjectID, e.Name, e.ID, data); err != nil {
		return wrapDBError("update_entity", err)
	}
	if err := indexEntityTx(ctx, tx, e); err != nil {
		return err
	}
	return wrapDBError("update_entity", tx.Commit())
}

// MutateEntity loads the entity at (projectID, name), applies fn, and writes
// the result back, all inside one transaction, so two concurrent mutations
// on the same entity (e.g. AddTags racing AddObservations) can't clobber
// each other the way a separate Get then Update would.
func (s *Store) MutateEntity(ctx context.Context, projectID, name string, fn func(*graph.Entity) error) (*graph.Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM entities WHERE project_id = ? AND name = ?`, projectID, name).Scan(&data)
	if err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	e, err := decodeEntity(data)
	if err != nil {
		return nil, err
	}

	if err := fn(e); err != nil {
		return nil, err
	}

	if e.Name != name {
		var clash int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE project_id = ? AND name = ?`, e.ProjectID, e.Name).Scan(&clash); err != nil {
			return nil, wrapDBError("mutate_entity", err)
		}
		if clash > 0 {
			return nil, graph.AlreadyExists("mutate_entity", errEntityNameTaken(e.Name))
		}
	}

	if err := unindexEntityTx(ctx, tx, projectID, e.ID); err != nil {
		return nil, err
	}
	newData, err := json.Marshal(e)
	if err != nil {
		return nil, graph.StorageErr("mutate_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE project_id = ? AND name = ?`, projectID, name); err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO entities (project_id, name, entity_id, data) VALUES (?, ?, ?, ?)`,
		e.ProjectID, e.Name, e.ID, newData); err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	if err := indexEntityTx(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	return e, nil
}

func (s *Store) DeleteEntity(ctx context.Context, projectID, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("delete_entity", err)
	}
	defer func() { _ = tx.Rollback() }()

	var entityID string
	err = tx.QueryRowContext(ctx, `SELECT entity_id FROM entities WHERE project_id = ? AND name = ?`, projectID, name).Scan(&entityID)
	if err == sql.ErrNoRows {
		return nil // idempotent
	}
	if err != nil {
		return wrapDBError("delete_entity", err)
	}

	if err := unindexEntityTx(ctx, tx, projectID, entityID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE project_id = ? AND name = ?`, projectID, name); err != nil {
		return wrapDBError("delete_entity", err)
	}
	return wrapDBError("delete_entity", tx.Commit())
}

func (s *Store) ListEntities(ctx context.Context, filter graph.EntityFilter) ([]*graph.Entity, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM entities WHERE 1=1`)
	var args []any

	if len(filter.ProjectIDs) > 0 {
		sb.WriteString(` AND project_id IN (`)
		sb.WriteString(placeholders(len(filter.ProjectIDs)))
		sb.WriteString(`)`)
		for _, id := range filter.ProjectIDs {
			args = append(args, id)
		}
	}
	if len(filter.Types) > 0 {
		sb.WriteString(` AND entity_id IN (SELECT entity_id FROM type_index WHERE entity_type IN (`)
		sb.WriteString(placeholders(len(filter.Types)))
		sb.WriteString(`))`)
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, wrapDBError("list_entities", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*graph.Entity
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, wrapDBError("list_entities", err)
		}
		e, err := decodeEntity(data)
		if err != nil {
			return nil, err
		}
		// Tag filtering happens in Go rather than SQL: `any` vs `all`
		// semantics over a multimap index aren't expressible as one clean
		// IN() clause the way the single-valued type filter is.
		if !filter.TagsMatch(e.Tags) {
			continue
		}
		out = append(out, e)
	}
	return out, wrapDBError("list_entities", rows.Err())
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func decodeEntity(data []byte) (*graph.Entity, error) {
	var e graph.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, graph.StorageErr("decode_entity", err)
	}
	return &e, nil
}

type immutableFieldError struct{ field string }

func (e immutableFieldError) Error() string { return "cannot change " + e.field }

func errImmutableField(field string) error { return immutableFieldError{field: field} }

type entityNameTakenError struct{ name string }

func (e entityNameTakenError) Error() string { return "entity name " + e.name + " already taken" }

func errEntityNameTaken(name string) error { return entityNameTakenError{name: name} }

type projectMissingError struct{ id string }

func (e projectMissingError) Error() string { return "project " + e.id + " does not exist" }

func errProjectMissing(id string) error { return projectMissingError{id: id} }
