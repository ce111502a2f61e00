package dolt

import (
	"context"
	"database/sql"
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

	if err := insertEntityRowTx(ctx, tx, e); err != nil {
		return err
	}
	return wrapDBError("create_entity", tx.Commit())
}

func insertEntityRowTx(ctx context.Context, tx *sql.Tx, e *graph.Entity) error {
	tags, err := encodeJSON(e.Tags)
	if err != nil {
		return graph.StorageErr("create_entity", err)
	}
	metadata, err := encodeJSON(e.Metadata)
	if err != nil {
		return graph.StorageErr("create_entity", err)
	}
	embedding, err := encodeJSON(e.Embedding)
	if err != nil {
		return graph.StorageErr("create_entity", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (id, project_id, name, entity_type, tags, metadata, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Name, e.EntityType, tags, metadata, embedding, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return wrapDBError("create_entity", err)
	}

	for i, obs := range e.Observations {
		if err := insertObservationTx(ctx, tx, e.ID, i, &obs); err != nil {
			return err
		}
	}
	for _, tag := range e.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (project_id, tag, entity_id) VALUES (?, ?, ?)`, e.ProjectID, tag, e.ID); err != nil {
			return wrapDBError("create_entity", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO entity_types (project_id, entity_type, entity_id) VALUES (?, ?, ?)`, e.ProjectID, e.EntityType, e.ID); err != nil {
		return wrapDBError("create_entity", err)
	}
	return nil
}

func insertObservationTx(ctx context.Context, tx *sql.Tx, entityID string, seq int, obs *graph.Observation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO observations (id, entity_id, seq, content, source, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, entityID, seq, obs.Content, nullString(obs.Source), nullFloat(obs.Confidence), obs.CreatedAt)
	return wrapDBError("insert_observation", err)
}

func (s *Store) GetEntity(ctx context.Context, projectID, name string) (*graph.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, entity_type, tags, metadata, embedding, created_at, updated_at
		FROM entities WHERE project_id = ? AND name = ?`, projectID, name)
	return s.scanEntityWithObservations(ctx, row)
}

func (s *Store) GetEntityByID(ctx context.Context, id string) (*graph.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, entity_type, tags, metadata, embedding, created_at, updated_at
		FROM entities WHERE id = ?`, id)
	return s.scanEntityWithObservations(ctx, row)
}

func (s *Store) scanEntityWithObservations(ctx context.Context, row rowScanner) (*graph.Entity, error) {
	e, err := scanEntityRow(row)
	if err != nil {
		return nil, err
	}
	obs, err := s.loadObservations(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Observations = obs
	return e, nil
}

func (s *Store) loadObservations(ctx context.Context, entityID string) ([]graph.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source, confidence, created_at FROM observations
		WHERE entity_id = ? ORDER BY seq ASC`, entityID)
	if err != nil {
		return nil, wrapDBError("load_observations", err)
	}
	defer func() { _ = rows.Close() }()

	var out []graph.Observation
	for rows.Next() {
		var o graph.Observation
		var source sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&o.ID, &o.Content, &source, &confidence, &o.CreatedAt); err != nil {
			return nil, wrapDBError("load_observations", err)
		}
		o.Source = source.String
		o.Confidence = floatPtr(confidence)
		out = append(out, o)
	}
	return out, wrapDBError("load_observations", rows.Err())
}

func scanEntityRow(row rowScanner) (*graph.Entity, error) {
	var e graph.Entity
	var tags, metadata, embedding sql.NullString
	if err := row.Scan(&e.ID, &e.ProjectID, &e.Name, &e.EntityType, &tags, &metadata, &embedding, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, wrapDBError("scan_entity", err)
	}
	var err error
	if e.Tags, err = decodeJSON[[]string](tags); err != nil {
		return nil, graph.StorageErr("scan_entity", err)
	}
	if e.Metadata, err = decodeJSON[map[string]any](metadata); err != nil {
		return nil, graph.StorageErr("scan_entity", err)
	}
	if e.Embedding, err = decodeJSON[[]float32](embedding); err != nil {
		return nil, graph.StorageErr("scan_entity", err)
	}
	return &e, nil
}

func (s *Store) UpdateEntity(ctx context.Context, e *graph.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("update_entity", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingProjectID, existingName string
	err = tx.QueryRowContext(ctx, `SELECT project_id, name FROM entities WHERE id = ?`, e.ID).Scan(&existingProjectID, &existingName)
	if err == sql.ErrNoRows {
		return graph.NotFound("update_entity", errEntityMissing(e.ID))
	}
	if err != nil {
		return wrapDBError("update_entity", err)
	}
	if existingProjectID != e.ProjectID {
		return graph.InvalidInput("update_entity", errImmutableField("project_id"))
	}
	if existingName != e.Name {
		var clash int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE project_id = ? AND name = ?`, e.ProjectID, e.Name).Scan(&clash); err != nil {
			return wrapDBError("update_entity", err)
		}
		if clash > 0 {
			return graph.AlreadyExists("update_entity", errEntityNameTaken(e.Name))
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE entity_id = ?`, e.ID); err != nil {
		return wrapDBError("update_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_types WHERE entity_id = ?`, e.ID); err != nil {
		return wrapDBError("update_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE entity_id = ?`, e.ID); err != nil {
		return wrapDBError("update_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, e.ID); err != nil {
		return wrapDBError("update_entity", err)
	}
	if err := insertEntityRowTx(ctx, tx, e); err != nil {
		return err
	}
	return wrapDBError("update_entity", tx.Commit())
}

// MutateEntity loads the entity at (projectID, name) with its observations,
// applies fn, and writes the full result back inside one transaction, so a
// concurrent mutation on the same entity can't be lost between an earlier
// read and a later write.
func (s *Store) MutateEntity(ctx context.Context, projectID, name string, fn func(*graph.Entity) error) (*graph.Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, project_id, name, entity_type, tags, metadata, embedding, created_at, updated_at
		FROM entities WHERE project_id = ? AND name = ?`, projectID, name)
	e, err := scanEntityRow(row)
	if err != nil {
		return nil, err
	}
	obsRows, err := tx.QueryContext(ctx, `
		SELECT id, content, source, confidence, created_at FROM observations
		WHERE entity_id = ? ORDER BY seq ASC`, e.ID)
	if err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	var observations []graph.Observation
	for obsRows.Next() {
		var o graph.Observation
		var source sql.NullString
		var confidence sql.NullFloat64
		if err := obsRows.Scan(&o.ID, &o.Content, &source, &confidence, &o.CreatedAt); err != nil {
			_ = obsRows.Close()
			return nil, wrapDBError("mutate_entity", err)
		}
		o.Source = source.String
		o.Confidence = floatPtr(confidence)
		observations = append(observations, o)
	}
	if err := obsRows.Err(); err != nil {
		_ = obsRows.Close()
		return nil, wrapDBError("mutate_entity", err)
	}
	_ = obsRows.Close()
	e.Observations = observations

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

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE entity_id = ?`, e.ID); err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_types WHERE entity_id = ?`, e.ID); err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE entity_id = ?`, e.ID); err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, e.ID); err != nil {
		return nil, wrapDBError("mutate_entity", err)
	}
	if err := insertEntityRowTx(ctx, tx, e); err != nil {
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
	err = tx.QueryRowContext(ctx, `SELECT id FROM entities WHERE project_id = ? AND name = ?`, projectID, name).Scan(&entityID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return wrapDBError("delete_entity", err)
	}
	if err := cascadeDeleteEntityTx(ctx, tx, entityID); err != nil {
		return err
	}
	return wrapDBError("delete_entity", tx.Commit())
}

// cascadeDeleteEntityTx removes an entity, its observations, tag/type index
// rows, and every relation touching it.
func cascadeDeleteEntityTx(ctx context.Context, tx *sql.Tx, entityID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE from_entity_id = ? OR to_entity_id = ?`, entityID, entityID); err != nil {
		return wrapDBError("cascade_delete_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE entity_id = ?`, entityID); err != nil {
		return wrapDBError("cascade_delete_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE entity_id = ?`, entityID); err != nil {
		return wrapDBError("cascade_delete_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_types WHERE entity_id = ?`, entityID); err != nil {
		return wrapDBError("cascade_delete_entity", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, entityID); err != nil {
		return wrapDBError("cascade_delete_entity", err)
	}
	return nil
}

func (s *Store) ListEntities(ctx context.Context, filter graph.EntityFilter) ([]*graph.Entity, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, project_id, name, entity_type, tags, metadata, embedding, created_at, updated_at FROM entities WHERE 1=1`)
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
		sb.WriteString(` AND id IN (SELECT entity_id FROM entity_types WHERE entity_type IN (`)
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
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		if !filter.TagsMatch(e.Tags) {
			continue
		}
		obs, err := s.loadObservations(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.Observations = obs
		out = append(out, e)
	}
	return out, wrapDBError("list_entities", rows.Err())
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type entityMissingError struct{ id string }

func (e entityMissingError) Error() string { return "entity " + e.id + " does not exist" }

func errEntityMissing(id string) error { return entityMissingError{id: id} }

type immutableFieldError struct{ field string }

func (e immutableFieldError) Error() string { return "cannot change " + e.field }

func errImmutableField(field string) error { return immutableFieldError{field: field} }

type entityNameTakenError struct{ name string }

func (e entityNameTakenError) Error() string { return "entity name " + e.name + " already taken" }

func errEntityNameTaken(name string) error { return entityNameTakenError{name: name} }

type projectMissingError struct{ id string }

func (e projectMissingError) Error() string { return "project " + e.id + " does not exist" }

func errProjectMissing(id string) error { return projectMissingError{id: id} }
