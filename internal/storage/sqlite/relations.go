package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

func (s *Store) CreateRelation(ctx context.Context, r *graph.Relation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("create_relation", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range []string{r.FromEntityID, r.ToEntityID} {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE entity_id = ?`, id).Scan(&count); err != nil {
			return wrapDBError("create_relation", err)
		}
		if count == 0 {
			return graph.NotFound("create_relation", errEntityMissing(id))
		}
	}

	data, err := json.Marshal(r)
	if err != nil {
		return graph.StorageErr("create_relation", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO relations (id, from_project_id, to_project_id, from_entity_id, to_entity_id, relation_type, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromProjectID, r.ToProjectID, r.FromEntityID, r.ToEntityID, r.RelationType, data)
	if err != nil {
		return wrapDBError("create_relation", err)
	}
	return wrapDBError("create_relation", tx.Commit())
}

func (s *Store) GetRelation(ctx context.Context, id string) (*graph.Relation, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM relations WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, wrapDBError("get_relation", err)
	}
	return decodeRelation(data)
}

// UpdateRelationWeight replaces a relation's weight and metadata by id in a
// single transaction. Relations store their whole record as a JSON blob, so
// this decodes, mutates, and re-encodes rather than updating a column.
func (s *Store) UpdateRelationWeight(ctx context.Context, id string, weight *float64, metadata map[string]any) (*graph.Relation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("update_relation_weight", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data []byte
	if err := tx.QueryRowContext(ctx, `SELECT data FROM relations WHERE id = ?`, id).Scan(&data); err != nil {
		return nil, wrapDBError("update_relation_weight", err)
	}
	r, err := decodeRelation(data)
	if err != nil {
		return nil, err
	}
	r.Weight = weight
	r.Metadata = metadata

	newData, err := json.Marshal(r)
	if err != nil {
		return nil, graph.StorageErr("update_relation_weight", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE relations SET data = ? WHERE id = ?`, newData, id); err != nil {
		return nil, wrapDBError("update_relation_weight", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("update_relation_weight", err)
	}
	return r, nil
}

func (s *Store) DeleteRelation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id)
	return wrapDBError("delete_relation", err)
}

func (s *Store) DeleteRelationsForEntity(ctx context.Context, _ string, entityID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("delete_relations_for_entity", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := deleteRelationsForEntityTx(ctx, tx, entityID); err != nil {
		return err
	}
	return wrapDBError("delete_relations_for_entity", tx.Commit())
}

func deleteRelationsForEntityTx(ctx context.Context, tx *sql.Tx, entityID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE from_entity_id = ? OR to_entity_id = ?`, entityID, entityID)
	return wrapDBError("delete_relations_for_entity", err)
}

func (s *Store) GetRelationsForEntity(ctx context.Context, projectID string, entityID string, dir graph.Direction) ([]*graph.Relation, error) {
	return s.queryRelationsForEntity(ctx, entityID, dir, projectID)
}

func (s *Store) GetRelationsForEntityGlobal(ctx context.Context, entityID string) ([]*graph.Relation, error) {
	return s.queryRelationsForEntity(ctx, entityID, graph.DirBoth, "")
}

func (s *Store) queryRelationsForEntity(ctx context.Context, entityID string, dir graph.Direction, projectID string) ([]*graph.Relation, error) {
	var query string
	args := []any{entityID}
	switch dir {
	case graph.DirOutgoing:
		query = `SELECT data FROM relations WHERE from_entity_id = ?`
	case graph.DirIncoming:
		query = `SELECT data FROM relations WHERE to_entity_id = ?`
	default:
		query = `SELECT data FROM relations WHERE from_entity_id = ? OR to_entity_id = ?`
		args = append(args, entityID)
	}
	if projectID != "" {
		query += ` AND (from_project_id = ? OR to_project_id = ?)`
		args = append(args, projectID, projectID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get_relations_for_entity", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRelations(rows)
}

func (s *Store) GetRelationsForProject(ctx context.Context, projectID string) ([]*graph.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM relations WHERE from_project_id = ? OR to_project_id = ? ORDER BY id`, projectID, projectID)
	if err != nil {
		return nil, wrapDBError("get_relations_for_project", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRelations(rows)
}

func (s *Store) GetAllRelationsAllProjects(ctx context.Context) ([]*graph.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM relations ORDER BY id`)
	if err != nil {
		return nil, wrapDBError("get_all_relations_all_projects", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRelations(rows)
}

func scanRelations(rows *sql.Rows) ([]*graph.Relation, error) {
	var out []*graph.Relation
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, wrapDBError("scan_relation", err)
		}
		r, err := decodeRelation(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, wrapDBError("scan_relation", rows.Err())
}

func decodeRelation(data []byte) (*graph.Relation, error) {
	var r graph.Relation
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, graph.StorageErr("decode_relation", err)
	}
	return &r, nil
}

type entityMissingError struct{ id string }

func (e entityMissingError) Error() string { return "entity " + e.id + " does not exist" }

func errEntityMissing(id string) error { return entityMissingError{id: id} }
