package dolt

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

func (s *Store) CreateRelation(ctx context.Context, r *graph.Relation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("create_relation", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireEntityTx(ctx, tx, r.FromEntityID); err != nil {
		return err
	}
	if err := requireEntityTx(ctx, tx, r.ToEntityID); err != nil {
		return err
	}

	metadata, err := encodeJSON(r.Metadata)
	if err != nil {
		return graph.StorageErr("create_relation", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO relations (id, from_project_id, to_project_id, from_entity_id, to_entity_id, relation_type, weight, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromProjectID, r.ToProjectID, r.FromEntityID, r.ToEntityID, r.RelationType, nullFloat(r.Weight), metadata, r.CreatedAt)
	if err != nil {
		return wrapDBError("create_relation", err)
	}
	return wrapDBError("create_relation", tx.Commit())
}

func requireEntityTx(ctx context.Context, tx *sql.Tx, entityID string) error {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE id = ?`, entityID).Scan(&count); err != nil {
		return wrapDBError("require_entity", err)
	}
	if count == 0 {
		return graph.NotFound("require_entity", errEntityMissing(entityID))
	}
	return nil
}

func (s *Store) GetRelation(ctx context.Context, id string) (*graph.Relation, error) {
	row := s.db.QueryRowContext(ctx, relationSelect+` WHERE id = ?`, id)
	return scanRelationRow(row)
}

// UpdateRelationWeight replaces a relation's weight and metadata columns by
// id in a single statement; unlike the sqlite backend, relations here have
// dedicated weight/metadata columns rather than one JSON blob.
func (s *Store) UpdateRelationWeight(ctx context.Context, id string, weight *float64, metadata map[string]any) (*graph.Relation, error) {
	encodedMetadata, err := encodeJSON(metadata)
	if err != nil {
		return nil, graph.StorageErr("update_relation_weight", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE relations SET weight = ?, metadata = ? WHERE id = ?`, nullFloat(weight), encodedMetadata, id)
	if err != nil {
		return nil, wrapDBError("update_relation_weight", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, graph.NotFound("update_relation_weight", fmt.Errorf("relation %q does not exist", id))
	}
	return s.GetRelation(ctx, id)
}

func (s *Store) DeleteRelation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id)
	return wrapDBError("delete_relation", err)
}

func (s *Store) DeleteRelationsForEntity(ctx context.Context, _ string, entityID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM relations WHERE from_entity_id = ? OR to_entity_id = ?`, entityID, entityID)
	return wrapDBError("delete_relations_for_entity", err)
}

func (s *Store) GetRelationsForEntity(ctx context.Context, projectID, entityID string, dir graph.Direction) ([]*graph.Relation, error) {
	return s.queryRelationsForEntity(ctx, entityID, dir, projectID)
}

func (s *Store) GetRelationsForEntityGlobal(ctx context.Context, entityID string) ([]*graph.Relation, error) {
	return s.queryRelationsForEntity(ctx, entityID, graph.DirBoth, "")
}

func (s *Store) queryRelationsForEntity(ctx context.Context, entityID string, dir graph.Direction, projectID string) ([]*graph.Relation, error) {
	var where string
	var args []any
	switch dir {
	case graph.DirOutgoing:
		where = ` WHERE from_entity_id = ?`
		args = append(args, entityID)
	case graph.DirIncoming:
		where = ` WHERE to_entity_id = ?`
		args = append(args, entityID)
	default:
		where = ` WHERE from_entity_id = ? OR to_entity_id = ?`
		args = append(args, entityID, entityID)
	}
	if projectID != "" {
		where += ` AND (from_project_id = ? OR to_project_id = ?)`
		args = append(args, projectID, projectID)
	}
	return s.queryRelationRows(ctx, relationSelect+where+` ORDER BY id ASC`, args...)
}

func (s *Store) GetRelationsForProject(ctx context.Context, projectID string) ([]*graph.Relation, error) {
	return s.queryRelationRows(ctx, relationSelect+` WHERE from_project_id = ? OR to_project_id = ? ORDER BY id ASC`, projectID, projectID)
}

func (s *Store) GetAllRelationsAllProjects(ctx context.Context) ([]*graph.Relation, error) {
	return s.queryRelationRows(ctx, relationSelect+` ORDER BY id ASC`)
}

const relationSelect = `SELECT id, from_project_id, to_project_id, from_entity_id, to_entity_id, relation_type, weight, metadata, created_at FROM relations`

func (s *Store) queryRelationRows(ctx context.Context, query string, args ...any) ([]*graph.Relation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("query_relations", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*graph.Relation
	for rows.Next() {
		r, err := scanRelationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, wrapDBError("query_relations", rows.Err())
}

func scanRelationRow(row rowScanner) (*graph.Relation, error) {
	var r graph.Relation
	var metadata sql.NullString
	var weight sql.NullFloat64
	if err := row.Scan(&r.ID, &r.FromProjectID, &r.ToProjectID, &r.FromEntityID, &r.ToEntityID, &r.RelationType, &weight, &metadata, &r.CreatedAt); err != nil {
		return nil, wrapDBError("scan_relation", err)
	}
	r.Weight = floatPtr(weight)
	m, err := decodeJSON[map[string]any](metadata)
	if err != nil {
		return nil, graph.StorageErr("scan_relation", err)
	}
	r.Metadata = m
	return &r, nil
}
