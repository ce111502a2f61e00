package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

func (s *Store) CreateProject(ctx context.Context, p *graph.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return graph.StorageErr("create_project", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO projects (id, name, data) VALUES (?, ?, ?)`, p.ID, p.Name, data)
	return wrapDBError("create_project", err)
}

func (s *Store) GetProject(ctx context.Context, id string) (*graph.Project, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM projects WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, wrapDBError("get_project", err)
	}
	return decodeProject(data)
}

func (s *Store) GetProjectByName(ctx context.Context, name string) (*graph.Project, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM projects WHERE name = ?`, name).Scan(&data)
	if err != nil {
		return nil, wrapDBError("get_project_by_name", err)
	}
	return decodeProject(data)
}

func (s *Store) ListProjects(ctx context.Context) ([]*graph.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM projects ORDER BY id`)
	if err != nil {
		return nil, wrapDBError("list_projects", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*graph.Project
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, wrapDBError("list_projects", err)
		}
		p, err := decodeProject(data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, wrapDBError("list_projects", rows.Err())
}

func (s *Store) DeleteProject(ctx context.Context, id string, force bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("delete_project", err)
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	err = tx.QueryRowContext(ctx, `SELECT name FROM projects WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return nil // idempotent
	}
	if err != nil {
		return wrapDBError("delete_project", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE project_id = ?`, id).Scan(&count); err != nil {
		return wrapDBError("delete_project", err)
	}
	if count > 0 && !force {
		return graph.InvalidInput("delete_project", errNotEmpty(name))
	}

	if count > 0 {
		rows, err := tx.QueryContext(ctx, `SELECT entity_id FROM entities WHERE project_id = ?`, id)
		if err != nil {
			return wrapDBError("delete_project", err)
		}
		var entityIDs []string
		for rows.Next() {
			var eid string
			if err := rows.Scan(&eid); err != nil {
				_ = rows.Close()
				return wrapDBError("delete_project", err)
			}
			entityIDs = append(entityIDs, eid)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return wrapDBError("delete_project", err)
		}
		for _, eid := range entityIDs {
			if err := deleteRelationsForEntityTx(ctx, tx, eid); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tag_index WHERE project_id = ?`, id); err != nil {
			return wrapDBError("delete_project", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM type_index WHERE project_id = ?`, id); err != nil {
			return wrapDBError("delete_project", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE project_id = ?`, id); err != nil {
			return wrapDBError("delete_project", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return wrapDBError("delete_project", err)
	}
	return wrapDBError("delete_project", tx.Commit())
}

func decodeProject(data []byte) (*graph.Project, error) {
	var p graph.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, graph.StorageErr("decode_project", err)
	}
	return &p, nil
}

type notEmptyError struct{ name string }

func (e notEmptyError) Error() string { return "project " + e.name + " is not empty" }

func errNotEmpty(name string) error { return notEmptyError{name: name} }
