package dolt

import (
	"context"
	"database/sql"

	"github.com/parsnip-mcp/parsnip/internal/graph"
)

func (s *Store) CreateProject(ctx context.Context, p *graph.Project) error {
	settings, err := encodeJSON(p.Settings)
	if err != nil {
		return graph.StorageErr("create_project", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, settings, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullString(p.Description), settings, p.CreatedAt)
	return wrapDBError("create_project", err)
}

func (s *Store) GetProject(ctx context.Context, id string) (*graph.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, settings, created_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (s *Store) GetProjectByName(ctx context.Context, name string) (*graph.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, settings, created_at FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

func (s *Store) ListProjects(ctx context.Context) ([]*graph.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, settings, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, wrapDBError("list_projects", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*graph.Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
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
		return nil
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
		rows, err := tx.QueryContext(ctx, `SELECT id FROM entities WHERE project_id = ?`, id)
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
			if err := cascadeDeleteEntityTx(ctx, tx, eid); err != nil {
				return err
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return wrapDBError("delete_project", err)
	}
	return wrapDBError("delete_project", tx.Commit())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*graph.Project, error) {
	return scanProjectRow(row)
}

func scanProjectRow(row rowScanner) (*graph.Project, error) {
	var p graph.Project
	var description, settings sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &description, &settings, &p.CreatedAt); err != nil {
		return nil, wrapDBError("scan_project", err)
	}
	p.Description = description.String
	m, err := decodeJSON[map[string]any](settings)
	if err != nil {
		return nil, graph.StorageErr("scan_project", err)
	}
	p.Settings = m
	return &p, nil
}

type notEmptyError struct{ name string }

func (e notEmptyError) Error() string { return "project " + e.name + " is not empty" }

func errNotEmpty(name string) error { return notEmptyError{name: name} }
