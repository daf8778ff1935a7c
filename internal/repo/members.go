package repo

import (
	"context"
	"database/sql"

	"fieldline/internal/domain"
)

func (r Repo) InsertMember(ctx context.Context, tx *sql.Tx, m domain.TeamMember) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO team_members(id,project_id,name,roles,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.ProjectID, m.Name, jsonList(m.Roles), m.CreatedAt)
	return err
}

func scanMember(scan func(dest ...any) error) (domain.TeamMember, error) {
	var m domain.TeamMember
	var roles string
	err := scan(&m.ID, &m.ProjectID, &m.Name, &roles, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Roles = parseJSONList(roles)
	return m, nil
}

func (r Repo) GetMember(ctx context.Context, id string) (domain.TeamMember, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,roles,created_at FROM team_members WHERE id=?`, id)
	return scanMember(row.Scan)
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, id string) (domain.TeamMember, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,project_id,name,roles,created_at FROM team_members WHERE id=?`, id)
	return scanMember(row.Scan)
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,roles,created_at FROM team_members WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		m, err := scanMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

func (r Repo) ListMembersTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.TeamMember, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,project_id,name,roles,created_at FROM team_members WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		m, err := scanMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

func (r Repo) UpdateMemberRoles(ctx context.Context, tx *sql.Tx, id string, roles []string) error {
	res, err := tx.ExecContext(ctx, `UPDATE team_members SET roles=? WHERE id=?`, jsonList(roles), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteMember(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM team_members WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
