package repo

import (
	"context"
	"database/sql"
	"strings"

	"fieldline/internal/domain"
)

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,description,phase,role,date_rule,due_date,is_ongoing,assigned_to,status,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Description, nullable(t.Phase), nullable(t.Role), nullable(t.DateRule),
		nullableStringPtr(t.DueDate), boolToInt(t.IsOngoing), jsonList(t.AssignedTo), t.Status, nullable(t.Notes),
		t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET description=?, phase=?, role=?, date_rule=?, due_date=?, is_ongoing=?, assigned_to=?, status=?, notes=?, updated_at=? WHERE id=?`,
		t.Description, nullable(t.Phase), nullable(t.Role), nullable(t.DateRule), nullableStringPtr(t.DueDate),
		boolToInt(t.IsOngoing), jsonList(t.AssignedTo), t.Status, nullable(t.Notes), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskColumns = `id,project_id,description,COALESCE(phase,''),COALESCE(role,''),COALESCE(date_rule,''),due_date,is_ongoing,assigned_to,status,COALESCE(notes,''),created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var dueDate sql.NullString
	var isOngoing int
	var assigned string
	err := scan(&t.ID, &t.ProjectID, &t.Description, &t.Phase, &t.Role, &t.DateRule, &dueDate, &isOngoing, &assigned, &t.Status, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	t.IsOngoing = isOngoing != 0
	t.AssignedTo = parseJSONList(assigned)
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	ProjectID string
	Status    string
	Phase     string
	Role      string
	MemberID  string
	Limit     int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Phase != "" {
		clauses = append(clauses, "phase=?")
		args = append(args, f.Phase)
	}
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.MemberID != "" {
		// assigned_to is a JSON array of member ids.
		clauses = append(clauses, "assigned_to LIKE ?")
		args = append(args, `%"`+f.MemberID+`"%`)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY due_date IS NULL, due_date, created_at, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// UpdateTaskDueDate touches only the computed date column.
func (r Repo) UpdateTaskDueDate(ctx context.Context, tx *sql.Tx, id string, dueDate *string, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET due_date=?, updated_at=? WHERE id=?`,
		nullableStringPtr(dueDate), updatedAt, id)
	return err
}

// UpdateTaskAssignees touches only the assignee column.
func (r Repo) UpdateTaskAssignees(ctx context.Context, tx *sql.Tx, id string, assignedTo []string, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET assigned_to=?, updated_at=? WHERE id=?`,
		jsonList(assignedTo), updatedAt, id)
	return err
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
