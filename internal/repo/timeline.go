package repo

import (
	"context"
	"database/sql"

	"fieldline/internal/domain"
)

func (r Repo) UpsertAnchorDates(ctx context.Context, tx *sql.Tx, a domain.AnchorDates) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO anchor_dates(project_id,ko_date,fieldwork_start,fieldwork_end,report_due,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET ko_date=excluded.ko_date, fieldwork_start=excluded.fieldwork_start, fieldwork_end=excluded.fieldwork_end, report_due=excluded.report_due, updated_at=excluded.updated_at`,
		a.ProjectID, a.KODate, a.FieldworkStart, a.FieldworkEnd, a.ReportDue, a.UpdatedAt)
	return err
}

func (r Repo) GetAnchorDates(ctx context.Context, projectID string) (domain.AnchorDates, error) {
	var a domain.AnchorDates
	err := r.DB.QueryRowContext(ctx, `SELECT project_id,ko_date,fieldwork_start,fieldwork_end,report_due,updated_at FROM anchor_dates WHERE project_id=?`, projectID).
		Scan(&a.ProjectID, &a.KODate, &a.FieldworkStart, &a.FieldworkEnd, &a.ReportDue, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// ReplaceSegments swaps the project's phase segments for the given set.
func (r Repo) ReplaceSegments(ctx context.Context, tx *sql.Tx, projectID string, segments []domain.PhaseSegment) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM phase_segments WHERE project_id=?`, projectID); err != nil {
		return err
	}
	for _, s := range segments {
		if _, err := tx.ExecContext(ctx, `INSERT INTO phase_segments(project_id,phase,position,start_date,end_date) VALUES (?,?,?,?,?)`,
			projectID, s.Phase, s.Position, s.StartDate, s.EndDate); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListSegments(ctx context.Context, projectID string) ([]domain.PhaseSegment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,phase,position,start_date,end_date FROM phase_segments WHERE project_id=? ORDER BY position`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PhaseSegment
	for rows.Next() {
		var s domain.PhaseSegment
		if err := rows.Scan(&s.ProjectID, &s.Phase, &s.Position, &s.StartDate, &s.EndDate); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) ListSegmentsTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.PhaseSegment, error) {
	rows, err := tx.QueryContext(ctx, `SELECT project_id,phase,position,start_date,end_date FROM phase_segments WHERE project_id=? ORDER BY position`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PhaseSegment
	for rows.Next() {
		var s domain.PhaseSegment
		if err := rows.Scan(&s.ProjectID, &s.Phase, &s.Position, &s.StartDate, &s.EndDate); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) InsertKeyDate(ctx context.Context, tx *sql.Tx, kd domain.KeyDate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO key_dates(id,project_id,label,date) VALUES (?,?,?,?)`,
		kd.ID, kd.ProjectID, kd.Label, kd.Date)
	return err
}

func (r Repo) UpdateKeyDate(ctx context.Context, tx *sql.Tx, kd domain.KeyDate) error {
	res, err := tx.ExecContext(ctx, `UPDATE key_dates SET label=?, date=? WHERE id=?`, kd.Label, kd.Date, kd.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteKeyDate(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM key_dates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListKeyDates(ctx context.Context, projectID string) ([]domain.KeyDate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,label,date FROM key_dates WHERE project_id=? ORDER BY date, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.KeyDate
	for rows.Next() {
		var kd domain.KeyDate
		if err := rows.Scan(&kd.ID, &kd.ProjectID, &kd.Label, &kd.Date); err != nil {
			return nil, err
		}
		res = append(res, kd)
	}
	return res, nil
}

func (r Repo) ListKeyDatesTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.KeyDate, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,project_id,label,date FROM key_dates WHERE project_id=? ORDER BY date, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.KeyDate
	for rows.Next() {
		var kd domain.KeyDate
		if err := rows.Scan(&kd.ID, &kd.ProjectID, &kd.Label, &kd.Date); err != nil {
			return nil, err
		}
		res = append(res, kd)
	}
	return res, nil
}
