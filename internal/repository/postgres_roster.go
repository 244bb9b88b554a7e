package repository

import (
	"context"
	"database/sql"
	"time"

	"wisefido-erboard/internal/models"
)

// ListActiveClinicians 读取在岗医生名册
func (r *PostgresBedStore) ListActiveClinicians(ctx context.Context) ([]models.Clinician, error) {
	query := `
		SELECT clinician_id, name, section, active
		FROM er_clinicians
		WHERE active = TRUE
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, transient("ListActiveClinicians", err)
	}
	defer rows.Close()

	var out []models.Clinician
	for rows.Next() {
		var (
			c       models.Clinician
			section sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &section, &c.Active); err != nil {
			return nil, transient("ListActiveClinicians", err)
		}
		c.Section = section.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("ListActiveClinicians", err)
	}
	return out, nil
}

// ListActiveShifts 读取在 at 时刻生效的排班
func (r *PostgresBedStore) ListActiveShifts(ctx context.Context, at time.Time) ([]models.WorkShift, error) {
	query := `
		SELECT doctor_id, start_at, end_at, shift_type
		FROM er_work_shifts
		WHERE start_at <= $1 AND end_at > $1
		ORDER BY doctor_id, start_at
	`
	rows, err := r.db.QueryContext(ctx, query, at)
	if err != nil {
		return nil, transient("ListActiveShifts", err)
	}
	defer rows.Close()

	var out []models.WorkShift
	for rows.Next() {
		var (
			s         models.WorkShift
			shiftType string
		)
		if err := rows.Scan(&s.DoctorID, &s.Start, &s.End, &shiftType); err != nil {
			return nil, transient("ListActiveShifts", err)
		}
		s.Type = models.ShiftType(shiftType)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("ListActiveShifts", err)
	}
	return out, nil
}
