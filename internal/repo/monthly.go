package repo

import (
	"context"
	"database/sql"

	"safetydesk/internal/domain"
)

const monthlyColumns = `id,account_id,user_id,month,inspections_programmed,inspections_completed,training_programmed,training_completed,updated_at`

func scanMonthly(scan func(...any) error) (domain.MonthlyRecord, error) {
	var m domain.MonthlyRecord
	err := scan(&m.ID, &m.AccountID, &m.UserID, &m.Month,
		&m.InspectionsProgrammed, &m.InspectionsCompleted,
		&m.TrainingProgrammed, &m.TrainingCompleted, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

// UpsertMonthlyRecord writes a record keyed by (account, user, month),
// replacing counters in place on conflict.
func (r Repo) UpsertMonthlyRecord(ctx context.Context, tx *sql.Tx, m domain.MonthlyRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO monthly_records(id,account_id,user_id,month,inspections_programmed,inspections_completed,training_programmed,training_completed,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(account_id, user_id, month) DO UPDATE SET
  inspections_programmed=excluded.inspections_programmed,
  inspections_completed=excluded.inspections_completed,
  training_programmed=excluded.training_programmed,
  training_completed=excluded.training_completed,
  updated_at=excluded.updated_at`,
		m.ID, m.AccountID, m.UserID, m.Month,
		m.InspectionsProgrammed, m.InspectionsCompleted,
		m.TrainingProgrammed, m.TrainingCompleted, m.UpdatedAt)
	return err
}

func (r Repo) GetMonthlyRecord(ctx context.Context, id string) (domain.MonthlyRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+monthlyColumns+` FROM monthly_records WHERE id=?`, id)
	return scanMonthly(row.Scan)
}

func (r Repo) GetMonthlyRecordForKey(ctx context.Context, accountID, userID, month string) (domain.MonthlyRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+monthlyColumns+` FROM monthly_records WHERE account_id=? AND user_id=? AND month=?`,
		accountID, userID, month)
	return scanMonthly(row.Scan)
}

func (r Repo) ListMonthlyRecords(ctx context.Context, accountID, userID string) ([]domain.MonthlyRecord, error) {
	query := `SELECT ` + monthlyColumns + ` FROM monthly_records WHERE account_id=?`
	args := []any{accountID}
	if userID != "" {
		query += ` AND user_id=?`
		args = append(args, userID)
	}
	query += ` ORDER BY month ASC, user_id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MonthlyRecord
	for rows.Next() {
		m, err := scanMonthly(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) DeleteMonthlyRecord(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM monthly_records WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
