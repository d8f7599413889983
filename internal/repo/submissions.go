package repo

import (
	"context"
	"database/sql"

	"safetydesk/internal/domain"
)

const submissionColumns = `id,task_id,type,file_id,submitted_by,account_id,submitted_at`

func scanSubmission(scan func(...any) error) (domain.TaskSubmission, error) {
	var s domain.TaskSubmission
	err := scan(&s.ID, &s.TaskID, &s.Type, &s.FileID, &s.SubmittedBy, &s.AccountID, &s.SubmittedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// InsertSubmissionTx inserts conditionally: the UNIQUE(task_id, submitted_by)
// constraint plus ON CONFLICT DO NOTHING makes concurrent duplicate submits
// converge on a single row. Callers must re-read to observe the winner.
func (r Repo) InsertSubmissionTx(ctx context.Context, tx *sql.Tx, s domain.TaskSubmission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_submissions(id,task_id,type,file_id,submitted_by,account_id,submitted_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(task_id, submitted_by) DO NOTHING`,
		s.ID, s.TaskID, s.Type, s.FileID, s.SubmittedBy, s.AccountID, s.SubmittedAt)
	return err
}

func (r Repo) GetSubmissionForTaskUser(ctx context.Context, taskID, userID string) (domain.TaskSubmission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM task_submissions WHERE task_id=? AND submitted_by=?`, taskID, userID)
	return scanSubmission(row.Scan)
}

func (r Repo) GetSubmissionForTaskUserTx(ctx context.Context, tx *sql.Tx, taskID, userID string) (domain.TaskSubmission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM task_submissions WHERE task_id=? AND submitted_by=?`, taskID, userID)
	return scanSubmission(row.Scan)
}

// ListSubmissionsByTask returns a task's submissions newest first.
func (r Repo) ListSubmissionsByTask(ctx context.Context, taskID string, limit int) ([]domain.TaskSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM task_submissions WHERE task_id=? ORDER BY submitted_at DESC, id DESC`
	args := []any{taskID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskSubmission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
