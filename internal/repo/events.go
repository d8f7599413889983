package repo

import (
	"context"
	"database/sql"

	"safetydesk/internal/domain"
)

const eventColumns = `id,account_id,title,category,start_at,end_at,assignee_id,assignee_name,created_at,updated_at`

func scanEvent(scan func(...any) error) (domain.Event, error) {
	var e domain.Event
	err := scan(&e.ID, &e.AccountID, &e.Title, &e.Category, &e.Start, &e.End, &e.AssigneeID, &e.AssigneeName, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) InsertEvent(ctx context.Context, tx *sql.Tx, e domain.Event) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO events(id,account_id,title,category,start_at,end_at,assignee_id,assignee_name,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.AccountID, e.Title, e.Category, e.Start, e.End, e.AssigneeID, e.AssigneeName, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r Repo) UpdateEvent(ctx context.Context, tx *sql.Tx, e domain.Event) error {
	res, err := tx.ExecContext(ctx, `UPDATE events SET title=?, category=?, start_at=?, end_at=?, assignee_id=?, assignee_name=?, updated_at=? WHERE id=?`,
		e.Title, e.Category, e.Start, e.End, e.AssigneeID, e.AssigneeName, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=?`, id)
	return scanEvent(row.Scan)
}

func (r Repo) DeleteEvent(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EventWindowFilters scopes a month-window listing. Start timestamps are
// compared lexicographically, which is safe for RFC3339 UTC strings.
type EventWindowFilters struct {
	AccountID  string
	AssigneeID string
	WindowFrom string
	WindowTo   string
	Limit      int
}

// ListEventsInWindow returns events with start inside [WindowFrom, WindowTo],
// ordered by start ascending with id as a stable tie-break.
func (r Repo) ListEventsInWindow(ctx context.Context, f EventWindowFilters) ([]domain.Event, error) {
	clauses := []string{"account_id=?", "start_at>=?", "start_at<=?"}
	args := []any{f.AccountID, f.WindowFrom, f.WindowTo}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + clauses[0]
	for _, c := range clauses[1:] {
		query += " AND " + c
	}
	query += ` ORDER BY start_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
