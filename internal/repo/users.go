package repo

import (
	"context"
	"database/sql"

	"safetydesk/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,account_id,full_name,email,role,avatar,created_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.AccountID, u.FullName, u.Email, u.Role, nullable(u.Avatar), u.CreatedAt)
	return err
}

func scanUser(scan func(...any) error) (domain.User, error) {
	var u domain.User
	var avatar sql.NullString
	err := scan(&u.ID, &u.AccountID, &u.FullName, &u.Email, &u.Role, &avatar, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if avatar.Valid {
		u.Avatar = avatar.String
	}
	return u, nil
}

const userColumns = `id,account_id,full_name,email,role,avatar,created_at`

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	return scanUser(row.Scan)
}

// ListUsers returns an account's users ordered by full name, the order the
// assignment pickers expect.
func (r Repo) ListUsers(ctx context.Context, accountID string, limit int) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE account_id=? ORDER BY full_name ASC`
	args := []any{accountID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
