package repo

import (
	"context"
	"database/sql"

	"safetydesk/internal/domain"
)

func (r Repo) InsertFileRef(ctx context.Context, f domain.FileRef) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO files(id,account_id,owner_id,name,size,created_at) VALUES (?,?,?,?,?,?)`,
		f.ID, f.AccountID, f.OwnerID, f.Name, f.Size, f.CreatedAt)
	return err
}

func (r Repo) GetFileRef(ctx context.Context, id string) (domain.FileRef, error) {
	var f domain.FileRef
	err := r.DB.QueryRowContext(ctx, `SELECT id,account_id,owner_id,name,size,created_at FROM files WHERE id=?`, id).
		Scan(&f.ID, &f.AccountID, &f.OwnerID, &f.Name, &f.Size, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}
