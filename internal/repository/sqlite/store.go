package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dtroode/mdpublish/internal/model"
)

var (
	_ model.CredentialStore = (*CredentialRepository)(nil)
	_ model.CursorStore     = (*CursorRepository)(nil)
)

type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Get(ctx context.Context, uid model.UID) (model.Credential, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `SELECT access_token FROM tokens WHERE uid = ?`, string(uid)).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to get credential: %w", model.ErrStorageUnavailable, err)
	}
	return model.Credential(token), nil
}

func (r *CredentialRepository) Set(ctx context.Context, uid model.UID, credential model.Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (uid, access_token) VALUES (?, ?)
		ON CONFLICT(uid) DO UPDATE SET access_token = excluded.access_token, updated_at = CURRENT_TIMESTAMP
	`, string(uid), string(credential))
	if err != nil {
		return fmt.Errorf("%w: failed to set credential: %w", model.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *CredentialRepository) List(ctx context.Context) ([]model.UID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT uid FROM tokens ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list credentials: %w", model.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var uids []model.UID
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%w: failed to scan uid: %w", model.ErrStorageUnavailable, err)
		}
		uids = append(uids, model.UID(uid))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list credentials: %w", model.ErrStorageUnavailable, err)
	}
	return uids, nil
}

type CursorRepository struct {
	db *sql.DB
}

func NewCursorRepository(db *sql.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

func (r *CursorRepository) Get(ctx context.Context, uid model.UID) (string, bool, error) {
	var cursor sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT cursor_value FROM cursors WHERE uid = ?`, string(uid)).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to get cursor: %w", model.ErrStorageUnavailable, err)
	}
	return cursor.String, cursor.Valid, nil
}

func (r *CursorRepository) Set(ctx context.Context, uid model.UID, cursor string) error {
	return r.put(ctx, uid, sql.NullString{String: cursor, Valid: true})
}

func (r *CursorRepository) Reset(ctx context.Context, uid model.UID) error {
	return r.put(ctx, uid, sql.NullString{})
}

func (r *CursorRepository) put(ctx context.Context, uid model.UID, cursor sql.NullString) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (uid, cursor_value) VALUES (?, ?)
		ON CONFLICT(uid) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = CURRENT_TIMESTAMP
	`, string(uid), cursor)
	if err != nil {
		return fmt.Errorf("%w: failed to set cursor: %w", model.ErrStorageUnavailable, err)
	}
	return nil
}
