package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dtroode/mdpublish/internal/model"
)

var _ model.CredentialStore = (*CredentialRepository)(nil)

type CredentialRepository struct {
	db querier
}

func NewCredentialRepository(db querier) *CredentialRepository {
	return &CredentialRepository{
		db: db,
	}
}

func (r *CredentialRepository) Get(ctx context.Context, uid model.UID) (model.Credential, error) {
	query := `SELECT access_token FROM tokens WHERE uid = $1`

	var token string
	err := r.db.QueryRowContext(ctx, query, string(uid)).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", model.ErrNotFound
		}
		return "", fmt.Errorf("%w: failed to get credential: %w", model.ErrStorageUnavailable, err)
	}

	return model.Credential(token), nil
}

func (r *CredentialRepository) Set(ctx context.Context, uid model.UID, credential model.Credential) error {
	query := `INSERT INTO tokens (uid, access_token, created_at, updated_at)
			  VALUES ($1, $2, NOW(), NOW())
			  ON CONFLICT (uid) DO UPDATE SET access_token = EXCLUDED.access_token, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, string(uid), string(credential)); err != nil {
		return fmt.Errorf("%w: failed to set credential: %w", model.ErrStorageUnavailable, err)
	}

	return nil
}

func (r *CredentialRepository) List(ctx context.Context) ([]model.UID, error) {
	query := `SELECT uid FROM tokens ORDER BY uid`

	rows, err := r.db.QueryContext(ctx, query)
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
