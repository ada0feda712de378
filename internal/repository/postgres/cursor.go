package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dtroode/mdpublish/internal/model"
)

var _ model.CursorStore = (*CursorRepository)(nil)

type CursorRepository struct {
	db querier
}

func NewCursorRepository(db querier) *CursorRepository {
	return &CursorRepository{db: db}
}

func (r *CursorRepository) Get(ctx context.Context, uid model.UID) (string, bool, error) {
	const query = `SELECT cursor_value FROM cursors WHERE uid = $1`

	var cursor sql.NullString
	err := r.db.QueryRowContext(ctx, query, string(uid)).Scan(&cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
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
	const query = `
        INSERT INTO cursors (uid, cursor_value, updated_at) VALUES ($1, $2, NOW())
        ON CONFLICT (uid) DO UPDATE SET cursor_value = EXCLUDED.cursor_value, updated_at = NOW()
    `

	if _, err := r.db.ExecContext(ctx, query, string(uid), cursor); err != nil {
		return fmt.Errorf("%w: failed to set cursor: %w", model.ErrStorageUnavailable, err)
	}
	return nil
}
