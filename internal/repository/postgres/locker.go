package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/dtroode/mdpublish/internal/model"
)

// lockClass namespaces the advisory locks taken by this service.
const lockClass = 0x6d64

var _ model.Locker = (*AdvisoryLocker)(nil)

// AdvisoryLocker leases a per-user session advisory lock on a dedicated
// connection, so concurrent syncs for one user are excluded across processes.
// db must be a pool the stores do not query through (Connection.Locks).
type AdvisoryLocker struct {
	db *sql.DB
}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get lock connection: %w", model.ErrStorageUnavailable, err)
	}

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1, hashtext($2))`, lockClass, key); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to acquire advisory lock: %w", model.ErrStorageUnavailable, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1, hashtext($2))`, lockClass, key)
			if err != nil {
				// drop the session instead of returning it to the pool still holding the lock
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
		})
	}, nil
}
