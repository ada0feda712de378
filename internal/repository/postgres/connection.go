package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dtroode/mdpublish/database"
	"github.com/dtroode/mdpublish/internal/model"
)

// querier is the subset of database/sql used by the repositories.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Connection holds two pools. Queries run on the embedded DB and return their
// connection right away; Locks serves the per-user leases, which keep a
// connection for a whole sync, so a lease holder never waits on a connection
// another lease holder owns.
type Connection struct {
	*sql.DB
	Locks *sql.DB

	pool     *pgxpool.Pool
	lockPool *pgxpool.Pool
}

// minLeaseConns is the lock pool size used when no lease count is given.
const minLeaseConns = 4

// NewConnection opens both pools and migrates the schema. leases bounds how
// many per-user leases can be held at once; callers past it wait for one to
// be released.
func NewConnection(ctx context.Context, dsn string, leases int) (*Connection, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	lockConf := conf.Copy()
	lockConf.MaxConns = int32(max(leases, minLeaseConns))
	lockConf.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open connection pool: %w", model.ErrStorageUnavailable, err)
	}
	lockPool, err := pgxpool.NewWithConfig(ctx, lockConf)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to open lock pool: %w", model.ErrStorageUnavailable, err)
	}

	c := &Connection{
		DB:       stdlib.OpenDBFromPool(pool),
		Locks:    stdlib.OpenDBFromPool(lockPool),
		pool:     pool,
		lockPool: lockPool,
	}

	if err := c.DB.PingContext(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: failed to reach postgres: %w", model.ErrStorageUnavailable, err)
	}

	if err := database.Migrate(ctx, c.DB, database.DialectPostgres); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return c, nil
}

func (s *Connection) Close() error {
	var errs []error
	if s.Locks != nil {
		errs = append(errs, s.Locks.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	if s.lockPool != nil {
		s.lockPool.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}

func (s *Connection) Ping(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("connection is nil")
	}
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorageUnavailable, err)
	}
	return nil
}
