// Package repository opens the store backend named by a connection string.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dtroode/mdpublish/internal/model"
	"github.com/dtroode/mdpublish/internal/repository/memory"
	"github.com/dtroode/mdpublish/internal/repository/postgres"
	"github.com/dtroode/mdpublish/internal/repository/sqlite"
)

var ErrUnsupportedScheme = errors.New("unsupported store scheme")

// Backend bundles the stores and the per-user locker of one storage backend.
type Backend struct {
	Credentials model.CredentialStore
	Cursors     model.CursorStore
	Locker      model.Locker

	Kind  string
	ping  func(ctx context.Context) error
	close func() error
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

type options struct {
	leases int
}

type Option func(*options)

// WithLeases sizes the backend for n concurrently held per-user leases.
func WithLeases(n int) Option {
	return func(o *options) {
		o.leases = n
	}
}

// Open picks a backend from storeURL's scheme: postgres/postgresql, sqlite/file
// or memory/mem. An empty url means memory.
func Open(ctx context.Context, storeURL string, opts ...Option) (*Backend, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	storeURL = strings.TrimSpace(storeURL)
	if storeURL == "" {
		return NewMemory(), nil
	}

	parsed, err := url.Parse(storeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store url: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "memory", "mem":
		return NewMemory(), nil
	case "postgres", "postgresql":
		conn, err := postgres.NewConnection(ctx, storeURL, o.leases)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Credentials: postgres.NewCredentialRepository(conn),
			Cursors:     postgres.NewCursorRepository(conn),
			Locker:      postgres.NewAdvisoryLocker(conn.Locks),
			Kind:        "postgres",
			ping:        conn.Ping,
			close:       conn.Close,
		}, nil
	case "sqlite", "file":
		path := sqlitePath(storeURL, scheme)
		if path == "" {
			return nil, fmt.Errorf("store url %q has no database path", storeURL)
		}
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return newSQLite(db), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// NewMemory returns a process-local backend.
func NewMemory() *Backend {
	return &Backend{
		Credentials: memory.NewCredentialStore(),
		Cursors:     memory.NewCursorStore(),
		Locker:      memory.NewKeyedLocker(),
		Kind:        "memory",
	}
}

func newSQLite(db *sql.DB) *Backend {
	return &Backend{
		Credentials: sqlite.NewCredentialRepository(db),
		Cursors:     sqlite.NewCursorRepository(db),
		// a sqlite file is owned by one process
		Locker: memory.NewKeyedLocker(),
		Kind:   "sqlite",
		ping: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("%w: %w", model.ErrStorageUnavailable, err)
			}
			return nil
		},
		close: db.Close,
	}
}

func sqlitePath(raw, scheme string) string {
	rest := raw[len(scheme)+1:]
	return strings.TrimPrefix(rest, "//")
}
