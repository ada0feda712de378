package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/mdpublish/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "mdpublish.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCredentialRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTestDB(t))

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, repo.Set(ctx, "u1", "first"))
	require.NoError(t, repo.Set(ctx, "u1", "second"))
	require.NoError(t, repo.Set(ctx, "u2", "other"))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Credential("second"), got)

	uids, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.UID{"u1", "u2"}, uids)
}

func TestCursorRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCursorRepository(openTestDB(t))

	_, ok, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "u1", "c1"))
	require.NoError(t, repo.Set(ctx, "u1", "c2"))

	cursor, ok, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c2", cursor)

	require.NoError(t, repo.Reset(ctx, "u1"))
	_, ok, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorRepository_ConcurrentUsers(t *testing.T) {
	ctx := context.Background()
	repo := NewCursorRepository(openTestDB(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := model.UID(fmt.Sprintf("u%d", i))
			for j := 0; j < 5; j++ {
				assert.NoError(t, repo.Set(ctx, uid, fmt.Sprintf("c%d", j)))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		cursor, ok, err := repo.Get(ctx, model.UID(fmt.Sprintf("u%d", i)))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "c4", cursor)
	}
}

func TestRepository_ClosedDatabase(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())

	_, err := NewCredentialRepository(db).Get(context.Background(), "u1")
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)

	err = NewCursorRepository(db).Set(context.Background(), "u1", "c1")
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestCredentialRepository_ListRowFailures(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT uid FROM tokens ORDER BY uid`)

	tests := []struct {
		name string
		rows *sqlmock.Rows
	}{
		{
			name: "scan error",
			rows: sqlmock.NewRows([]string{"uid"}).AddRow(nil),
		},
		{
			name: "iteration error",
			rows: sqlmock.NewRows([]string{"uid"}).AddRow("a").AddRow("b").RowError(1, errors.New("disk I/O error")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			mock.ExpectQuery(query).WillReturnRows(tt.rows)

			uids, err := NewCredentialRepository(db).List(context.Background())
			assert.ErrorIs(t, err, model.ErrStorageUnavailable)
			assert.Nil(t, uids)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDSN(t *testing.T) {
	const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "bare path", path: "/data/app.db", want: "/data/app.db?" + pragmas},
		{name: "path with query", path: "/data/app.db?_pragma=foreign_keys(1)", want: "/data/app.db?_pragma=foreign_keys(1)&" + pragmas},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dsn(tt.path))
		})
	}
}

func TestOpen_PathWithQuery(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "mdpublish.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var foreignKeys int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var journalMode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	require.NoError(t, NewCredentialRepository(db).Set(ctx, "u1", "tok"))
}
