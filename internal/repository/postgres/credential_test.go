package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/mdpublish/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestCredentialRepository_Get(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT access_token FROM tokens WHERE uid = $1`)

	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		want    model.Credential
		wantErr error
	}{
		{
			name: "found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("u1").
					WillReturnRows(sqlmock.NewRows([]string{"access_token"}).AddRow("tok"))
			},
			want: "tok",
		},
		{
			name: "not found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("u1").WillReturnError(sql.ErrNoRows)
			},
			wantErr: model.ErrNotFound,
		},
		{
			name: "connection failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("u1").WillReturnError(errors.New("connection refused"))
			},
			wantErr: model.ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setup(mock)

			got, err := NewCredentialRepository(db).Get(context.Background(), "u1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCredentialRepository_Set(t *testing.T) {
	query := regexp.QuoteMeta(`INSERT INTO tokens (uid, access_token, created_at, updated_at)`)

	t.Run("upsert", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(query).WithArgs("u1", "tok").WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewCredentialRepository(db).Set(context.Background(), "u1", "tok"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(query).WithArgs("u1", "tok").WillReturnError(errors.New("boom"))

		err := NewCredentialRepository(db).Set(context.Background(), "u1", "tok")
		assert.ErrorIs(t, err, model.ErrStorageUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCredentialRepository_List(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT uid FROM tokens ORDER BY uid`)).
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow("a").AddRow("b"))

	uids, err := NewCredentialRepository(db).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.UID{"a", "b"}, uids)
	assert.NoError(t, mock.ExpectationsWereMet())
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
			rows: sqlmock.NewRows([]string{"uid"}).AddRow("a").AddRow("b").RowError(1, errors.New("connection reset")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectQuery(query).WillReturnRows(tt.rows)

			uids, err := NewCredentialRepository(db).List(context.Background())
			assert.ErrorIs(t, err, model.ErrStorageUnavailable)
			assert.Nil(t, uids)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
