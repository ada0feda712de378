package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/mdpublish/internal/model"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		url      string
		wantKind string
		wantErr  error
	}{
		{name: "empty means memory", url: "", wantKind: "memory"},
		{name: "memory", url: "memory://", wantKind: "memory"},
		{name: "mem alias", url: "MEM://", wantKind: "memory"},
		{name: "sqlite url", url: "sqlite://" + filepath.Join(dir, "a.db"), wantKind: "sqlite"},
		{name: "file url", url: "file:" + filepath.Join(dir, "b.db"), wantKind: "sqlite"},
		{name: "unknown scheme", url: "redis://localhost:6379", wantErr: ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := Open(context.Background(), tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = backend.Close() })

			assert.Equal(t, tt.wantKind, backend.Kind)
			assert.NoError(t, backend.Ping(context.Background()))
		})
	}
}

func TestOpen_SQLitePersists(t *testing.T) {
	ctx := context.Background()
	url := "sqlite://" + filepath.Join(t.TempDir(), "state.db")

	backend, err := Open(ctx, url)
	require.NoError(t, err)
	require.NoError(t, backend.Credentials.Set(ctx, "u1", "tok"))
	require.NoError(t, backend.Cursors.Set(ctx, "u1", "c9"))
	require.NoError(t, backend.Close())

	backend, err = Open(ctx, url)
	require.NoError(t, err)
	defer backend.Close()

	cred, err := backend.Credentials.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Credential("tok"), cred)

	cursor, ok, err := backend.Cursors.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c9", cursor)
}

func TestOpen_SQLiteMissingPath(t *testing.T) {
	_, err := Open(context.Background(), "sqlite://")
	assert.Error(t, err)
}
