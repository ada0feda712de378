package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/mdpublish/internal/model"
)

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore()

	_, err := s.Get(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.Set(ctx, "u2", "b"))
	require.NoError(t, s.Set(ctx, "u1", "a"))
	require.NoError(t, s.Set(ctx, "u1", "c"))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Credential("c"), got)

	uids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.UID{"u1", "u2"}, uids)
}

func TestCursorStore(t *testing.T) {
	ctx := context.Background()
	s := NewCursorStore()

	_, ok, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "u1", "c1"))
	cursor, ok, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c1", cursor)

	require.NoError(t, s.Reset(ctx, "u1"))
	_, ok, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}
