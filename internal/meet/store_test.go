package meet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	m, err := s.Create(ctx, "owner")
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)
	require.Equal(t, m.Creator, got.Creator)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meets.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	m, err := s.Create(ctx, "owner")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// the record survives a reopen
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m.Creator, got.Creator)
	require.Equal(t, m.CreatedAt.Unix(), got.CreatedAt.Unix())

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
