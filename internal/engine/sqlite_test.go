package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wjtools/tua-storage/internal/engine"
)

// newInMemorySQLite creates an in-memory SQLite engine and migrates it.
func newInMemorySQLite(t *testing.T) *engine.SQLite {
	t.Helper()

	s, err := engine.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_Compliance(t *testing.T) {
	runComplianceTests(t, func(t *testing.T) engine.Engine {
		return newInMemorySQLite(t)
	})
}

func TestSQLite_Upsert(t *testing.T) {
	ctx := context.Background()
	s := newInMemorySQLite(t)

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	require.NoError(t, s.Set(ctx, "k", []byte("v2")))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k"}, keys)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))
}

func TestSQLite_NilPayload(t *testing.T) {
	ctx := context.Background()
	s := newInMemorySQLite(t)

	require.NoError(t, s.Set(ctx, "nil", nil))

	got, err := s.Get(ctx, "nil")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSQLite_EmptyKey(t *testing.T) {
	s := newInMemorySQLite(t)

	require.ErrorIs(t, s.Set(context.Background(), "", []byte("v")), engine.ErrEmptyKey)
}

func TestSQLite_Persistence(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "tua.db")

	s1, err := engine.OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "persist-key", []byte("persist-value")))
	require.NoError(t, s1.Close())

	s2, err := engine.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	got, err := s2.Get(ctx, "persist-key")
	require.NoError(t, err)
	require.Equal(t, "persist-value", string(got))
}
