package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T, path, key string) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(path, key)
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage(t *testing.T) {
	s := setupSQLite(t, filepath.Join(t.TempDir(), "cart.db"), DefaultKey)
	exerciseStorage(t, s)
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	s := setupSQLite(t, ":memory:", DefaultKey)
	exerciseStorage(t, s)
}

func TestSQLiteStorage_UnreachablePath(t *testing.T) {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "missing", "cart.db"), DefaultKey)
	assert.Nil(t, s)
	assert.ErrorContains(t, err, "failed to ping database")
}

func TestSQLiteStorage_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cart.db")

	first, err := NewSQLiteStorage(path, DefaultKey)
	require.NoError(t, err)
	require.NoError(t, first.RunMigrations())
	require.NoError(t, first.Save(ctx, sampleCart()))
	require.NoError(t, first.Close())

	second := setupSQLite(t, path, DefaultKey)
	got, err := second.Load(ctx)
	require.NoError(t, err)
	assertSameCart(t, sampleCart(), got)
}

func TestSQLiteStorage_MigrationsAreRepeatable(t *testing.T) {
	s := setupSQLite(t, filepath.Join(t.TempDir(), "cart.db"), DefaultKey)
	assert.NoError(t, s.RunMigrations())
}

func TestSQLiteStorage_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cart.db")
	a := setupSQLite(t, path, "client-a")
	b := setupSQLite(t, path, "client-b")

	require.NoError(t, a.Save(ctx, sampleCart()))

	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestSQLiteStorage_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	s := setupSQLite(t, filepath.Join(t.TempDir(), "cart.db"), DefaultKey)

	_, err := s.db.ExecContext(ctx, `INSERT INTO cart_state (key, payload) VALUES (?, ?)`, DefaultKey, "{not json")
	require.NoError(t, err)

	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptCart)
}

func TestSQLiteStorage_ContextCancellation(t *testing.T) {
	s := setupSQLite(t, filepath.Join(t.TempDir(), "cart.db"), DefaultKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Load(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCartNotFound)
}
