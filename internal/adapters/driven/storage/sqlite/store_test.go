package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/milo/internal/adapters/driven/storage/storagetest"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T, dir string, dims int) *Store {
	t.Helper()
	store, err := NewStore(dir, dims)
	require.NoError(t, err)
	require.NotNil(t, store)
	return store
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, dims int) driven.VectorStore {
		return setupTestStore(t, t.TempDir(), dims)
	})
}

func TestNewStore_Path(t *testing.T) {
	dir := t.TempDir()
	store := setupTestStore(t, dir, 4)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, "milo.db"), store.Path())
}

func TestMigrations_RunOnce(t *testing.T) {
	dir := t.TempDir()
	first := setupTestStore(t, dir, 4)
	require.NoError(t, first.Close())

	second := setupTestStore(t, dir, 4)
	defer second.Close()

	var n int
	require.NoError(t, second.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSetup_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := setupTestStore(t, dir, 4)
	require.NoError(t, first.Setup(ctx))
	require.NoError(t, first.Close())

	second := setupTestStore(t, dir, 8)
	defer second.Close()

	err := second.Setup(ctx)

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.True(t, domain.IsFatal(err))
}

func TestSetup_ZeroDimensions(t *testing.T) {
	store := setupTestStore(t, t.TempDir(), 0)
	defer store.Close()

	assert.ErrorIs(t, store.Setup(context.Background()), domain.ErrConfiguration)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := setupTestStore(t, dir, storagetest.Dims)
	require.NoError(t, first.Setup(ctx))
	_, err := first.InsertDocument(ctx, storagetest.Doc("a.txt", "one", "two"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := setupTestStore(t, dir, storagetest.Dims)
	defer second.Close()
	require.NoError(t, second.Setup(ctx))

	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClosedStore_Unavailable(t *testing.T) {
	store := setupTestStore(t, t.TempDir(), storagetest.Dims)
	require.NoError(t, store.Setup(context.Background()))
	require.NoError(t, store.Close())

	_, err := store.Search(context.Background(), storagetest.Axis(0), 1)

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestSearch_CorruptMetadata(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, t.TempDir(), storagetest.Dims)
	defer store.Close()
	require.NoError(t, store.Setup(ctx))
	_, err := store.InsertDocument(ctx, storagetest.Doc("a.txt", "one"))
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, "UPDATE documents SET metadata = '{not json'")
	require.NoError(t, err)

	_, err = store.Search(ctx, storagetest.Axis(0), 1)

	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}

	out := bytesToFloat32Slice(float32SliceToBytes(in))

	assert.Equal(t, in, out)
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
