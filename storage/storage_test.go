package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlight/engine"
)

func newTestManager(t *testing.T, fsys afero.Fs) *Manager {
	t.Helper()
	suffix := uuid.New().String()
	m := NewManager(Config{
		MemoryName: "test-memory-" + suffix,
		PoolName:   "test-pool-" + suffix,
		PoolFs:     fsys,
		PoolDir:    "/pool",
	})
	t.Cleanup(func() { m.Close() })
	return m
}

func execScript(t *testing.T, uri, sql string) {
	t.Helper()
	db, err := engine.Open(uri)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Exec(sql))
}

func queryCount(t *testing.T, uri string) engine.Value {
	t.Helper()
	db, err := engine.Open(uri)
	require.NoError(t, err)
	defer db.Close()
	results, err := db.Prepare("SELECT count(*) FROM t").RunToCompletion()
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0].Step.Values.Rows[0][0]
}

func TestMemoryExportImport(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())
	execScript(t, m.URI("a.db", false), "CREATE TABLE t(x); INSERT INTO t VALUES (1), (2);")

	assert.True(t, m.Memory().Exists("a.db"))
	data, err := m.Export("a.db", false)
	require.NoError(t, err)
	assert.Equal(t, imageMagic, string(data[:len(imageMagic)]))

	require.NoError(t, m.Import("b.db", false, data))
	assert.Equal(t, engine.Integer(2), queryCount(t, m.URI("b.db", false)))

	require.NoError(t, m.Delete("a.db", false))
	assert.False(t, m.Memory().Exists("a.db"))
	_, err = m.Export("a.db", false)
	assert.ErrorIs(t, err, ErrFileNotFound)

	// Deleting a missing file is not an error.
	require.NoError(t, m.Delete("a.db", false))
}

func TestImportRejectsGarbage(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())
	err := m.Import("a.db", false, []byte("definitely not a database"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestPrepareImageDowngradesWAL(t *testing.T) {
	data := make([]byte, imageHeaderLen)
	copy(data, imageMagic)
	data[imageWriteVersion] = 2
	data[imageReadVersion] = 2

	image, err := prepareImage(data)
	require.NoError(t, err)
	assert.Equal(t, byte(1), image[imageWriteVersion])
	assert.Equal(t, byte(1), image[imageReadVersion])
	assert.Equal(t, byte(2), data[imageWriteVersion], "input must not be modified")
}

func TestPoolBeforeInstall(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())

	_, err := m.Pool()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.Export("a.db", true)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, m.Delete("a.db", true), ErrNotInitialized)
}

func TestPoolStoresDatabases(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m := newTestManager(t, fsys)
	ctx := context.Background()

	require.NoError(t, m.PrepareOpen(ctx, true))
	pool, err := m.Pool()
	require.NoError(t, err)
	assert.Equal(t, DefaultInitialCapacity, pool.Capacity())

	execScript(t, m.URI("test.db", true), "CREATE TABLE t(x); INSERT INTO t VALUES (1), (2), (3);")
	assert.Equal(t, 1, pool.FileCount(), "journal slot must be released after commit")

	files, err := pool.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/test.db", files[0].Path)
	assert.Positive(t, files[0].Size)

	data, err := m.Export("test.db", true)
	require.NoError(t, err)
	assert.Equal(t, files[0].Size, int64(len(data)))

	// The pool survives a restart on the same directory.
	require.NoError(t, m.Close())
	reopened := newTestManager(t, fsys)
	require.NoError(t, reopened.PrepareOpen(ctx, true))
	assert.Equal(t, engine.Integer(3), queryCount(t, reopened.URI("test.db", true)))
}

func TestPrepareOpenGrowsNearCapacity(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())
	ctx := context.Background()

	pool, err := m.InstallPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, pool.Capacity())

	execScript(t, m.URI("seed.db", false), "CREATE TABLE t(x);")
	image, err := m.Export("seed.db", false)
	require.NoError(t, err)
	require.NoError(t, pool.Import("a.db", image))
	assert.Equal(t, 1, pool.FileCount())

	// 6 - 1*3 >= 3: no growth.
	require.NoError(t, m.PrepareOpen(ctx, true))
	assert.Equal(t, 6, pool.Capacity())

	// 6 - 2*3 < 3: grows by three.
	require.NoError(t, pool.Import("b.db", image))
	require.NoError(t, m.PrepareOpen(ctx, true))
	assert.Equal(t, 9, pool.Capacity())
}

func TestPoolCapacityLimits(t *testing.T) {
	ctx := context.Background()
	pool, err := OpenPool(ctx, afero.NewMemMapFs(), "/pool", 2, nil)
	require.NoError(t, err)
	defer pool.Close()

	data := make([]byte, imageHeaderLen)
	copy(data, imageMagic)
	require.NoError(t, pool.Import("a.db", data))
	require.NoError(t, pool.Import("b.db", data))
	assert.ErrorIs(t, pool.Import("c.db", data), ErrNoFreeSlot)

	removed, err := pool.ReduceCapacity(5)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "occupied slots are never removed")

	existed, err := pool.Unlink("a.db")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = pool.Unlink("a.db")
	require.NoError(t, err)
	assert.False(t, existed)

	removed, err = pool.ReduceCapacity(5)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, pool.Capacity())
	assert.Equal(t, 1, pool.FileCount())
}

func TestPoolDirectoryClaim(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	first, err := OpenPool(ctx, fsys, "/pool", 1, nil)
	require.NoError(t, err)

	_, err = OpenPool(ctx, fsys, "/pool", 1, nil)
	assert.ErrorIs(t, err, ErrBackendOpened)

	require.NoError(t, first.Close())
	second, err := OpenPool(ctx, fsys, "/pool", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Capacity())
	require.NoError(t, second.Close())
}

func TestInstallPoolConcurrent(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())

	var wg sync.WaitGroup
	pools := make([]*PoolVFS, 8)
	errs := make([]error, 8)
	for i := range pools {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			pools[i], errs[i] = m.InstallPool(context.Background())
		}()
	}
	wg.Wait()

	for i := range pools {
		require.NoError(t, errs[i])
		assert.Same(t, pools[0], pools[i])
	}
}
