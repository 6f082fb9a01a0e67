package storagecache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	seeded  map[string][2]int64
	flushes []map[string]*StorageData
}

func newFakeStore() *fakeStore {
	return &fakeStore{seeded: make(map[string][2]int64)}
}

func (f *fakeStore) FetchStorageData(ctx context.Context, username string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.seeded[username]
	return v[0], v[1], nil
}

func (f *fakeStore) FlushBatch(ctx context.Context, entries map[string]*StorageData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes = append(f.flushes, entries)
	return nil
}

func TestGetStorageDataFetchesOnMiss(t *testing.T) {
	store := newFakeStore()
	store.seeded["alice"] = [2]int64{3, 1024}

	c, err := New(store, 10, 10, time.Hour)
	require.NoError(t, err)

	data, err := c.GetStorageData(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), data.FileCount)
	assert.Equal(t, int64(1024), data.StorageUsed)
}

func TestUpdateFileSizeAndCountAccumulateInMemory(t *testing.T) {
	store := newFakeStore()
	c, err := New(store, 10, 10, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.UpdateFileSize(ctx, "bob", 100))
	require.NoError(t, c.UpdateFileCount(ctx, "bob", "notes.txt", 1))
	require.NoError(t, c.UpdateFileSize(ctx, "bob", 50))

	data, err := c.GetStorageData(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(150), data.StorageUsed)
	assert.Equal(t, int64(1), data.FileCount)
	assert.Equal(t, int64(1), data.FileDeltas["notes.txt"])

	store.mu.Lock()
	flushedYet := len(store.flushes)
	store.mu.Unlock()
	assert.Equal(t, 0, flushedYet, "in-memory updates must not touch storage immediately")
}

func TestFlushBatchOnlyFlushesDirtyEntries(t *testing.T) {
	store := newFakeStore()
	c, err := New(store, 10, 10, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.GetStorageData(ctx, "clean") // read-only, never dirtied
	require.NoError(t, err)
	require.NoError(t, c.UpdateFileSize(ctx, "dirty", 10))

	batch := c.evictBatch(10)
	assert.Len(t, batch, 1)
	_, ok := batch["dirty"]
	assert.True(t, ok)
}

func TestStopFlushesSynchronously(t *testing.T) {
	store := newFakeStore()
	c, err := New(store, 10, 10, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.UpdateFileSize(ctx, "carol", 200))

	c.Stop(ctx)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.flushes, 1)
	assert.Equal(t, int64(200), store.flushes[0]["carol"].StorageUsed)
}
