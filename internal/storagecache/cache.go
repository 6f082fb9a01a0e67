package storagecache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keelfs/keeld/internal/logger"
)

// Cache is the process-wide singleton LRU of username -> StorageData,
// flushing evicted entries write-behind on a timer (spec.md §4.5).
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *StorageData]
	store Store

	flushBatchSize int
	flushInterval  time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool
}

// New constructs a Cache of the given capacity, backed by store.
func New(store Store, capacity, flushBatchSize int, flushInterval time.Duration) (*Cache, error) {
	backing, err := lru.New[string, *StorageData](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{
		lru:            backing,
		store:          store,
		flushBatchSize: flushBatchSize,
		flushInterval:  flushInterval,
		stopCh:         make(chan struct{}),
		stoppedCh:      make(chan struct{}),
	}, nil
}

// GetStorageData returns username's cached tuple, fetching from storage on
// a miss and inserting the result into the LRU.
func (c *Cache) GetStorageData(ctx context.Context, username string) (*StorageData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(ctx, username)
}

func (c *Cache) getLocked(ctx context.Context, username string) (*StorageData, error) {
	if entry, ok := c.lru.Get(username); ok {
		return entry, nil
	}
	fileCount, storageUsed, err := c.store.FetchStorageData(ctx, username)
	if err != nil {
		return nil, err
	}
	entry := newStorageData(fileCount, storageUsed)
	c.lru.Add(username, entry)
	return entry, nil
}

// UpdateFileSize mutates username's in-memory storage_used accumulator by
// delta without touching storage.
func (c *Cache) UpdateFileSize(ctx context.Context, username string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.getLocked(ctx, username)
	if err != nil {
		return err
	}
	entry.StorageUsed += delta
	entry.dirty = true
	return nil
}

// UpdateFileCount mutates username's in-memory file_count by delta and
// adds the same delta to filename's entry in FileDeltas.
func (c *Cache) UpdateFileCount(ctx context.Context, username, filename string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.getLocked(ctx, username)
	if err != nil {
		return err
	}
	entry.FileCount += delta
	entry.FileDeltas[filename] += delta
	entry.dirty = true
	return nil
}

// Start begins the periodic write-behind flush loop.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop halts the flush loop and synchronously flushes every remaining
// entry (spec.md §4.5: "on shutdown the whole cache is flushed
// synchronously").
func (c *Cache) Stop(ctx context.Context) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		c.flushAll(ctx)
		return
	}
	c.mu.Unlock()

	close(c.stopCh)
	<-c.stoppedCh
	c.flushAll(ctx)
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.stoppedCh)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.flushBatch(ctx)
		}
	}
}

// flushBatch evicts up to flushBatchSize LRU entries and flushes them in
// one transaction.
func (c *Cache) flushBatch(ctx context.Context) {
	batch := c.evictBatch(c.flushBatchSize)
	if len(batch) == 0 {
		return
	}
	if err := c.store.FlushBatch(ctx, batch); err != nil {
		logger.Error("storage cache flush failed", logger.Err(err), logger.Evicted(len(batch)))
		return
	}
	logger.Debug("storage cache flushed", logger.Evicted(len(batch)))
}

// flushAll drains the entire cache in one transaction.
func (c *Cache) flushAll(ctx context.Context) {
	batch := c.evictBatch(c.lru.Len())
	if len(batch) == 0 {
		return
	}
	if err := c.store.FlushBatch(ctx, batch); err != nil {
		logger.Error("storage cache shutdown flush failed", logger.Err(err), logger.Evicted(len(batch)))
	}
}

func (c *Cache) evictBatch(n int) map[string]*StorageData {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := make(map[string]*StorageData)
	for i := 0; i < n; i++ {
		username, entry, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		if !entry.dirty {
			continue
		}
		batch[username] = entry.snapshot()
	}
	return batch
}
