package activitylog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInserter struct {
	mu         sync.Mutex
	batches    [][]Entry
	failNTimes int
	metaLogs   int
}

func (f *fakeInserter) InsertBatch(ctx context.Context, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNTimes > 0 {
		f.failNTimes--
		return errors.New("connection timeout")
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeInserter) MetaLog(ctx context.Context, reason string, dropped int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaLogs++
	return nil
}

func (f *fakeInserter) totalInserted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestFlusherBatchesBySize(t *testing.T) {
	store := &fakeInserter{}
	f := New(store, Config{QueueCapacity: 100, BatchSize: 3, WaitingPeriod: time.Hour, MaxRetries: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	defer f.Stop(time.Second)

	for i := 0; i < 3; i++ {
		f.Enqueue(Entry{Identity: "alice"})
	}

	assert.Eventually(t, func() bool { return store.totalInserted() == 3 }, time.Second, 5*time.Millisecond)
}

func TestFlusherBatchesByWaitingPeriod(t *testing.T) {
	store := &fakeInserter{}
	f := New(store, Config{QueueCapacity: 100, BatchSize: 100, WaitingPeriod: 10 * time.Millisecond, MaxRetries: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	defer f.Stop(time.Second)

	f.Enqueue(Entry{Identity: "bob"})

	assert.Eventually(t, func() bool { return store.totalInserted() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFlusherRetriesThenMetaLogs(t *testing.T) {
	store := &fakeInserter{failNTimes: 5}
	f := New(store, Config{QueueCapacity: 100, BatchSize: 1, WaitingPeriod: time.Millisecond, MaxRetries: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	defer f.Stop(time.Second)

	f.Enqueue(Entry{Identity: "carol"})

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.metaLogs == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, store.totalInserted())
}

func TestFlusherDrainsOnStop(t *testing.T) {
	store := &fakeInserter{}
	f := New(store, Config{QueueCapacity: 100, BatchSize: 100, WaitingPeriod: time.Hour, MaxRetries: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	for i := 0; i < 5; i++ {
		f.Enqueue(Entry{Identity: "dave"})
	}
	f.Stop(time.Second)

	require.Equal(t, 5, store.totalInserted())
}

func TestFlusherEnqueueDropsWhenFull(t *testing.T) {
	store := &fakeInserter{}
	f := New(store, Config{QueueCapacity: 1, BatchSize: 100, WaitingPeriod: time.Hour, MaxRetries: 1})

	assert.True(t, f.Enqueue(Entry{Identity: "eve"}))
	assert.False(t, f.Enqueue(Entry{Identity: "eve"}))
}
