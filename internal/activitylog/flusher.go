package activitylog

import (
	"context"
	"sync"
	"time"

	"github.com/keelfs/keeld/internal/logger"
)

// Flusher batches enqueued entries and flushes them through an Inserter.
// Shaped on the teacher's BackgroundUploader (pkg/flusher/background.go):
// a bounded channel queue, a single background goroutine, and a
// Stop(timeout) that drains synchronously rather than discarding
// in-flight work.
type Flusher struct {
	store Inserter

	batchSize     int
	waitingPeriod time.Duration
	maxRetries    int

	queue     chan Entry
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool
	dropped int
}

// Config mirrors the `[logging]` TOML section fields relevant to the
// flusher (spec.md §6).
type Config struct {
	QueueCapacity int
	BatchSize     int
	WaitingPeriod time.Duration
	MaxRetries    int
}

// New constructs a Flusher bound to store. Call Start to begin flushing
// and Stop to drain on shutdown.
func New(store Inserter, cfg Config) *Flusher {
	return &Flusher{
		store:         store,
		batchSize:     cfg.BatchSize,
		waitingPeriod: cfg.WaitingPeriod,
		maxRetries:    cfg.MaxRetries,
		queue:         make(chan Entry, cfg.QueueCapacity),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
}

// Enqueue adds entry to the queue without blocking. It reports false if
// the queue is full, in which case the entry is dropped and counted.
func (f *Flusher) Enqueue(entry Entry) bool {
	select {
	case f.queue <- entry:
		return true
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		logger.Warn("activity log queue full, dropping entry", logger.Identity(entry.Identity))
		return false
	}
}

// Start begins the background batching loop. Safe to call once.
func (f *Flusher) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	go f.run(ctx)
}

// Stop signals the loop to exit and waits up to timeout while it drains
// the remaining queue through the same flushBatch/InsertBatch path it uses
// for every batch (the lane choice is the Inserter implementation's
// concern).
func (f *Flusher) Stop(timeout time.Duration) {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	close(f.stopCh)
	select {
	case <-f.stoppedCh:
	case <-time.After(timeout):
		logger.Warn("activity log flusher stop timed out")
	}
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.stoppedCh)

	ticker := time.NewTicker(f.waitingPeriod)
	defer ticker.Stop()

	batch := make([]Entry, 0, f.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		f.flushBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-f.stopCh:
			f.drain(ctx, &batch)
			flush()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			flush()
		case entry, ok := <-f.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= f.batchSize {
				flush()
			}
		}
	}
}

// drain pulls every entry currently buffered in the queue into batch
// without blocking, used during shutdown.
func (f *Flusher) drain(ctx context.Context, batch *[]Entry) {
	for {
		select {
		case entry, ok := <-f.queue:
			if !ok {
				return
			}
			*batch = append(*batch, entry)
		default:
			return
		}
	}
}

// flushBatch inserts batch, retrying on any error up to maxRetries times
// before meta-logging and dropping it (spec.md §4.3).
func (f *Flusher) flushBatch(ctx context.Context, batch []Entry) {
	entries := make([]Entry, len(batch))
	copy(entries, batch)

	var err error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		err = f.store.InsertBatch(ctx, entries)
		if err == nil {
			return
		}
		logger.Warn("activity log batch insert failed, retrying",
			logger.Attempt(attempt+1), logger.MaxRetries(f.maxRetries), logger.Err(err))
		time.Sleep(f.waitingPeriod)
	}

	if metaErr := f.store.MetaLog(ctx, err.Error(), len(entries)); metaErr != nil {
		logger.Error("activity log meta-log failed", logger.Err(metaErr))
	}
}
