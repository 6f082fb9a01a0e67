package storagecache

import "context"

// Store is the persistence seam storagecache depends on, implemented by
// internal/store/controlstore; defined locally to avoid an import cycle,
// the same pattern used by internal/session.Store and
// internal/activitylog.Inserter.
type Store interface {
	// FetchStorageData loads username's current file_count/storage_used
	// from the users table on a cache miss.
	FetchStorageData(ctx context.Context, username string) (fileCount, storageUsed int64, err error)

	// FlushBatch applies every evicted entry's accumulated state to
	// storage in a single LOW-priority transaction: UPDATE users SET
	// file_count=..., storage_used=... per entry. The entries' FileDeltas
	// are not written to files.file_size.
	FlushBatch(ctx context.Context, entries map[string]*StorageData) error
}
