// Package storagecache implements the storage-accounting cache of spec.md
// §4.5: an LRU username -> StorageData cache with write-behind flush of
// evicted entries.
package storagecache

// StorageData is one user's cached accounting tuple: total file count,
// total bytes used, and unflushed per-file size deltas recorded since the
// last flush.
type StorageData struct {
	FileCount   int64
	StorageUsed int64

	// FileDeltas accumulates unflushed per-file count changes (filename ->
	// signed delta) recorded by UpdateFileCount; flush does not write them
	// to files.file_size.
	FileDeltas map[string]int64

	dirty bool
}

func newStorageData(fileCount, storageUsed int64) *StorageData {
	return &StorageData{
		FileCount:   fileCount,
		StorageUsed: storageUsed,
		FileDeltas:  make(map[string]int64),
	}
}

// snapshot returns a deep copy safe to hand to a flush goroutine.
func (s *StorageData) snapshot() *StorageData {
	cp := &StorageData{FileCount: s.FileCount, StorageUsed: s.StorageUsed, FileDeltas: make(map[string]int64, len(s.FileDeltas))}
	for k, v := range s.FileDeltas {
		cp.FileDeltas[k] = v
	}
	return cp
}
