package fileops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/handlecache"
	"github.com/keelfs/keeld/internal/session"
)

// StorageAccountant is the subset of internal/storagecache.Cache's API
// fileops depends on, kept as a local interface so tests can fake it
// without standing up a real LRU/store pair.
type StorageAccountant interface {
	UpdateFileSize(ctx context.Context, username string, delta int64) error
	UpdateFileCount(ctx context.Context, username, filename string, delta int64) error
}

// MetadataLister resolves every (owner, filename) an identity can access;
// implemented by internal/store/filestore. fileops exposes this as
// FilesAccessibleBy to satisfy session.FileLister.
type MetadataLister interface {
	FilesAccessibleBy(identity string) ([]session.FileRef, error)
}

// ColdStore is the subset of internal/coldstore.Store that fileops needs
// to archive a file body off-disk and restore it on a read-miss.
type ColdStore interface {
	Archive(ctx context.Context, owner, filename string, data []byte) error
	Restore(ctx context.Context, owner, filename string) ([]byte, error)
	Delete(ctx context.Context, owner, filename string) error
}

// coldArchiveIdentity is the lock holder fileops uses internally when
// archiving a file on the cold-storage sweep's behalf; it never
// corresponds to a real session.
const coldArchiveIdentity = "__coldstore__"

// archiveMarkerSuffix names the zero-length sidecar file Archive drops
// next to a path once its body has been moved to cold storage; its
// presence is the read path's only local signal that a file needs
// rehydrating before it can be opened.
const archiveMarkerSuffix = ".coldarchive"

// FileOps is the file I/O core singleton (§4.6): per-path locking,
// cursor-cached handles, and the file operations themselves.
type FileOps struct {
	root              string
	contentionTimeout time.Duration
	chunkMax          int

	locks      *lockTable
	tombstones *tombstoneCache
	readers    *handleCache
	amendments *handleCache

	storage    StorageAccountant
	files      MetadataLister
	cold       ColdStore
	checkpoint *handlecache.Checkpoint
}

// New constructs a FileOps rooted at cfg.RootDirectory.
func New(cfg *config.FileConfig, storage StorageAccountant, files MetadataLister) *FileOps {
	return &FileOps{
		root:              cfg.RootDirectory,
		contentionTimeout: cfg.FileContentionTimeout,
		chunkMax:          cfg.ChunkMaxSize,
		locks:             newLockTable(cfg.FileLockTTL),
		tombstones:        newTombstoneCache(cfg.DeletedCacheTTL),
		readers:           newHandleCache(cfg.ReaderCacheTTL),
		amendments:        newHandleCache(cfg.AmendmentCacheTTL),
		storage:           storage,
		files:             files,
	}
}

// SetColdStore wires an optional cold-storage archival mirror in after
// construction, mirroring S3ContentStore.SetCache's late-injection shape
// in the teacher's own content store.
func (f *FileOps) SetColdStore(cold ColdStore) {
	f.cold = cold
}

// SetCheckpoint wires an optional durable cursor checkpoint in after
// construction; every reader/amendment handle cache put and evict mirrors
// to it. Stored cursors are not loaded back into the caches, so a restart
// begins with empty handle caches.
func (f *FileOps) SetCheckpoint(ck *handlecache.Checkpoint) {
	f.checkpoint = ck
}

// cacheKey is the logical path used to key locks, tombstones, and handle
// caches: owner/filename, independent of the root directory.
func cacheKey(owner, filename string) string {
	return owner + "/" + filename
}

func (f *FileOps) fsPath(owner, filename string) string {
	return filepath.Join(f.root, owner, filename)
}

// EnsureUserDirectory creates owner's root directory, called by
// internal/dispatch on REGISTER (§3 Lifecycles: "created by REGISTER
// (makes an owner directory)").
func (f *FileOps) EnsureUserDirectory(owner string) error {
	if err := os.MkdirAll(filepath.Join(f.root, owner), 0o755); err != nil {
		return fmt.Errorf("fileops: ensure user directory: %w", err)
	}
	return nil
}

// CloseHandlesForIdentity closes every cached reader and amendment handle
// held by identity, across all paths — satisfies session.HandleCloser.
func (f *FileOps) CloseHandlesForIdentity(identity string) error {
	f.readers.evictIdentity(identity)
	f.amendments.evictIdentity(identity)
	return nil
}

// FilesAccessibleBy delegates to the metadata store — satisfies
// session.FileLister.
func (f *FileOps) FilesAccessibleBy(identity string) ([]session.FileRef, error) {
	return f.files.FilesAccessibleBy(identity)
}

// StartSweep runs periodic TTL eviction over both handle caches and the
// tombstone cache until ctx is cancelled.
func (f *FileOps) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.readers.sweep()
				f.amendments.sweep()
				f.tombstones.sweep()
			}
		}
	}()
}
