// Package filestore is the Postgres-backed implementation of the
// files/file_permissions/roles tables: internal/permission.Store and
// internal/fileops.MetadataLister (exposed together as session.FileLister),
// grounded on the teacher's pkg/metadata/store/postgres query style
// (files.go's direct-pool-query-for-reads convention, locks.go's
// FOR UPDATE NOWAIT pattern) generalized onto internal/pool's leased
// ConnectionProxy instead of an owned *pgxpool.Pool.
package filestore

import (
	"context"
	"time"

	"github.com/keelfs/keeld/internal/pool"
)

// ConnectionLeaser is the subset of *pool.Pool FileStore needs, kept local
// so tests can substitute a fake pool the same way internal/permission
// does for its own ConnectionLeaser.
type ConnectionLeaser interface {
	RequestConnection(ctx context.Context, lane pool.Lane, maxLease time.Duration) (*pool.ConnectionProxy, error)
	ReclaimConnection(proxy *pool.ConnectionProxy)
}

// FileStore is the files/file_permissions/roles persistence layer.
type FileStore struct {
	pool  ConnectionLeaser
	lease time.Duration
}

// New constructs a FileStore. lease bounds every connection it leases for
// its own (non-permission-engine) queries, such as FilesAccessibleBy; zero
// defers to the pool's configured default.
func New(leaser ConnectionLeaser, lease time.Duration) *FileStore {
	return &FileStore{pool: leaser, lease: lease}
}
