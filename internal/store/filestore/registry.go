package filestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/pool"
)

// RegisterFile inserts the files row backing a freshly created file.
// Called by internal/dispatch after internal/fileops.Create succeeds on
// the filesystem, mirroring the teacher's direct-pool-query-for-writes
// convention for single-statement inserts with no read-then-write
// dependency.
func (s *FileStore) RegisterFile(ctx context.Context, owner, filename string) error {
	proxy, err := s.pool.RequestConnection(ctx, pool.Mid, s.lease)
	if err != nil {
		return fmt.Errorf("filestore: lease connection for RegisterFile: %w", err)
	}
	defer s.pool.ReclaimConnection(proxy)

	if _, err := proxy.Exec(ctx, proxy.Token(), `
		INSERT INTO files (owner, filename, public, file_size)
		VALUES ($1, $2, false, 0)
	`, owner, filename); err != nil {
		return fmt.Errorf("filestore: register file %s/%s: %w", owner, filename, err)
	}
	return nil
}

// DeregisterFile removes the files row for (owner, filename); the
// file_permissions ON DELETE CASCADE foreign key takes care of any
// outstanding grants.
func (s *FileStore) DeregisterFile(ctx context.Context, owner, filename string) error {
	proxy, err := s.pool.RequestConnection(ctx, pool.Mid, s.lease)
	if err != nil {
		return fmt.Errorf("filestore: lease connection for DeregisterFile: %w", err)
	}
	defer s.pool.ReclaimConnection(proxy)

	if _, err := proxy.Exec(ctx, proxy.Token(), `
		DELETE FROM files WHERE owner = $1 AND filename = $2
	`, owner, filename); err != nil {
		return fmt.Errorf("filestore: deregister file %s/%s: %w", owner, filename, err)
	}
	return nil
}

// FileMetadata answers INFO/FILE_METADATA: public, current file_size, and
// created_at for one (owner, filename). Returns pgx.ErrNoRows wrapped
// through QueryRow.Scan when the file doesn't exist.
func (s *FileStore) FileMetadata(ctx context.Context, owner, filename string) (public bool, size int64, createdAt time.Time, err error) {
	proxy, err := s.pool.RequestConnection(ctx, pool.Low, s.lease)
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("filestore: lease connection for FileMetadata: %w", err)
	}
	defer s.pool.ReclaimConnection(proxy)

	row, err := proxy.QueryRow(ctx, proxy.Token(), `
		SELECT public, file_size, created_at FROM files WHERE owner = $1 AND filename = $2
	`, owner, filename)
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("filestore: query file metadata %s/%s: %w", owner, filename, err)
	}
	if err := row.Scan(&public, &size, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, 0, time.Time{}, codes.New(codes.FileNotFound, fmt.Sprintf("%s/%s not found", owner, filename))
		}
		return false, 0, time.Time{}, fmt.Errorf("filestore: scan file metadata %s/%s: %w", owner, filename, err)
	}
	return public, size, createdAt, nil
}

// UpdateFileSize overwrites the files.file_size column after a write,
// append, or overwrite changes the underlying file's length on disk.
func (s *FileStore) UpdateFileSize(ctx context.Context, owner, filename string, size int64) error {
	proxy, err := s.pool.RequestConnection(ctx, pool.Mid, s.lease)
	if err != nil {
		return fmt.Errorf("filestore: lease connection for UpdateFileSize: %w", err)
	}
	defer s.pool.ReclaimConnection(proxy)

	if _, err := proxy.Exec(ctx, proxy.Token(), `
		UPDATE files SET file_size = $3 WHERE owner = $1 AND filename = $2
	`, owner, filename, size); err != nil {
		return fmt.Errorf("filestore: update file size %s/%s: %w", owner, filename, err)
	}
	return nil
}
