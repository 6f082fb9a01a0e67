package filestore

import (
	"context"
	"fmt"

	"github.com/keelfs/keeld/internal/pool"
	"github.com/keelfs/keeld/internal/session"
)

// FilesAccessibleBy resolves every (owner, filename) identity can reach:
// files it owns, files another owner made public, and files explicitly
// granted to it with an active file_permissions row. It satisfies
// session.FileLister and internal/fileops.MetadataLister; no delete path
// calls it.
//
// Grounded on the teacher's convention (files.go) of running reads as a
// direct pool query rather than opening a transaction, since this is a
// read-only lookup with no cross-statement consistency requirement.
func (s *FileStore) FilesAccessibleBy(identity string) ([]session.FileRef, error) {
	ctx := context.Background()

	proxy, err := s.pool.RequestConnection(ctx, pool.Low, s.lease)
	if err != nil {
		return nil, fmt.Errorf("filestore: lease connection for FilesAccessibleBy: %w", err)
	}
	defer s.pool.ReclaimConnection(proxy)

	rows, err := proxy.Query(ctx, proxy.Token(), `
		SELECT owner, filename FROM files WHERE owner = $1
		UNION
		SELECT owner, filename FROM files WHERE public = true
		UNION
		SELECT fp.file_owner, fp.filename
		FROM file_permissions fp
		WHERE fp.grantee = $1
		  AND (fp.granted_until IS NULL OR fp.granted_until > now())
	`, identity)
	if err != nil {
		return nil, fmt.Errorf("filestore: query files accessible by %q: %w", identity, err)
	}
	defer rows.Close()

	var refs []session.FileRef
	for rows.Next() {
		var ref session.FileRef
		if err := rows.Scan(&ref.Owner, &ref.Filename); err != nil {
			return nil, fmt.Errorf("filestore: scan accessible file row: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filestore: iterate accessible file rows: %w", err)
	}

	return refs, nil
}
