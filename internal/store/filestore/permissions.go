package filestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/keelfs/keeld/internal/permission"
)

// lockNotAvailable is Postgres's SQLSTATE for "could not obtain lock on row
// in nowait mode" (55P03), raised by FOR UPDATE NOWAIT when a row is
// already locked by another transaction.
const lockNotAvailable = "55P03"

// LockPermissionForUpdate implements permission.Store. Grounded on
// locks.go's putLockTx/getLockTx shape (a tx-taking sibling method to a
// pool-level one), generalized to NOWAIT row locking per spec.md §4.7's
// "the existing row, if any, is locked FOR UPDATE NOWAIT" requirement.
func (s *FileStore) LockPermissionForUpdate(ctx context.Context, tx pgx.Tx, owner, filename, grantee string) (*permission.PermissionRow, error) {
	row := tx.QueryRow(ctx, `
		SELECT file_owner, filename, grantee, granted_by, role, granted_at, granted_until
		FROM file_permissions
		WHERE file_owner = $1 AND filename = $2 AND grantee = $3
		FOR UPDATE NOWAIT
	`, owner, filename, grantee)

	var r permission.PermissionRow
	err := row.Scan(&r.FileOwner, &r.Filename, &r.Grantee, &r.GrantedBy, &r.Role, &r.GrantedAt, &r.GrantedUntil)
	switch {
	case err == nil:
		return &r, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return nil, permission.ErrRowLocked
		}
		return nil, fmt.Errorf("filestore: lock permission row: %w", err)
	}
}

// UpsertPermission implements permission.Store.
func (s *FileStore) UpsertPermission(ctx context.Context, tx pgx.Tx, row permission.PermissionRow) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO file_permissions (file_owner, filename, grantee, granted_by, role, granted_at, granted_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (file_owner, filename, grantee) DO UPDATE SET
			granted_by    = EXCLUDED.granted_by,
			role          = EXCLUDED.role,
			granted_at    = EXCLUDED.granted_at,
			granted_until = EXCLUDED.granted_until
	`, row.FileOwner, row.Filename, row.Grantee, row.GrantedBy, row.Role, row.GrantedAt, row.GrantedUntil)
	if err != nil {
		return fmt.Errorf("filestore: upsert permission row: %w", err)
	}
	return nil
}

// DeletePermission implements permission.Store.
func (s *FileStore) DeletePermission(ctx context.Context, tx pgx.Tx, owner, filename, grantee string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM file_permissions WHERE file_owner = $1 AND filename = $2 AND grantee = $3
	`, owner, filename, grantee)
	if err != nil {
		return fmt.Errorf("filestore: delete permission row: %w", err)
	}
	return nil
}

// ListPermissions implements permission.Store.
func (s *FileStore) ListPermissions(ctx context.Context, tx pgx.Tx, owner, filename string) ([]permission.PermissionRow, error) {
	rows, err := tx.Query(ctx, `
		SELECT file_owner, filename, grantee, granted_by, role, granted_at, granted_until
		FROM file_permissions
		WHERE file_owner = $1 AND filename = $2
		  AND (granted_until IS NULL OR granted_until > now())
	`, owner, filename)
	if err != nil {
		return nil, fmt.Errorf("filestore: list permissions: %w", err)
	}
	defer rows.Close()

	var out []permission.PermissionRow
	for rows.Next() {
		var r permission.PermissionRow
		if err := rows.Scan(&r.FileOwner, &r.Filename, &r.Grantee, &r.GrantedBy, &r.Role, &r.GrantedAt, &r.GrantedUntil); err != nil {
			return nil, fmt.Errorf("filestore: scan permission row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filestore: iterate permission rows: %w", err)
	}
	return out, nil
}

// DeleteAllPermissions implements permission.Store.
func (s *FileStore) DeleteAllPermissions(ctx context.Context, tx pgx.Tx, owner, filename string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM file_permissions WHERE file_owner = $1 AND filename = $2
	`, owner, filename)
	if err != nil {
		return fmt.Errorf("filestore: delete all permissions: %w", err)
	}
	return nil
}

// SetPublic implements permission.Store.
func (s *FileStore) SetPublic(ctx context.Context, tx pgx.Tx, owner, filename string, public bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE files SET public = $3 WHERE owner = $1 AND filename = $2
	`, owner, filename, public)
	if err != nil {
		return fmt.Errorf("filestore: set public: %w", err)
	}
	return nil
}

// LockPermissionsForTransfer implements permission.Store: locks every
// file_permissions row for (owner, filename) ahead of TRANSFER's re-rooting
// UPDATE, the same NOWAIT discipline as LockPermissionForUpdate but over
// the whole row set rather than one grantee.
func (s *FileStore) LockPermissionsForTransfer(ctx context.Context, tx pgx.Tx, owner, filename string) error {
	rows, err := tx.Query(ctx, `
		SELECT 1 FROM file_permissions
		WHERE file_owner = $1 AND filename = $2
		FOR UPDATE NOWAIT
	`, owner, filename)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return permission.ErrRowLocked
		}
		return fmt.Errorf("filestore: lock permissions for transfer: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return permission.ErrRowLocked
		}
		return fmt.Errorf("filestore: iterate locked transfer rows: %w", err)
	}
	return nil
}

// ReownFile implements permission.Store: re-roots the files row and every
// file_permissions row from (oldOwner, oldFilename) to
// (newOwner, newFilename), both within the tx the engine already holds the
// transfer lock under.
func (s *FileStore) ReownFile(ctx context.Context, tx pgx.Tx, oldOwner, oldFilename, newOwner, newFilename string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE files SET owner = $3, filename = $4 WHERE owner = $1 AND filename = $2
	`, oldOwner, oldFilename, newOwner, newFilename); err != nil {
		return fmt.Errorf("filestore: reown file row: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE file_permissions SET file_owner = $3, filename = $4
		WHERE file_owner = $1 AND filename = $2
	`, oldOwner, oldFilename, newOwner, newFilename); err != nil {
		return fmt.Errorf("filestore: reown permission rows: %w", err)
	}

	return nil
}

// HasCapability implements permission.Store: the file_permissions ⋈ roles
// join of spec.md §4.7, filtered to an active grant.
func (s *FileStore) HasCapability(ctx context.Context, tx pgx.Tx, owner, filename, grantee string, capability permission.Capability) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM file_permissions fp
			JOIN roles r ON r.role = fp.role
			WHERE fp.file_owner = $1
			  AND fp.filename = $2
			  AND fp.grantee = $3
			  AND r.permission = $4
			  AND (fp.granted_until IS NULL OR fp.granted_until > now())
		)
	`, owner, filename, grantee, capability).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("filestore: check capability: %w", err)
	}
	return exists, nil
}
