package permission

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Store is the database-facing half of the permission engine, implemented
// by internal/store/filestore. Every method operates within the tx the
// engine already opened on a leased connection, matching the teacher's
// postgresLockStore's *Tx sibling methods (locks.go: putLockTx/getLockTx)
// generalized to a single tx-taking method per operation rather than a
// pool/tx pair, since the engine never calls these outside a transaction.
type Store interface {
	// LockPermissionForUpdate selects the file_permissions row for
	// (owner, filename, grantee) with FOR UPDATE NOWAIT. Returns (nil,
	// nil) if no row exists. Returns ErrRowLocked if the row is locked by
	// another transaction.
	LockPermissionForUpdate(ctx context.Context, tx pgx.Tx, owner, filename, grantee string) (*PermissionRow, error)

	// UpsertPermission inserts or updates the row for (owner, filename,
	// grantee).
	UpsertPermission(ctx context.Context, tx pgx.Tx, row PermissionRow) error

	// DeletePermission removes the row for (owner, filename, grantee).
	DeletePermission(ctx context.Context, tx pgx.Tx, owner, filename, grantee string) error

	// ListPermissions returns every active file_permissions row for
	// (owner, filename).
	ListPermissions(ctx context.Context, tx pgx.Tx, owner, filename string) ([]PermissionRow, error)

	// DeleteAllPermissions removes every file_permissions row for (owner,
	// filename) — used by HIDE.
	DeleteAllPermissions(ctx context.Context, tx pgx.Tx, owner, filename string) error

	// SetPublic updates files.public for (owner, filename).
	SetPublic(ctx context.Context, tx pgx.Tx, owner, filename string, public bool) error

	// LockPermissionsForTransfer row-locks every file_permissions row for
	// (owner, filename) ahead of TRANSFER's re-rooting UPDATE.
	LockPermissionsForTransfer(ctx context.Context, tx pgx.Tx, owner, filename string) error

	// ReownFile re-roots files and file_permissions from
	// (oldOwner, oldFilename) to (newOwner, newFilename).
	ReownFile(ctx context.Context, tx pgx.Tx, oldOwner, oldFilename, newOwner, newFilename string) error

	// HasCapability joins file_permissions with roles to test whether
	// grantee holds an active row granting capability on (owner, filename).
	HasCapability(ctx context.Context, tx pgx.Tx, owner, filename, grantee string, capability Capability) (bool, error)
}

// ErrRowLocked is returned by LockPermissionForUpdate when NOWAIT could
// not acquire the row lock; the engine maps it to codes.OperationContested.
var ErrRowLocked = rowLockedError{}

type rowLockedError struct{}

func (rowLockedError) Error() string { return "permission: row locked by another transaction" }
