package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/pool"
)

// ConnectionLeaser is the subset of *pool.Pool the engine needs, kept
// local so engine_e2e_test.go can still run against a real *pool.Pool
// while the precedence logic (decide.go) is unit-tested independently of
// any database.
type ConnectionLeaser interface {
	RequestConnection(ctx context.Context, lane pool.Lane, maxLease time.Duration) (*pool.ConnectionProxy, error)
	ReclaimConnection(proxy *pool.ConnectionProxy)
}

// FileMover is the subset of internal/fileops.FileOps that TRANSFER needs,
// kept local to avoid importing fileops directly (same DI pattern as
// internal/session.HandleCloser).
type FileMover interface {
	TransferFile(oldOwner, newOwner, filename string) (newFilename string, err error)
	RollbackTransfer(newOwner, newFilename, oldOwner, oldFilename string) error
}

// Engine is the permission engine singleton of spec.md §4.7.
type Engine struct {
	pool  ConnectionLeaser
	store Store
	files FileMover
	lease time.Duration
}

// New constructs an Engine. lease bounds every connection this engine
// leases; zero defers to the pool's configured default.
func New(leaser ConnectionLeaser, store Store, files FileMover, lease time.Duration) *Engine {
	return &Engine{pool: leaser, store: store, files: files, lease: lease}
}

// HasCapability is the shared capability check of §4.7: a join of
// file_permissions with roles, filtered on an active grant. The owner
// always holds every capability without a row existing.
func (e *Engine) HasCapability(ctx context.Context, owner, filename, grantee string, capability Capability) (bool, error) {
	if grantee == owner {
		return true, nil
	}

	proxy, err := e.pool.RequestConnection(ctx, pool.Mid, e.lease)
	if err != nil {
		return false, err
	}
	defer e.pool.ReclaimConnection(proxy)

	tx, err := proxy.Begin(ctx, proxy.Token())
	if err != nil {
		return false, fmt.Errorf("permission: begin capability check: %w", err)
	}
	defer tx.Rollback(ctx)

	return e.store.HasCapability(ctx, tx, owner, filename, grantee, capability)
}

// Grant implements GRANT(role): precedence check, then an atomic
// SELECT...FOR UPDATE NOWAIT / upsert under a MID connection.
func (e *Engine) Grant(ctx context.Context, owner, filename, requester, grantee string, role Role, effectDuration time.Duration) (*PermissionRow, error) {
	hasManageRW, err := e.HasCapability(ctx, owner, filename, requester, CapManageRW)
	if err != nil {
		return nil, err
	}
	if err := authorizeGrant(role, owner, requester, hasManageRW); err != nil {
		return nil, err
	}

	proxy, err := e.pool.RequestConnection(ctx, pool.Mid, e.lease)
	if err != nil {
		return nil, err
	}
	defer e.pool.ReclaimConnection(proxy)

	tx, err := proxy.Begin(ctx, proxy.Token())
	if err != nil {
		return nil, fmt.Errorf("permission: begin grant: %w", err)
	}

	existing, err := e.store.LockPermissionForUpdate(ctx, tx, owner, filename, grantee)
	if err != nil {
		tx.Rollback(ctx)
		if errors.Is(err, ErrRowLocked) {
			return nil, codes.New(codes.OperationContested, "permission row is locked by another operation")
		}
		return nil, fmt.Errorf("permission: lock row for grant: %w", err)
	}

	if err := decideUpsert(existing, role, owner, requester); err != nil {
		tx.Rollback(ctx)
		return nil, err
	}

	now := time.Now()
	var until *time.Time
	if effectDuration > 0 {
		t := now.Add(effectDuration)
		until = &t
	}

	row := PermissionRow{
		FileOwner:    owner,
		Filename:     filename,
		Grantee:      grantee,
		Role:         role,
		GrantedBy:    requester,
		GrantedAt:    now,
		GrantedUntil: until,
	}
	if err := e.store.UpsertPermission(ctx, tx, row); err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("permission: upsert grant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, codes.New(codes.DatabaseFailure, fmt.Sprintf("commit grant: %v", err))
	}
	return &row, nil
}

// Revoke implements REVOKE: same precedence and lock discipline as Grant,
// deleting the row and returning it.
func (e *Engine) Revoke(ctx context.Context, owner, filename, requester, grantee string) (*PermissionRow, error) {
	hasManageRW, err := e.HasCapability(ctx, owner, filename, requester, CapManageRW)
	if err != nil {
		return nil, err
	}

	proxy, err := e.pool.RequestConnection(ctx, pool.Mid, e.lease)
	if err != nil {
		return nil, err
	}
	defer e.pool.ReclaimConnection(proxy)

	tx, err := proxy.Begin(ctx, proxy.Token())
	if err != nil {
		return nil, fmt.Errorf("permission: begin revoke: %w", err)
	}

	existing, err := e.store.LockPermissionForUpdate(ctx, tx, owner, filename, grantee)
	if err != nil {
		tx.Rollback(ctx)
		if errors.Is(err, ErrRowLocked) {
			return nil, codes.New(codes.OperationContested, "permission row is locked by another operation")
		}
		return nil, fmt.Errorf("permission: lock row for revoke: %w", err)
	}
	if existing == nil {
		tx.Rollback(ctx)
		return nil, codes.New(codes.FileNotFound, "no permission row to revoke")
	}
	if requester != owner && !hasManageRW {
		tx.Rollback(ctx)
		return nil, codes.New(codes.InsufficientPermissions, "MANAGE_RW required to revoke this role")
	}
	if err := decideUpsert(existing, "", owner, requester); err != nil {
		tx.Rollback(ctx)
		return nil, err
	}

	if err := e.store.DeletePermission(ctx, tx, owner, filename, grantee); err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("permission: delete on revoke: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, codes.New(codes.DatabaseFailure, fmt.Sprintf("commit revoke: %v", err))
	}
	return existing, nil
}

// Publicise implements PUBLICISE: owner-only, UPDATE files.public under a
// HIGH connection.
func (e *Engine) Publicise(ctx context.Context, owner, filename, requester string) error {
	return e.setPublic(ctx, owner, filename, requester, true)
}

// Hide implements HIDE: owner-only; UPDATE files.public=false, then
// DELETE and return every file_permissions row for the file.
func (e *Engine) Hide(ctx context.Context, owner, filename, requester string) ([]PermissionRow, error) {
	if requester != owner {
		return nil, codes.New(codes.InsufficientPermissions, "only the owner may hide a file")
	}

	proxy, err := e.pool.RequestConnection(ctx, pool.High, e.lease)
	if err != nil {
		return nil, err
	}
	defer e.pool.ReclaimConnection(proxy)

	tx, err := proxy.Begin(ctx, proxy.Token())
	if err != nil {
		return nil, fmt.Errorf("permission: begin hide: %w", err)
	}

	if err := e.store.SetPublic(ctx, tx, owner, filename, false); err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("permission: set public false: %w", err)
	}
	revoked, err := e.store.ListPermissions(ctx, tx, owner, filename)
	if err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("permission: list before hide: %w", err)
	}
	if err := e.store.DeleteAllPermissions(ctx, tx, owner, filename); err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("permission: delete all on hide: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, codes.New(codes.DatabaseFailure, fmt.Sprintf("commit hide: %v", err))
	}
	return revoked, nil
}

func (e *Engine) setPublic(ctx context.Context, owner, filename, requester string, public bool) error {
	if requester != owner {
		return codes.New(codes.InsufficientPermissions, "only the owner may change publicity")
	}

	proxy, err := e.pool.RequestConnection(ctx, pool.High, e.lease)
	if err != nil {
		return err
	}
	defer e.pool.ReclaimConnection(proxy)

	tx, err := proxy.Begin(ctx, proxy.Token())
	if err != nil {
		return fmt.Errorf("permission: begin set public: %w", err)
	}
	if err := e.store.SetPublic(ctx, tx, owner, filename, public); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("permission: set public: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return codes.New(codes.DatabaseFailure, fmt.Sprintf("commit set public: %v", err))
	}
	return nil
}

// ListPermissions implements INFO/PERMISSION: only the owner or a grantee
// holding MANAGE_RW may enumerate a file's active grants.
func (e *Engine) ListPermissions(ctx context.Context, owner, filename, requester string) ([]PermissionRow, error) {
	if requester != owner {
		hasManageRW, err := e.HasCapability(ctx, owner, filename, requester, CapManageRW)
		if err != nil {
			return nil, err
		}
		if !hasManageRW {
			return nil, codes.New(codes.InsufficientPermissions, "MANAGE_RW required to list permissions")
		}
	}

	proxy, err := e.pool.RequestConnection(ctx, pool.Mid, e.lease)
	if err != nil {
		return nil, err
	}
	defer e.pool.ReclaimConnection(proxy)

	tx, err := proxy.Begin(ctx, proxy.Token())
	if err != nil {
		return nil, fmt.Errorf("permission: begin list: %w", err)
	}
	defer tx.Rollback(ctx)

	return e.store.ListPermissions(ctx, tx, owner, filename)
}

// Transfer implements TRANSFER (ownership): owner-only, subject cannot be
// owner. Verify under a LOW connection with a row lock, physically move
// the file, re-root the DB rows, commit; roll the file back on a DB
// failure after a successful move.
func (e *Engine) Transfer(ctx context.Context, owner, filename, requester, newOwner string) (newFilename string, err error) {
	if requester != owner {
		return "", codes.New(codes.InsufficientPermissions, "only the owner may transfer a file")
	}
	if newOwner == owner {
		return "", codes.New(codes.InvalidBodyValues, "transfer target cannot be the current owner")
	}

	proxy, err := e.pool.RequestConnection(ctx, pool.Low, e.lease)
	if err != nil {
		return "", err
	}
	defer e.pool.ReclaimConnection(proxy)

	tx, err := proxy.Begin(ctx, proxy.Token())
	if err != nil {
		return "", fmt.Errorf("permission: begin transfer: %w", err)
	}

	if err := e.store.LockPermissionsForTransfer(ctx, tx, owner, filename); err != nil {
		tx.Rollback(ctx)
		if errors.Is(err, ErrRowLocked) {
			return "", codes.New(codes.OperationContested, "file permissions are locked by another operation")
		}
		return "", fmt.Errorf("permission: lock rows for transfer: %w", err)
	}

	movedName, moveErr := e.files.TransferFile(owner, newOwner, filename)
	if moveErr != nil {
		tx.Rollback(ctx)
		return "", moveErr
	}

	if err := e.store.ReownFile(ctx, tx, owner, filename, newOwner, movedName); err != nil {
		tx.Rollback(ctx)
		if rbErr := e.files.RollbackTransfer(newOwner, movedName, owner, filename); rbErr != nil {
			return "", fmt.Errorf("permission: reown failed (%v) and rollback failed: %w", err, rbErr)
		}
		return "", codes.New(codes.DatabaseFailure, fmt.Sprintf("reown after transfer: %v", err))
	}

	if err := tx.Commit(ctx); err != nil {
		if rbErr := e.files.RollbackTransfer(newOwner, movedName, owner, filename); rbErr != nil {
			return "", fmt.Errorf("permission: commit failed (%v) and rollback failed: %w", err, rbErr)
		}
		return "", codes.New(codes.DatabaseFailure, fmt.Sprintf("commit transfer: %v", err))
	}

	return movedName, nil
}
