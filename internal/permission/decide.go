package permission

import (
	"github.com/keelfs/keeld/internal/codes"
)

// authorizeGrant applies §4.7's GRANT precedence rules given the
// capability the requester already holds. It is pure so the precedence
// logic can be unit-tested without a database.
func authorizeGrant(role Role, owner, requester string, requesterHasManageRW bool) error {
	if !role.valid() {
		return codes.New(codes.InvalidBodyValues, "unknown role")
	}
	if role == RoleManager {
		if requester != owner {
			return codes.New(codes.InsufficientPermissions, "granting MANAGER is reserved to the owner")
		}
		return nil
	}
	if requester != owner && !requesterHasManageRW {
		return codes.New(codes.InsufficientPermissions, "MANAGE_RW required to grant this role")
	}
	return nil
}

// decideUpsert applies the precedence check against an existing row (if
// any) found under the row lock, before GRANT/REVOKE proceed.
//
//   - existing == nil: always proceeds.
//   - existing.Role == role (GRANT only; pass role == "" for REVOKE to
//     skip this check): OperationalConflict.
//   - existing.GrantedBy == owner and requester != owner: owner-granted
//     rows can only be overridden or revoked by the owner.
func decideUpsert(existing *PermissionRow, role Role, owner, requester string) error {
	if existing == nil {
		return nil
	}
	if role != "" && existing.Role == role {
		return codes.New(codes.OperationalConflict, "grantee already holds this role")
	}
	if existing.GrantedBy == owner && requester != owner {
		return codes.New(codes.InsufficientPermissions, "owner-granted roles can only be overridden by the owner")
	}
	return nil
}
