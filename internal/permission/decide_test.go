package permission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keelfs/keeld/internal/codes"
)

func TestAuthorizeGrantManagerReservedToOwner(t *testing.T) {
	err := authorizeGrant(RoleManager, "alice", "bob", true)
	assert.ErrorContains(t, err, "reserved to the owner")

	assert.NoError(t, authorizeGrant(RoleManager, "alice", "alice", false))
}

func TestAuthorizeGrantNonManagerRequiresManageRW(t *testing.T) {
	err := authorizeGrant(RoleReader, "alice", "bob", false)
	var pe *codes.ProtocolError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, codes.InsufficientPermissions, pe.Code)

	assert.NoError(t, authorizeGrant(RoleEditor, "alice", "bob", true))
	assert.NoError(t, authorizeGrant(RoleReader, "alice", "alice", false), "the owner never needs the capability check")
}

func TestAuthorizeGrantRejectsUnknownRole(t *testing.T) {
	err := authorizeGrant(Role("SUPERUSER"), "alice", "alice", true)
	assert.Error(t, err)
}

func TestDecideUpsertNoExistingRowAlwaysProceeds(t *testing.T) {
	assert.NoError(t, decideUpsert(nil, RoleReader, "alice", "bob"))
}

func TestDecideUpsertConflictOnIdenticalRole(t *testing.T) {
	existing := &PermissionRow{Role: RoleEditor, GrantedBy: "alice"}
	err := decideUpsert(existing, RoleEditor, "alice", "alice")
	var pe *codes.ProtocolError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, codes.OperationalConflict, pe.Code)
}

func TestDecideUpsertOwnerGrantedRowsNeedOwnerToOverride(t *testing.T) {
	existing := &PermissionRow{Role: RoleReader, GrantedBy: "alice"}
	err := decideUpsert(existing, RoleEditor, "alice", "carol")
	var pe *codes.ProtocolError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, codes.InsufficientPermissions, pe.Code)

	assert.NoError(t, decideUpsert(existing, RoleEditor, "alice", "alice"))
}

func TestDecideUpsertManagerGrantedRowCanBeOverriddenByAnyManager(t *testing.T) {
	existing := &PermissionRow{Role: RoleReader, GrantedBy: "carol"}
	assert.NoError(t, decideUpsert(existing, RoleEditor, "alice", "dave"))
}

func TestPermissionRowActive(t *testing.T) {
	row := PermissionRow{}
	assert.True(t, row.active(time.Now()), "a nil granted_until is indefinite")

	past := time.Now().Add(-time.Hour)
	row.GrantedUntil = &past
	assert.False(t, row.active(time.Now()))

	future := time.Now().Add(time.Hour)
	row.GrantedUntil = &future
	assert.True(t, row.active(time.Now()))
}
