package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/wire"
)

func TestLookupEntryMasksInfoVerboseBit(t *testing.T) {
	plain, ok := lookupEntry(wire.CategoryInfo, wire.SubInfoStorageUsage)
	require.True(t, ok)

	verbose, ok := lookupEntry(wire.CategoryInfo, wire.SubInfoStorageUsage|wire.SubInfoVerbose)
	require.True(t, ok)

	assert.Equal(t, plain.Name, verbose.Name)
}

func TestLookupEntryMasksPermissionRoleBits(t *testing.T) {
	managerGrant, ok := lookupEntry(wire.CategoryPermission, wire.SubPermGrant|wire.RoleManager)
	require.True(t, ok)

	readerGrant, ok := lookupEntry(wire.CategoryPermission, wire.SubPermGrant|wire.RoleReader)
	require.True(t, ok)

	assert.Equal(t, "GRANT", managerGrant.Name)
	assert.Equal(t, managerGrant.Name, readerGrant.Name)
}

func TestLookupEntryUnknownSubcategory(t *testing.T) {
	_, ok := lookupEntry(wire.CategoryFileOp, wire.Subcategory(0xFFFF))
	assert.False(t, ok)
}

func TestRoleFromSubcategory(t *testing.T) {
	cases := []struct {
		bit  wire.Subcategory
		role string
	}{
		{wire.RoleManager, "MANAGER"},
		{wire.RoleEditor, "EDITOR"},
		{wire.RoleReader, "READER"},
	}
	for _, c := range cases {
		role, err := roleFromSubcategory(wire.SubPermGrant | c.bit)
		require.NoError(t, err)
		assert.Equal(t, c.role, string(role))
	}

	_, err := roleFromSubcategory(wire.SubPermGrant | wire.RoleOwner)
	assert.Error(t, err, "GRANT never carries the OWNER role bit, that's TRANSFER's job")
}

func TestDispatchHeartbeat(t *testing.T) {
	reg := &Registry{}
	req := &Request{Header: &wire.Header{Category: wire.CategoryHeartbeat}}

	resp := reg.Dispatch(context.Background(), req)
	require.NotNil(t, resp)
	assert.Equal(t, codes.Heartbeat, resp.Code)
}

func TestDispatchInfoHeartbeatEcho(t *testing.T) {
	reg := &Registry{}
	req := &Request{Header: &wire.Header{Category: wire.CategoryInfo, Subcategory: wire.SubInfoHeartbeatEcho}}

	resp := reg.Dispatch(context.Background(), req)
	require.NotNil(t, resp)
	assert.Equal(t, codes.Heartbeat, resp.Code)
}

func TestDispatchUnknownSubcategoryIsUnsupportedOperation(t *testing.T) {
	reg := &Registry{}
	req := &Request{Header: &wire.Header{Category: wire.CategoryFileOp, Subcategory: wire.Subcategory(0xFFFF)}}

	resp := reg.Dispatch(context.Background(), req)
	require.NotNil(t, resp)
	assert.Equal(t, codes.UnsupportedOperation, resp.Code)
}

func TestDispatchRejectsUnauthenticatedFileOp(t *testing.T) {
	reg := &Registry{}
	req := &Request{
		Header: &wire.Header{Category: wire.CategoryFileOp, Subcategory: wire.SubFileRead},
		Auth:   nil,
	}

	resp := reg.Dispatch(context.Background(), req)
	require.NotNil(t, resp)
	assert.Equal(t, codes.InvalidAuthSemantic, resp.Code)
}

func TestFinishTranslatesProtocolError(t *testing.T) {
	reg := &Registry{}
	req := &Request{Header: &wire.Header{Category: wire.CategoryFileOp}}

	resp := reg.finish(context.Background(), req, "READ", nil, codes.New(codes.FileNotFound, "no such file"))
	assert.Equal(t, codes.FileNotFound, resp.Code)
	assert.Equal(t, "no such file", resp.Description)
}

func TestFinishTranslatesUnrecognizedErrorToServerErrorGeneric(t *testing.T) {
	reg := &Registry{}
	req := &Request{Header: &wire.Header{Category: wire.CategoryFileOp}}

	resp := reg.finish(context.Background(), req, "READ", nil, assertAnError{})
	assert.Equal(t, codes.ServerErrorGeneric, resp.Code)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }
