package dispatch

import (
	"context"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/permission"
	"github.com/keelfs/keeld/internal/wire"
)

// permissionInfo is one row of an INFO/PERMISSION response.
type permissionInfo struct {
	Grantee      string  `json:"grantee"`
	Role         string  `json:"role"`
	GrantedBy    string  `json:"granted_by"`
	GrantedAt    float64 `json:"granted_at"`
	GrantedUntil float64 `json:"granted_until,omitempty"`
}

type permissionInfoBody struct {
	Permissions []permissionInfo `json:"permissions"`
}

type fileMetadataBody struct {
	Owner     string  `json:"owner"`
	Filename  string  `json:"filename"`
	Public    bool    `json:"public"`
	FileSize  int64   `json:"file_size"`
	CreatedAt float64 `json:"created_at"`
}

type userMetadataBody struct {
	Username    string `json:"username"`
	FileCount   int64  `json:"file_count"`
	StorageUsed int64  `json:"storage_used"`
}

type storageUsageBody struct {
	FileCount   int64 `json:"file_count"`
	StorageUsed int64 `json:"storage_used"`
}

type sslCredentialsBody struct {
	Fingerprint string              `json:"fingerprint"`
	Ledger      []tlscredLedgerInfo `json:"ledger,omitempty"`
}

type tlscredLedgerInfo struct {
	OldCertFingerprint string  `json:"old_cert_fingerprint"`
	NewPubKeyHash      string  `json:"new_pubkey_hash"`
	IssuedAt           float64 `json:"issued_at"`
	Reason             string  `json:"reason"`
}

// handleInfoHeartbeatEcho is INFO/HEARTBEAT_ECHO: an unauthenticated liveness
// probe sharing HEARTBEAT's own code, distinct only in category so a client
// can probe liveness through whichever channel it already has open.
func handleInfoHeartbeatEcho(_ context.Context, _ *Registry, _ *Request) (*Response, error) {
	return &Response{Code: codes.Heartbeat}, nil
}

// handleInfoPermission is INFO/PERMISSION: list the active grants on a file,
// gated the same way permission.Engine.ListPermissions gates itself (owner
// or MANAGE_RW).
func handleInfoPermission(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodeInfoBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	rows, err := reg.Perms.ListPermissions(ctx, body.ResourceOwner, body.ResourceName, identity)
	if err != nil {
		return nil, err
	}

	out := make([]permissionInfo, 0, len(rows))
	for _, row := range rows {
		info := permissionInfo{
			Grantee:   row.Grantee,
			Role:      string(row.Role),
			GrantedBy: row.GrantedBy,
			GrantedAt: float64(row.GrantedAt.UnixNano()) / 1e9,
		}
		if row.GrantedUntil != nil {
			info.GrantedUntil = float64(row.GrantedUntil.UnixNano()) / 1e9
		}
		out = append(out, info)
	}
	return &Response{
		Code:     codes.InfoResult,
		Body:     permissionInfoBody{Permissions: out},
		Filename: body.ResourceName,
	}, nil
}

// handleInfoFileMetadata is INFO/FILE_METADATA: owner, public flag, size,
// and creation time for one file. Readable by the owner or anyone holding
// CapRead, matching READ's own gate.
func handleInfoFileMetadata(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodeInfoBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(ctx, reg, body.ResourceOwner, body.ResourceName, identity, permission.CapRead); err != nil {
		return nil, err
	}

	public, size, createdAt, err := reg.Registrar.FileMetadata(ctx, body.ResourceOwner, body.ResourceName)
	if err != nil {
		return nil, err
	}
	return &Response{
		Code: codes.InfoResult,
		Body: fileMetadataBody{
			Owner:     body.ResourceOwner,
			Filename:  body.ResourceName,
			Public:    public,
			FileSize:  size,
			CreatedAt: float64(createdAt.UnixNano()) / 1e9,
		},
		Filename: body.ResourceName,
	}, nil
}

// handleInfoUserMetadata is INFO/USER_METADATA: a user's own file_count and
// storage_used. A caller may only query its own accounting tuple.
func handleInfoUserMetadata(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodeInfoBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	username := body.ResourceUser
	if username == "" {
		username = identity
	}
	if username != identity {
		return nil, codes.New(codes.InsufficientPermissions, "may only query your own storage accounting")
	}

	data, err := reg.Storage.GetStorageData(ctx, username)
	if err != nil {
		return nil, err
	}
	return &Response{Code: codes.InfoResult, Body: userMetadataBody{
		Username:    username,
		FileCount:   data.FileCount,
		StorageUsed: data.StorageUsed,
	}}, nil
}

// handleInfoStorageUsage is INFO/STORAGE_USAGE: same accounting tuple as
// USER_METADATA, kept as its own subcategory per spec.md's query list.
func handleInfoStorageUsage(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	data, err := reg.Storage.GetStorageData(ctx, identity)
	if err != nil {
		return nil, err
	}
	return &Response{Code: codes.InfoResult, Body: storageUsageBody{
		FileCount:   data.FileCount,
		StorageUsed: data.StorageUsed,
	}}, nil
}

// handleInfoSSLCredentials is INFO/SSL_CREDENTIALS: unauthenticated so a
// client can verify the server's certificate fingerprint before it has any
// session. The rollover ledger is included so a client mid-rotation can
// confirm a fingerprint it doesn't recognize against a signed prior entry.
func handleInfoSSLCredentials(_ context.Context, reg *Registry, _ *Request) (*Response, error) {
	fingerprint, err := reg.Creds.Fingerprint()
	if err != nil {
		return nil, err
	}
	ledger, err := reg.Creds.Ledger()
	if err != nil {
		return nil, err
	}
	entries := make([]tlscredLedgerInfo, 0, len(ledger))
	for _, e := range ledger {
		entries = append(entries, tlscredLedgerInfo{
			OldCertFingerprint: e.OldCertFingerprint,
			NewPubKeyHash:      e.NewPubKeyHash,
			IssuedAt:           float64(e.IssuedAt.UnixNano()) / 1e9,
			Reason:             e.Reason,
		})
	}
	return &Response{Code: codes.InfoResult, Body: sslCredentialsBody{
		Fingerprint: fingerprint,
		Ledger:      entries,
	}}, nil
}
