package client

import (
	"encoding/json"
	"fmt"

	"github.com/keelfs/keeld/internal/wire"
)

// PermissionGrant is one row of an INFO/PERMISSION response.
type PermissionGrant struct {
	Grantee      string  `json:"grantee"`
	Role         string  `json:"role"`
	GrantedBy    string  `json:"granted_by"`
	GrantedAt    float64 `json:"granted_at"`
	GrantedUntil float64 `json:"granted_until,omitempty"`
}

type permissionInfoBody struct {
	Permissions []PermissionGrant `json:"permissions"`
}

// FileMetadata is the decoded body of an INFO/FILE_METADATA response.
type FileMetadata struct {
	Owner     string  `json:"owner"`
	Filename  string  `json:"filename"`
	Public    bool    `json:"public"`
	FileSize  int64   `json:"file_size"`
	CreatedAt float64 `json:"created_at"`
}

// UserMetadata is the decoded body of an INFO/USER_METADATA response.
type UserMetadata struct {
	Username    string `json:"username"`
	FileCount   int64  `json:"file_count"`
	StorageUsed int64  `json:"storage_used"`
}

// StorageUsage is the decoded body of an INFO/STORAGE_USAGE response.
type StorageUsage struct {
	FileCount   int64 `json:"file_count"`
	StorageUsed int64 `json:"storage_used"`
}

// TLSRolloverEntry is one signed entry of the TLS credential rollover
// ledger INFO/SSL_CREDENTIALS returns alongside the live fingerprint.
type TLSRolloverEntry struct {
	OldCertFingerprint string  `json:"old_cert_fingerprint"`
	NewPubKeyHash      string  `json:"new_pubkey_hash"`
	IssuedAt           float64 `json:"issued_at"`
	Reason             string  `json:"reason"`
}

// SSLCredentials is the decoded body of an INFO/SSL_CREDENTIALS response.
type SSLCredentials struct {
	Fingerprint string             `json:"fingerprint"`
	Ledger      []TLSRolloverEntry `json:"ledger,omitempty"`
}

func decodeInfoBody(resp *Response, verb string, out any) error {
	if err := resp.AsError(); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.RawBody, out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", verb, err)
	}
	return nil
}

// InfoPermission is INFO/PERMISSION: lists the active grants on a file.
func (c *Client) InfoPermission(owner, filename string) ([]PermissionGrant, error) {
	resp, err := c.Do(Exchange{
		Category:    wire.CategoryInfo,
		Subcategory: wire.SubInfoPermission,
		Auth:        c.bearerAuth(),
		Body:        wire.InfoBody{ResourceOwner: owner, ResourceName: filename},
	})
	if err != nil {
		return nil, err
	}
	var body permissionInfoBody
	if err := decodeInfoBody(resp, "INFO/PERMISSION", &body); err != nil {
		return nil, err
	}
	return body.Permissions, nil
}

// InfoFileMetadata is INFO/FILE_METADATA.
func (c *Client) InfoFileMetadata(owner, filename string) (*FileMetadata, error) {
	resp, err := c.Do(Exchange{
		Category:    wire.CategoryInfo,
		Subcategory: wire.SubInfoFileMetadata,
		Auth:        c.bearerAuth(),
		Body:        wire.InfoBody{ResourceOwner: owner, ResourceName: filename},
	})
	if err != nil {
		return nil, err
	}
	var body FileMetadata
	if err := decodeInfoBody(resp, "INFO/FILE_METADATA", &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// InfoUserMetadata is INFO/USER_METADATA. A caller may only query its own
// accounting tuple: the server rejects any other identity with
// InsufficientPermissions, and a blank username queries the caller.
func (c *Client) InfoUserMetadata(username string) (*UserMetadata, error) {
	resp, err := c.Do(Exchange{
		Category:    wire.CategoryInfo,
		Subcategory: wire.SubInfoUserMetadata,
		Auth:        c.bearerAuth(),
		Body:        wire.InfoBody{ResourceUser: username},
	})
	if err != nil {
		return nil, err
	}
	var body UserMetadata
	if err := decodeInfoBody(resp, "INFO/USER_METADATA", &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// InfoStorageUsage is INFO/STORAGE_USAGE.
func (c *Client) InfoStorageUsage() (*StorageUsage, error) {
	resp, err := c.Do(Exchange{
		Category:    wire.CategoryInfo,
		Subcategory: wire.SubInfoStorageUsage,
		Auth:        c.bearerAuth(),
	})
	if err != nil {
		return nil, err
	}
	var body StorageUsage
	if err := decodeInfoBody(resp, "INFO/STORAGE_USAGE", &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// InfoSSLCredentials is INFO/SSL_CREDENTIALS: unauthenticated, safe to
// call before any session exists so a caller can confirm the server's
// certificate fingerprint (or look it up in the rollover ledger) before
// trusting it.
func (c *Client) InfoSSLCredentials() (*SSLCredentials, error) {
	resp, err := c.Do(Exchange{Category: wire.CategoryInfo, Subcategory: wire.SubInfoSSLCredentials})
	if err != nil {
		return nil, err
	}
	var body SSLCredentials
	if err := decodeInfoBody(resp, "INFO/SSL_CREDENTIALS", &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// InfoHeartbeatEcho is INFO/HEARTBEAT_ECHO: a liveness probe reachable on
// the INFO category for a caller that already has a session open and
// doesn't want to open a second connection just to send HEARTBEAT.
func (c *Client) InfoHeartbeatEcho() (*Response, error) {
	return c.Do(Exchange{Category: wire.CategoryInfo, Subcategory: wire.SubInfoHeartbeatEcho})
}
