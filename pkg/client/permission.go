package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keelfs/keeld/internal/wire"
)

// Role names the three grantable capability levels, mirroring
// internal/permission.Role.
type Role string

const (
	RoleReader  Role = "reader"
	RoleEditor  Role = "editor"
	RoleManager Role = "manager"
)

func (r Role) bit() wire.Subcategory {
	switch r {
	case RoleManager:
		return wire.RoleManager
	case RoleEditor:
		return wire.RoleEditor
	default:
		return wire.RoleReader
	}
}

// Grant is PERMISSION/GRANT, ORing the role bit onto the subcategory.
// duration of zero means no expiry.
func (c *Client) Grant(owner, filename, subjectUser string, role Role, duration time.Duration) (*Response, error) {
	body := wire.PermissionBody{SubjectFile: filename, SubjectFileOwner: owner, SubjectUser: subjectUser}
	if duration > 0 {
		seconds := int64(duration / time.Second)
		body.EffectDuration = &seconds
	}
	return c.Do(Exchange{
		Category:    wire.CategoryPermission,
		Subcategory: wire.SubPermGrant | role.bit(),
		Auth:        c.bearerAuth(),
		Body:        body,
	})
}

// Revoke is PERMISSION/REVOKE.
func (c *Client) Revoke(owner, filename, subjectUser string) (*Response, error) {
	return c.Do(Exchange{
		Category:    wire.CategoryPermission,
		Subcategory: wire.SubPermRevoke,
		Auth:        c.bearerAuth(),
		Body:        wire.PermissionBody{SubjectFile: filename, SubjectFileOwner: owner, SubjectUser: subjectUser},
	})
}

// Hide is PERMISSION/HIDE: withdraws a file's public visibility.
func (c *Client) Hide(owner, filename string) (*Response, error) {
	return c.Do(Exchange{
		Category:    wire.CategoryPermission,
		Subcategory: wire.SubPermHide,
		Auth:        c.bearerAuth(),
		Body:        wire.PermissionBody{SubjectFile: filename, SubjectFileOwner: owner},
	})
}

// Publicise is PERMISSION/PUBLICISE: grants implicit read access to every
// identity.
func (c *Client) Publicise(owner, filename string) (*Response, error) {
	return c.Do(Exchange{
		Category:    wire.CategoryPermission,
		Subcategory: wire.SubPermPublicise,
		Auth:        c.bearerAuth(),
		Body:        wire.PermissionBody{SubjectFile: filename, SubjectFileOwner: owner},
	})
}

// TransferResult is the decoded file body a successful TRANSFER returns:
// the file's new owner-qualified location.
type TransferResult struct {
	NewFilename string
	NewOwner    string
}

// Transfer is PERMISSION/TRANSFER: reassigns ownership of a file to
// newOwner.
func (c *Client) Transfer(owner, filename, newOwner string) (*TransferResult, error) {
	resp, err := c.Do(Exchange{
		Category:    wire.CategoryPermission,
		Subcategory: wire.SubPermTransfer,
		Auth:        c.bearerAuth(),
		Body:        wire.PermissionBody{SubjectFile: filename, SubjectFileOwner: owner, SubjectUser: newOwner},
	})
	if err != nil {
		return nil, err
	}
	if err := resp.AsError(); err != nil {
		return nil, err
	}
	var body wire.FileBody
	if err := json.Unmarshal(resp.RawBody, &body); err != nil {
		return nil, fmt.Errorf("client: decode TRANSFER response: %w", err)
	}
	return &TransferResult{NewFilename: body.SubjectFile, NewOwner: body.SubjectFileOwner}, nil
}
