package dispatch

import (
	"context"
	"time"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/permission"
	"github.com/keelfs/keeld/internal/wire"
)

// roleFromSubcategory decodes the role bit a GRANT request ORs onto
// SubPermGrant.
func roleFromSubcategory(sub wire.Subcategory) (permission.Role, error) {
	switch {
	case sub.HasBit(wire.RoleManager):
		return permission.RoleManager, nil
	case sub.HasBit(wire.RoleEditor):
		return permission.RoleEditor, nil
	case sub.HasBit(wire.RoleReader):
		return permission.RoleReader, nil
	default:
		return "", codes.New(codes.InvalidHeaderValues, "GRANT subcategory missing a role bit")
	}
}

func handleGrant(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	role, err := roleFromSubcategory(req.Header.Subcategory)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodePermissionBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if body.SubjectUser == "" {
		return nil, codes.New(codes.InvalidBodyValues, "subject_user is required for GRANT")
	}

	var duration time.Duration
	if body.EffectDuration != nil {
		duration = time.Duration(*body.EffectDuration) * time.Second
	}

	if _, err := reg.Perms.Grant(ctx, body.SubjectFileOwner, body.SubjectFile, identity, body.SubjectUser, role, duration); err != nil {
		return nil, err
	}
	return &Response{Code: codes.Granted, Filename: body.SubjectFile}, nil
}

func handleRevoke(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodePermissionBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if body.SubjectUser == "" {
		return nil, codes.New(codes.InvalidBodyValues, "subject_user is required for REVOKE")
	}
	if _, err := reg.Perms.Revoke(ctx, body.SubjectFileOwner, body.SubjectFile, identity, body.SubjectUser); err != nil {
		return nil, err
	}
	return &Response{Code: codes.Revoked, Filename: body.SubjectFile}, nil
}

func handleHide(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodePermissionBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if _, err := reg.Perms.Hide(ctx, body.SubjectFileOwner, body.SubjectFile, identity); err != nil {
		return nil, err
	}
	return &Response{Code: codes.Hidden, Filename: body.SubjectFile}, nil
}

func handlePublicise(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodePermissionBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if err := reg.Perms.Publicise(ctx, body.SubjectFileOwner, body.SubjectFile, identity); err != nil {
		return nil, err
	}
	return &Response{Code: codes.Publicised, Filename: body.SubjectFile}, nil
}

func handleTransfer(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodePermissionBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if body.SubjectUser == "" {
		return nil, codes.New(codes.InvalidBodyValues, "subject_user (new owner) is required for TRANSFER")
	}
	newFilename, err := reg.Perms.Transfer(ctx, body.SubjectFileOwner, body.SubjectFile, identity, body.SubjectUser)
	if err != nil {
		return nil, err
	}
	return &Response{
		Code:     codes.OwnershipShifted,
		Body:     &wire.FileBody{SubjectFile: newFilename, SubjectFileOwner: body.SubjectUser},
		Filename: newFilename,
	}, nil
}
