package dispatch

import (
	"context"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/logger"
	"github.com/keelfs/keeld/internal/permission"
	"github.com/keelfs/keeld/internal/wire"
)

// authenticatedIdentity authenticates req.Auth's bearer token and returns
// the caller's identity, the one step every FILE_OP/PERMISSION handler
// needs before touching fileops or the permission engine.
func authenticatedIdentity(reg *Registry, req *Request) (string, error) {
	meta, err := reg.Sessions.AuthenticateSession(req.Auth.Identity, req.Auth.Token)
	if err != nil {
		return "", err
	}
	_ = meta
	return req.Auth.Identity, nil
}

// requireCapability checks owner/capability unless identity already is
// owner, translating a denial into InsufficientPermissions.
func requireCapability(ctx context.Context, reg *Registry, owner, filename, identity string, cap permission.Capability) error {
	if identity == owner {
		return nil
	}
	ok, err := reg.Perms.HasCapability(ctx, owner, filename, identity, cap)
	if err != nil {
		return err
	}
	if !ok {
		return codes.New(codes.InsufficientPermissions, "missing required capability")
	}
	return nil
}

func handleFileCreate(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodeFileBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if body.SubjectFileOwner != identity {
		return nil, codes.New(codes.InsufficientPermissions, "files can only be created under the caller's own namespace")
	}

	if _, _, err := reg.Files.Create(ctx, body.SubjectFileOwner, body.SubjectFile, identity); err != nil {
		return nil, err
	}
	if err := reg.Registrar.RegisterFile(ctx, body.SubjectFileOwner, body.SubjectFile); err != nil {
		logger.ErrorCtx(ctx, "rolling back filesystem create after registry failure", logger.Owner(body.SubjectFileOwner), logger.Filename(body.SubjectFile), logger.Err(err))
		_ = reg.Files.Delete(ctx, body.SubjectFileOwner, body.SubjectFile, identity)
		return nil, err
	}
	return &Response{Code: codes.FileCreated, Filename: body.SubjectFile}, nil
}

func handleFileRead(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodeFileBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(ctx, reg, body.SubjectFileOwner, body.SubjectFile, identity, permission.CapRead); err != nil {
		return nil, err
	}

	cursor := int64(0)
	if body.CursorPosition != nil {
		cursor = *body.CursorPosition
	}
	chunkSize := reg.Config.File.ChunkMaxSize
	if body.ChunkSize != nil {
		chunkSize = *body.ChunkSize
	}

	result, err := reg.Files.Read(ctx, body.SubjectFileOwner, body.SubjectFile, identity, cursor, chunkSize, body.EffectivePurge())
	if err != nil {
		return nil, err
	}

	respBody := &wire.FileBody{
		SubjectFile:      body.SubjectFile,
		SubjectFileOwner: body.SubjectFileOwner,
		CursorPosition:   &result.NewCursor,
		WriteData:        result.Data,
		EndOperation:     result.EOF,
	}
	code := codes.PartialRead
	if result.EOF {
		code = codes.ReadOK
	}
	return &Response{Code: code, Body: respBody, Filename: body.SubjectFile}, nil
}

func handleFileWrite(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	return amendHandler(ctx, reg, req, func(f *amendArgs) (int64, error) {
		cursor := int64(0)
		if f.body.CursorPosition != nil {
			cursor = *f.body.CursorPosition
		}
		return reg.Files.Write(ctx, f.body.SubjectFileOwner, f.body.SubjectFile, f.identity, f.body.WriteData, cursor, f.body.EffectivePurge())
	})
}

func handleFileAppend(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	return amendHandler(ctx, reg, req, func(f *amendArgs) (int64, error) {
		return reg.Files.Append(ctx, f.body.SubjectFileOwner, f.body.SubjectFile, f.identity, f.body.WriteData, f.body.EffectivePurge())
	})
}

func handleFileOverwrite(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	return amendHandler(ctx, reg, req, func(f *amendArgs) (int64, error) {
		return reg.Files.Overwrite(ctx, f.body.SubjectFileOwner, f.body.SubjectFile, f.identity, f.body.WriteData, f.body.EffectivePurge())
	})
}

type amendArgs struct {
	identity string
	body     *wire.FileBody
}

// amendHandler is shared by WRITE/APPEND/OVERWRITE: authenticate, check
// CapWrite, call the operation-specific fileops method, sync files.size,
// and translate the request's end_operation flag into the 0:a/1:amnd
// partial-vs-final response code.
func amendHandler(ctx context.Context, reg *Registry, req *Request, op func(*amendArgs) (int64, error)) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodeFileBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(ctx, reg, body.SubjectFileOwner, body.SubjectFile, identity, permission.CapWrite); err != nil {
		return nil, err
	}

	newCursor, err := op(&amendArgs{identity: identity, body: body})
	if err != nil {
		return nil, err
	}
	if err := reg.Registrar.UpdateFileSize(ctx, body.SubjectFileOwner, body.SubjectFile, newCursor); err != nil {
		logger.ErrorCtx(ctx, "failed to sync file size after amendment", logger.Owner(body.SubjectFileOwner), logger.Filename(body.SubjectFile), logger.Err(err))
	}

	respBody := &wire.FileBody{
		SubjectFile:      body.SubjectFile,
		SubjectFileOwner: body.SubjectFileOwner,
		CursorPosition:   &newCursor,
		EndOperation:     body.EndOperation,
	}
	code := codes.PartialAmend
	if body.EndOperation {
		code = codes.Amended
	}
	return &Response{Code: code, Body: respBody, Filename: body.SubjectFile}, nil
}

func handleFileDelete(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	identity, err := authenticatedIdentity(reg, req)
	if err != nil {
		return nil, err
	}
	body, err := wire.DecodeFileBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	// Deletion is owner-only at this layer (internal/fileops.Delete's own
	// doc comment), deliberately not delegated through the permission
	// engine even for a MANAGER grant.
	if identity != body.SubjectFileOwner {
		return nil, codes.New(codes.InsufficientPermissions, "only the owner may delete a file")
	}
	if err := reg.Files.Delete(ctx, body.SubjectFileOwner, body.SubjectFile, identity); err != nil {
		return nil, err
	}
	if err := reg.Registrar.DeregisterFile(ctx, body.SubjectFileOwner, body.SubjectFile); err != nil {
		logger.ErrorCtx(ctx, "failed to deregister deleted file", logger.Owner(body.SubjectFileOwner), logger.Filename(body.SubjectFile), logger.Err(err))
	}
	return &Response{Code: codes.FileDeleted, Filename: body.SubjectFile}, nil
}
