package dispatch

import (
	"context"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/logger"
	"github.com/keelfs/keeld/internal/wire"
)

// sessionPayload is the AUTH response body shape shown in spec.md's S1
// scenario: `{session:{token, refresh_digest, lifespan, last_refresh,
// valid_until, iteration}}`.
type sessionPayload struct {
	Session *sessionInfo `json:"session"`
}

type sessionInfo struct {
	Token         wire.HexBytes `json:"token"`
	RefreshDigest wire.HexBytes `json:"refresh_digest"`
	Lifespan      float64       `json:"lifespan"`
	LastRefresh   float64       `json:"last_refresh"`
	ValidUntil    float64       `json:"valid_until"`
	Iteration     int           `json:"iteration"`
}

// handleRegister is AUTH/REGISTER: create the user row and its owner
// directory (§3 Lifecycles).
func handleRegister(_ context.Context, reg *Registry, req *Request) (*Response, error) {
	if req.Auth == nil || !req.Auth.IsAuthorization() {
		return nil, codes.New(codes.InvalidAuthSemantic, "REGISTER requires identity+password")
	}
	if err := req.Auth.Validate(); err != nil {
		return nil, codes.New(codes.InvalidAuthData, err.Error())
	}
	if err := reg.Sessions.CreateUser(req.Auth.Identity, req.Auth.Password); err != nil {
		return nil, err
	}
	if err := reg.Files.EnsureUserDirectory(req.Auth.Identity); err != nil {
		return nil, err
	}
	return &Response{Code: codes.UserNew}, nil
}

// handleLogin is AUTH/LOGIN: verify credentials, mint a session.
func handleLogin(_ context.Context, reg *Registry, req *Request) (*Response, error) {
	if req.Auth == nil || !req.Auth.IsAuthorization() {
		return nil, codes.New(codes.InvalidAuthSemantic, "LOGIN requires identity+password")
	}
	meta, err := reg.Sessions.AuthorizeSession(req.Auth.Identity, req.Auth.Password)
	if err != nil {
		return nil, err
	}
	return &Response{Code: codes.Authenticated, Body: sessionPayload{Session: &sessionInfo{
		Token:         meta.Token,
		RefreshDigest: meta.RefreshDigest,
		Lifespan:      meta.Lifespan.Seconds(),
		LastRefresh:   float64(meta.LastRefresh.UnixNano()) / 1e9,
		ValidUntil:    float64(meta.ValidUntil.UnixNano()) / 1e9,
		Iteration:     meta.Iteration,
	}}}, nil
}

// handleRefresh is AUTH/REFRESH: replay-detected digest rotation. Needs
// both a token and a refresh_digest, so IsAuthentication alone (token
// only) isn't sufficient — validated explicitly here rather than via the
// routing table's generic NeedsAuth gate.
func handleRefresh(_ context.Context, reg *Registry, req *Request) (*Response, error) {
	if req.Auth == nil || len(req.Auth.RefreshDigest) == 0 {
		return nil, codes.New(codes.InvalidAuthSemantic, "REFRESH requires token+refresh_digest")
	}
	digest, iteration, err := reg.Sessions.RefreshSession(req.Auth.Identity, req.Auth.Token, req.Auth.RefreshDigest)
	if err != nil {
		return nil, err
	}
	return &Response{Code: codes.Refreshed, Body: sessionPayload{Session: &sessionInfo{
		RefreshDigest: digest,
		Iteration:     iteration,
	}}}, nil
}

// handleChangePassword is AUTH/CHANGE_PASSWORD: authenticated via bearer
// token, new password carried in an AuthBody.
func handleChangePassword(_ context.Context, reg *Registry, req *Request) (*Response, error) {
	if _, err := reg.Sessions.AuthenticateSession(req.Auth.Identity, req.Auth.Token); err != nil {
		return nil, err
	}
	body, err := wire.DecodeAuthBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if err := reg.Sessions.ChangePassword(req.Auth.Identity, body.NewPassword); err != nil {
		return nil, err
	}
	return &Response{Code: codes.PasswordChanged}, nil
}

// handleDeleteUser is AUTH/DELETE: verify credentials (AuthBody carries
// the password alongside the bearer token, since Auth's password/token
// fields are mutually exclusive), then tear down the user's row, session,
// filesystem directory, and every files/file_permissions row it owned.
func handleDeleteUser(ctx context.Context, reg *Registry, req *Request) (*Response, error) {
	if _, err := reg.Sessions.AuthenticateSession(req.Auth.Identity, req.Auth.Token); err != nil {
		return nil, err
	}
	body, err := wire.DecodeAuthBody(req.RawBody)
	if err != nil {
		return nil, err
	}
	if err := reg.Sessions.DeleteUser(req.Auth.Identity, body.Password); err != nil {
		return nil, err
	}

	filenames, err := reg.Files.DeleteDirectory(req.Auth.Identity)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to remove deleted user's directory", logger.Identity(req.Auth.Identity), logger.Err(err))
	}
	for _, filename := range filenames {
		if err := reg.Registrar.DeregisterFile(ctx, req.Auth.Identity, filename); err != nil {
			logger.ErrorCtx(ctx, "failed to deregister file for deleted user", logger.Identity(req.Auth.Identity), logger.Filename(filename), logger.Err(err))
		}
	}
	return &Response{Code: codes.UserDeleted}, nil
}

// handleLogout is AUTH/LOGOUT.
func handleLogout(_ context.Context, reg *Registry, req *Request) (*Response, error) {
	if _, err := reg.Sessions.TerminateSession(req.Auth.Identity, req.Auth.Token); err != nil {
		return nil, err
	}
	return &Response{Code: codes.SessionClosed}, nil
}
