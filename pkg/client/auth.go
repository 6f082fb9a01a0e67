package client

import (
	"encoding/json"
	"fmt"

	"github.com/keelfs/keeld/internal/wire"
)

// Session mirrors internal/dispatch's sessionInfo response payload: the
// live credential LOGIN and REFRESH hand back.
type Session struct {
	Token         wire.HexBytes `json:"token"`
	RefreshDigest wire.HexBytes `json:"refresh_digest"`
	Lifespan      float64       `json:"lifespan"`
	LastRefresh   float64       `json:"last_refresh"`
	ValidUntil    float64       `json:"valid_until"`
	Iteration     int           `json:"iteration"`
}

type sessionEnvelope struct {
	Session *Session `json:"session"`
}

// Heartbeat probes liveness with no auth and no body.
func (c *Client) Heartbeat(finish bool) (*Response, error) {
	return c.Do(Exchange{Category: wire.CategoryHeartbeat, Finish: finish})
}

// Register is AUTH/REGISTER: creates a new user and its owner directory.
func (c *Client) Register(identity, password string) (*Response, error) {
	return c.Do(Exchange{
		Category:    wire.CategoryAuth,
		Subcategory: wire.SubAuthRegister,
		Auth:        &wire.Auth{Identity: identity, Password: password},
	})
}

// Login is AUTH/LOGIN: authenticates and stores the resulting session on
// the client so subsequent calls don't need Token/Identity passed again.
func (c *Client) Login(identity, password string) (*Session, *Response, error) {
	resp, err := c.Do(Exchange{
		Category:    wire.CategoryAuth,
		Subcategory: wire.SubAuthLogin,
		Auth:        &wire.Auth{Identity: identity, Password: password},
	})
	if err != nil {
		return nil, nil, err
	}
	if err := resp.AsError(); err != nil {
		return nil, resp, err
	}
	var env sessionEnvelope
	if err := json.Unmarshal(resp.RawBody, &env); err != nil {
		return nil, resp, fmt.Errorf("client: decode LOGIN response: %w", err)
	}
	c.identity = identity
	c.token = env.Session.Token
	c.digest = env.Session.RefreshDigest
	return env.Session, resp, nil
}

// Refresh is AUTH/REFRESH: rotates the refresh digest using the client's
// stored token and previous digest, replacing them with the new digest on
// success.
func (c *Client) Refresh() (*Session, *Response, error) {
	resp, err := c.Do(Exchange{
		Category:    wire.CategoryAuth,
		Subcategory: wire.SubAuthRefresh,
		Auth:        &wire.Auth{Identity: c.identity, Token: c.token, RefreshDigest: c.digest},
	})
	if err != nil {
		return nil, nil, err
	}
	if err := resp.AsError(); err != nil {
		return nil, resp, err
	}
	var env sessionEnvelope
	if err := json.Unmarshal(resp.RawBody, &env); err != nil {
		return nil, resp, fmt.Errorf("client: decode REFRESH response: %w", err)
	}
	c.digest = env.Session.RefreshDigest
	return env.Session, resp, nil
}

// ChangePassword is AUTH/CHANGE_PASSWORD.
func (c *Client) ChangePassword(newPassword string) (*Response, error) {
	return c.Do(Exchange{
		Category:    wire.CategoryAuth,
		Subcategory: wire.SubAuthChangePassword,
		Auth:        &wire.Auth{Identity: c.identity, Token: c.token},
		Body:        wire.AuthBody{NewPassword: newPassword},
	})
}

// DeleteUser is AUTH/DELETE: re-verifies password, tears down the
// account.
func (c *Client) DeleteUser(password string) (*Response, error) {
	return c.Do(Exchange{
		Category:    wire.CategoryAuth,
		Subcategory: wire.SubAuthDelete,
		Auth:        &wire.Auth{Identity: c.identity, Token: c.token},
		Body:        wire.AuthBody{Password: password},
	})
}

// Logout is AUTH/LOGOUT, optionally closing the connection afterward.
func (c *Client) Logout(finish bool) (*Response, error) {
	return c.Do(Exchange{
		Category:    wire.CategoryAuth,
		Subcategory: wire.SubAuthLogout,
		Auth:        &wire.Auth{Identity: c.identity, Token: c.token},
		Finish:      finish,
	})
}

// Identity returns the identity the last successful Login established.
func (c *Client) Identity() string { return c.identity }

// bearerAuth builds the Auth component every authenticated FILE_OP,
// PERMISSION, and INFO call sends, from the session Login established.
func (c *Client) bearerAuth() *wire.Auth {
	return &wire.Auth{Identity: c.identity, Token: c.token}
}
