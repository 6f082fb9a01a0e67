// Package adminapi implements the separate admin HTTP API of spec.md's
// control plane surface: a chi-routed REST API, JWT-authenticated, that
// exposes user/ban administration and a recent-activity feed over the same
// internal/session and internal/store/controlstore singletons the wire
// protocol server uses, distinct from the protocol's own bearer-token
// sessions. Adapted from the teacher's pkg/controlplane/api, trimmed to
// this spec's domain (no shares, groups, or adapter configuration — keeld
// has no protocol adapters to administer).
package adminapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken       = errors.New("adminapi: invalid token")
	ErrExpiredToken       = errors.New("adminapi: token has expired")
	ErrInvalidSecretLength = errors.New("adminapi: JWT secret must be at least 32 characters")
)

// Claims is the JWT payload minted on successful login. keeld has no
// separate admin role today — any identity that can authenticate a wire
// session can reach the admin API — so Claims carries only identity and
// standard registered claims, unlike the teacher's role/group-bearing
// Claims.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// jwtService signs and validates admin API access tokens.
type jwtService struct {
	secret   string
	issuer   string
	lifespan time.Duration
}

func newJWTService(secret string, lifespan time.Duration) (*jwtService, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if lifespan == 0 {
		lifespan = 15 * time.Minute
	}
	return &jwtService{secret: secret, issuer: "keeld-admin", lifespan: lifespan}, nil
}

func (s *jwtService) issue(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.lifespan)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("adminapi: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *jwtService) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
