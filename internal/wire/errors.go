package wire

import "errors"

var (
	errInvalidIdentity     = errors.New("wire: identity must be 4-64 chars, letter-led, alnum/._- only")
	errPasswordXorToken    = errors.New("wire: exactly one of password or token must be present")
	errPasswordLength      = errors.New("wire: password must be 8-256 chars")
	errDigestRequiresToken = errors.New("wire: refresh_digest requires token")
)
