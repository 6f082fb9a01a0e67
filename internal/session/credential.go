package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters per spec.md §4.4/§9: iteration count and digest
// algorithm are pinned so a migrated user database stays hash-compatible.
const (
	pbkdf2Iterations = 100_000
	pbkdf2KeyLength  = 32
	saltLength       = 16
)

var (
	ErrPasswordTooShort = errors.New("session: password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("session: password must be at most 256 characters")
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// ValidatePassword enforces the length bounds from the Auth component
// (§3: password 8-256 chars).
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword derives a PBKDF2-HMAC-SHA256 hash from password with a fresh
// random salt, returning both for storage in users.password_hash/
// password_salt.
func HashPassword(password string) (hash []byte, salt []byte, err error) {
	if err := ValidatePassword(password); err != nil {
		return nil, nil, err
	}
	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("session: generate salt: %w", err)
	}
	hash = derive(password, salt)
	return hash, salt, nil
}

// VerifyPassword recomputes the PBKDF2 digest for password with salt and
// compares it to hash in constant time.
func VerifyPassword(password string, hash, salt []byte) bool {
	candidate := derive(password, salt)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}

func derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
}

// constantTimeEqual compares two byte slices in constant time, treating
// differing lengths as unequal without leaking the actual lengths through
// early return timing beyond what subtle.ConstantTimeCompare already does.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		// Compare against a zero buffer of b's length to keep the
		// comparison cost independent of whether lengths matched.
		subtle.ConstantTimeCompare(make([]byte, len(b)), b)
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// newRandomBytes returns n cryptographically random bytes, used for
// session tokens and refresh digests.
func newRandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("session: generate random bytes: %w", err)
	}
	return buf, nil
}
