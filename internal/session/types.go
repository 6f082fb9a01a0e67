package session

import "time"

// TokenLength and DigestLength are the byte lengths of bearer tokens and
// refresh digests before hex encoding on the wire.
const (
	TokenLength  = 32
	DigestLength = 32
)

// Metadata is the in-memory record for one identity's live session (§3
// "sessions: identity → SessionMetadata").
type Metadata struct {
	Token         []byte
	RefreshDigest []byte
	Lifespan      time.Duration
	LastRefresh   time.Time
	ValidUntil    time.Time
	Iteration     int
}

// expired reports whether now is past ValidUntil.
func (m *Metadata) expired(now time.Time) bool {
	return now.After(m.ValidUntil)
}

// Store is the persistence contract internal/session depends on; it is
// implemented by internal/store/controlstore and injected at startup per
// the dispatcher's singleton-registry pattern (spec.md §9).
type Store interface {
	// UserExists reports whether username is already registered.
	UserExists(identity string) (bool, error)
	// CreateUser inserts a new users row with the given hash/salt.
	CreateUser(identity string, hash, salt []byte) error
	// PasswordHash returns the stored hash and salt for identity.
	PasswordHash(identity string) (hash, salt []byte, err error)
	// UpdatePasswordHash overwrites identity's stored hash and salt.
	UpdatePasswordHash(identity string, hash, salt []byte) error
	// DeleteUser removes identity's users row.
	DeleteUser(identity string) error
	// IsBanned reports whether identity has an active (unlifted) ban.
	IsBanned(identity string) (bool, error)
	// Ban inserts a ban_logs row for identity.
	Ban(identity, reason, description string) error
	// Unban sets lifted_at on identity's most recent ban_logs row.
	Unban(identity string) error
}

// HandleCloser closes every cached reader/amendment handle for an identity
// across all (path, identity) cache entries; implemented by
// internal/fileops and injected so the session manager can enforce the
// "ban/delete closes cached handles" invariant (§3 Lifecycles) without an
// import cycle.
type HandleCloser interface {
	CloseHandlesForIdentity(identity string) error
}

// FileLister resolves every (file_owner, filename) an identity can access.
// NewManager accepts one, but no Manager method calls it.
type FileLister interface {
	FilesAccessibleBy(identity string) ([]FileRef, error)
}

// FileRef names one file by its (owner, filename) composite key.
type FileRef struct {
	Owner    string
	Filename string
}
