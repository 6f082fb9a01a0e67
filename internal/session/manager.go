// Package session implements the session manager of spec.md §4.4: user
// lifecycle (create/delete/ban), password hashing, and the
// authorize/authenticate/refresh/terminate session state machine with
// replay-detected digest rotation.
package session

import (
	"sync"
	"time"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/logger"
)

const maxDigestHistory = 2

// Manager is the process-wide singleton owning the live session table and
// previous-digest history. Its internal maps are mutated only by the
// single-threaded request scheduler (spec.md §5), so no further locking of
// their contents is required beyond the mutex guarding concurrent map
// access across goroutines when the host runtime isn't purely cooperative.
type Manager struct {
	store   Store
	handles HandleCloser
	files   FileLister

	lifespan time.Duration

	mu       sync.Mutex
	sessions map[string]*Metadata
	digests  map[string][][]byte // identity -> bounded history, most recent last
}

// NewManager constructs a Manager bound to its persistence and
// handle-cleanup collaborators, following the dispatcher's
// bind-singletons-at-startup pattern (spec.md §4.9/§9).
func NewManager(store Store, handles HandleCloser, files FileLister, lifespan time.Duration) *Manager {
	return &Manager{
		store:    store,
		handles:  handles,
		files:    files,
		lifespan: lifespan,
		sessions: make(map[string]*Metadata),
		digests:  make(map[string][][]byte),
	}
}

// CreateUser checks for an existing row under a HIGH-priority connection
// (left to the Store implementation to route) and inserts a freshly hashed
// password. It does not check identity's shape.
func (m *Manager) CreateUser(identity, password string) error {
	exists, err := m.store.UserExists(identity)
	if err != nil {
		return err
	}
	if exists {
		return codes.New(codes.UserAuthenticationError, "username already registered")
	}
	hash, salt, err := HashPassword(password)
	if err != nil {
		return codes.New(codes.InvalidAuthData, err.Error())
	}
	if err := m.store.CreateUser(identity, hash, salt); err != nil {
		return err
	}
	return nil
}

// AuthorizeSession is LOGIN: verify ban status and password, then mint a
// fresh session with a new token and digest.
func (m *Manager) AuthorizeSession(identity, password string) (*Metadata, error) {
	banned, err := m.store.IsBanned(identity)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, codes.New(codes.Banned, "account is banned")
	}

	hash, salt, err := m.store.PasswordHash(identity)
	if err != nil {
		return nil, codes.New(codes.UserAuthenticationError, "unknown identity")
	}
	if !VerifyPassword(password, hash, salt) {
		return nil, codes.New(codes.UserAuthenticationError, "invalid credentials")
	}

	token, err := newRandomBytes(TokenLength)
	if err != nil {
		return nil, err
	}
	digest, err := newRandomBytes(DigestLength)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	meta := &Metadata{
		Token:         token,
		RefreshDigest: digest,
		Lifespan:      m.lifespan,
		LastRefresh:   now,
		ValidUntil:    now.Add(m.lifespan),
		Iteration:     1,
	}

	m.mu.Lock()
	if _, dup := m.sessions[identity]; dup {
		m.mu.Unlock()
		return nil, codes.New(codes.DuplicateLogin, "session already active")
	}
	m.sessions[identity] = meta
	delete(m.digests, identity)
	m.mu.Unlock()

	logger.Info("session authorized", logger.Identity(identity), logger.Iteration(1))
	return meta, nil
}

// AuthenticateSession looks up identity's live session and verifies token
// in constant time, dropping expired sessions on sight.
func (m *Manager) AuthenticateSession(identity string, token []byte) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.sessions[identity]
	if !ok {
		return nil, codes.New(codes.UserAuthenticationError, "no active session")
	}
	now := time.Now()
	if meta.expired(now) {
		delete(m.sessions, identity)
		delete(m.digests, identity)
		return nil, codes.New(codes.ExpiredAuthToken, "session expired")
	}
	if !constantTimeEqual(token, meta.Token) {
		return nil, codes.New(codes.UserAuthenticationError, "invalid token")
	}
	return meta, nil
}

// RefreshSession implements §4.4's replay-detected digest rotation. The
// token never rotates here; only the digest and iteration do.
func (m *Manager) RefreshSession(identity string, token, digest []byte) (newDigest []byte, iteration int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.sessions[identity]
	if !ok {
		return nil, 0, codes.New(codes.UserAuthenticationError, "no active session")
	}
	now := time.Now()
	if meta.expired(now) {
		delete(m.sessions, identity)
		delete(m.digests, identity)
		return nil, 0, codes.New(codes.ExpiredAuthToken, "session expired")
	}
	if !constantTimeEqual(token, meta.Token) {
		return nil, 0, codes.New(codes.UserAuthenticationError, "invalid token")
	}

	notBefore := meta.LastRefresh.Add(meta.Lifespan / 2)
	if now.Before(notBefore) {
		return nil, 0, codes.New(codes.OperationalConflict, "refresh attempted too soon")
	}

	for _, prev := range m.digests[identity] {
		if constantTimeEqual(digest, prev) {
			m.purgeLocked(identity)
			return nil, 0, codes.New(codes.UserAuthenticationError, "expired digest")
		}
	}

	if !constantTimeEqual(digest, meta.RefreshDigest) {
		return nil, 0, codes.New(codes.UserAuthenticationError, "invalid digest")
	}

	fresh, err := newRandomBytes(DigestLength)
	if err != nil {
		return nil, 0, err
	}

	history := append(m.digests[identity], meta.RefreshDigest)
	if len(history) > maxDigestHistory {
		history = history[len(history)-maxDigestHistory:]
	}
	m.digests[identity] = history

	meta.RefreshDigest = fresh
	meta.LastRefresh = now
	meta.ValidUntil = now.Add(meta.Lifespan)
	meta.Iteration++

	return fresh, meta.Iteration, nil
}

// TerminateSession is LOGOUT: constant-time token compare, then drop all
// session state for identity.
func (m *Manager) TerminateSession(identity string, token []byte) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.sessions[identity]
	if !ok {
		return nil, codes.New(codes.UserAuthenticationError, "no active session")
	}
	if !constantTimeEqual(token, meta.Token) {
		return nil, codes.New(codes.UserAuthenticationError, "invalid token")
	}
	m.purgeLocked(identity)
	return meta, nil
}

// ChangePassword rejects a no-op change, updates the stored hash, and
// drops the session to force re-login.
func (m *Manager) ChangePassword(identity, newPassword string) error {
	hash, salt, err := m.store.PasswordHash(identity)
	if err != nil {
		return codes.New(codes.UserAuthenticationError, "unknown identity")
	}
	if VerifyPassword(newPassword, hash, salt) {
		return codes.New(codes.OperationalConflict, "new password matches existing password")
	}
	newHash, newSalt, err := HashPassword(newPassword)
	if err != nil {
		return codes.New(codes.InvalidAuthData, err.Error())
	}
	if err := m.store.UpdatePasswordHash(identity, newHash, newSalt); err != nil {
		return err
	}

	m.mu.Lock()
	m.purgeLocked(identity)
	m.mu.Unlock()
	return nil
}

// DeleteUser verifies credentials, deletes the user row, drops session
// state, and kicks off asynchronous cleanup of cached handles across every
// file the user could access.
func (m *Manager) DeleteUser(identity, password string) error {
	hash, salt, err := m.store.PasswordHash(identity)
	if err != nil {
		return codes.New(codes.UserAuthenticationError, "unknown identity")
	}
	if !VerifyPassword(password, hash, salt) {
		return codes.New(codes.UserAuthenticationError, "invalid credentials")
	}
	if err := m.store.DeleteUser(identity); err != nil {
		return err
	}

	m.mu.Lock()
	m.purgeLocked(identity)
	m.mu.Unlock()

	go m.cleanupHandles(identity)
	return nil
}

// Ban inserts a ban_logs row and forces the same cleanup as deletion.
func (m *Manager) Ban(identity, reason, description string) error {
	if err := m.store.Ban(identity, reason, description); err != nil {
		return err
	}
	m.mu.Lock()
	m.purgeLocked(identity)
	m.mu.Unlock()
	go m.cleanupHandles(identity)
	return nil
}

// Unban lifts identity's ban. It does not restore any session state.
func (m *Manager) Unban(identity string) error {
	return m.store.Unban(identity)
}

// ExpireSessions is the sweep of §4.4, dropping any session whose
// ValidUntil has passed. It runs only when called; no ticker in the server
// invokes it.
func (m *Manager) ExpireSessions() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for identity, meta := range m.sessions {
		if meta.expired(now) {
			m.purgeLocked(identity)
		}
	}
}

// purgeLocked drops identity's session and digest history. Callers must
// hold m.mu.
func (m *Manager) purgeLocked(identity string) {
	delete(m.sessions, identity)
	delete(m.digests, identity)
}

func (m *Manager) cleanupHandles(identity string) {
	if m.handles == nil {
		return
	}
	if err := m.handles.CloseHandlesForIdentity(identity); err != nil {
		logger.Error("failed to close cached handles during cleanup", logger.Identity(identity), logger.Err(err))
	}
}
