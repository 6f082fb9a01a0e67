package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]struct{ hash, salt []byte }
	banned  map[string]bool
	deleted map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]struct{ hash, salt []byte }),
		banned:  make(map[string]bool),
		deleted: make(map[string]bool),
	}
}

func (f *fakeStore) UserExists(identity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[identity]
	return ok, nil
}

func (f *fakeStore) CreateUser(identity string, hash, salt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[identity] = struct{ hash, salt []byte }{hash, salt}
	return nil
}

func (f *fakeStore) PasswordHash(identity string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[identity]
	if !ok {
		return nil, nil, assert.AnError
	}
	return u.hash, u.salt, nil
}

func (f *fakeStore) UpdatePasswordHash(identity string, hash, salt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[identity] = struct{ hash, salt []byte }{hash, salt}
	return nil
}

func (f *fakeStore) DeleteUser(identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, identity)
	f.deleted[identity] = true
	return nil
}

func (f *fakeStore) IsBanned(identity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banned[identity], nil
}

func (f *fakeStore) Ban(identity, reason, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned[identity] = true
	return nil
}

func (f *fakeStore) Unban(identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned[identity] = false
	return nil
}

type fakeHandleCloser struct {
	mu     sync.Mutex
	closed []string
}

func (f *fakeHandleCloser) CloseHandlesForIdentity(identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, identity)
	return nil
}

func newManager(t *testing.T, lifespan time.Duration) (*Manager, *fakeStore, *fakeHandleCloser) {
	t.Helper()
	store := newFakeStore()
	closer := &fakeHandleCloser{}
	return NewManager(store, closer, nil, lifespan), store, closer
}

func TestCreateUser(t *testing.T) {
	mgr, store, _ := newManager(t, time.Hour)

	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	exists, err := store.UserExists("alice")
	require.NoError(t, err)
	assert.True(t, exists)

	err = mgr.CreateUser("alice", "correcthorsebattery")
	assert.Error(t, err)
}

func TestAuthorizeSessionLifecycle(t *testing.T) {
	mgr, _, _ := newManager(t, time.Hour)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))

	meta, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	require.NoError(t, err)
	assert.Len(t, meta.Token, TokenLength)
	assert.Len(t, meta.RefreshDigest, DigestLength)
	assert.Equal(t, 1, meta.Iteration)

	_, err = mgr.AuthorizeSession("alice", "correcthorsebattery")
	assert.Error(t, err, "a second login while a session is live must be rejected")

	_, err = mgr.AuthenticateSession("alice", meta.Token)
	require.NoError(t, err)

	_, err = mgr.AuthenticateSession("alice", []byte("not-the-token"))
	assert.Error(t, err)
}

func TestAuthorizeSessionRejectsWrongPassword(t *testing.T) {
	mgr, _, _ := newManager(t, time.Hour)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))

	_, err := mgr.AuthorizeSession("alice", "wrong-password")
	assert.Error(t, err)
}

func TestAuthorizeSessionRejectsBanned(t *testing.T) {
	mgr, store, _ := newManager(t, time.Hour)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	require.NoError(t, store.Ban("alice", "abuse", "rate limit violation"))

	_, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	assert.Error(t, err)
}

func TestRefreshSessionRotatesDigest(t *testing.T) {
	mgr, _, _ := newManager(t, 10*time.Millisecond)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	meta, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	require.NoError(t, err)

	// Force last_refresh into the past so the not-before window has elapsed.
	mgr.mu.Lock()
	mgr.sessions["alice"].LastRefresh = time.Now().Add(-time.Hour)
	mgr.mu.Unlock()

	firstDigest := meta.RefreshDigest
	newDigest, iteration, err := mgr.RefreshSession("alice", meta.Token, firstDigest)
	require.NoError(t, err)
	assert.Equal(t, 2, iteration)
	assert.NotEqual(t, firstDigest, newDigest)

	// Replaying the now-expired digest must be detected and purge the session.
	_, _, err = mgr.RefreshSession("alice", meta.Token, firstDigest)
	assert.Error(t, err)

	_, err = mgr.AuthenticateSession("alice", meta.Token)
	assert.Error(t, err, "replay detection must drop the session entirely")
}

func TestRefreshSessionEnforcesNotBefore(t *testing.T) {
	mgr, _, _ := newManager(t, time.Hour)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	meta, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	require.NoError(t, err)

	_, _, err = mgr.RefreshSession("alice", meta.Token, meta.RefreshDigest)
	assert.Error(t, err, "refreshing before lifespan/2 has elapsed must be rejected")
}

func TestTerminateSession(t *testing.T) {
	mgr, _, _ := newManager(t, time.Hour)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	meta, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	require.NoError(t, err)

	_, err = mgr.TerminateSession("alice", meta.Token)
	require.NoError(t, err)

	_, err = mgr.AuthenticateSession("alice", meta.Token)
	assert.Error(t, err)
}

func TestChangePasswordRejectsSameHashAndDropsSession(t *testing.T) {
	mgr, _, _ := newManager(t, time.Hour)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	meta, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	require.NoError(t, err)

	err = mgr.ChangePassword("alice", "correcthorsebattery")
	assert.Error(t, err)

	require.NoError(t, mgr.ChangePassword("alice", "a-different-password"))

	_, err = mgr.AuthenticateSession("alice", meta.Token)
	assert.Error(t, err, "changing password must drop the live session")
}

func TestDeleteUserClosesHandles(t *testing.T) {
	mgr, _, closer := newManager(t, time.Hour)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	_, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteUser("alice", "correcthorsebattery"))

	assert.Eventually(t, func() bool {
		closer.mu.Lock()
		defer closer.mu.Unlock()
		return len(closer.closed) == 1 && closer.closed[0] == "alice"
	}, time.Second, 5*time.Millisecond)
}

func TestBanDropsSessionAndClosesHandles(t *testing.T) {
	mgr, _, closer := newManager(t, time.Hour)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	meta, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	require.NoError(t, err)

	require.NoError(t, mgr.Ban("alice", "abuse", "excessive requests"))

	_, err = mgr.AuthenticateSession("alice", meta.Token)
	assert.Error(t, err)

	assert.Eventually(t, func() bool {
		closer.mu.Lock()
		defer closer.mu.Unlock()
		return len(closer.closed) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestExpireSessions(t *testing.T) {
	mgr, _, _ := newManager(t, time.Millisecond)
	require.NoError(t, mgr.CreateUser("alice", "correcthorsebattery"))
	meta, err := mgr.AuthorizeSession("alice", "correcthorsebattery")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	mgr.ExpireSessions()

	_, err = mgr.AuthenticateSession("alice", meta.Token)
	assert.Error(t, err)
}
