package controlstore

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/keelfs/keeld/internal/activitylog"
	"github.com/keelfs/keeld/internal/storagecache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewWithDB(db)
	require.NoError(t, err)
	return store
}

func TestCreateUserAndPasswordHash(t *testing.T) {
	s := newTestStore(t)

	exists, err := s.UserExists("alice")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreateUser("alice", []byte("hash"), []byte("salt")))

	exists, err = s.UserExists("alice")
	require.NoError(t, err)
	assert.True(t, exists)

	hash, salt, err := s.PasswordHash("alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("hash"), hash)
	assert.Equal(t, []byte("salt"), salt)

	require.NoError(t, s.UpdatePasswordHash("alice", []byte("hash2"), []byte("salt2")))
	hash, salt, err = s.PasswordHash("alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("hash2"), hash)
	assert.Equal(t, []byte("salt2"), salt)

	require.NoError(t, s.DeleteUser("alice"))
	exists, err = s.UserExists("alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBanAndUnban(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateUser("bob", []byte("h"), []byte("s")))

	banned, err := s.IsBanned("bob")
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, s.Ban("bob", "abuse", "spammed other users"))
	banned, err = s.IsBanned("bob")
	require.NoError(t, err)
	assert.True(t, banned)

	require.NoError(t, s.Unban("bob"))
	banned, err = s.IsBanned("bob")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestActivityLogInsertBatchAndMetaLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []activitylog.Entry{
		{Identity: "alice", Category: "FILE_OP", Subcategory: "CREATE", Code: "1:fnew", Filename: "a.txt", OccurredAt: time.Now()},
		{Identity: "alice", Category: "FILE_OP", Subcategory: "READ", Code: "1:read", Filename: "a.txt", OccurredAt: time.Now()},
	}
	require.NoError(t, s.InsertBatch(ctx, entries))

	var count int64
	require.NoError(t, s.db.Model(&ActivityLogRow{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	require.NoError(t, s.MetaLog(ctx, "queue full", 5))
	require.NoError(t, s.db.Model(&ActivityLogMetaRow{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestStorageDataFetchAndFlush(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser("carol", []byte("h"), []byte("s")))

	count, used, err := s.FetchStorageData(ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, used)

	require.NoError(t, s.FlushBatch(ctx, map[string]*storagecache.StorageData{
		"carol": {FileCount: 3, StorageUsed: 1024},
	}))

	count, used, err = s.FetchStorageData(ctx, "carol")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
	assert.EqualValues(t, 1024, used)
}
