package fileops

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelfs/keeld/internal/config"
	"github.com/keelfs/keeld/internal/session"
)

type fakeAccountant struct {
	sizeDeltas map[string]int64
	countDeltas map[string]int64
}

func newFakeAccountant() *fakeAccountant {
	return &fakeAccountant{sizeDeltas: make(map[string]int64), countDeltas: make(map[string]int64)}
}

func (f *fakeAccountant) UpdateFileSize(ctx context.Context, username string, delta int64) error {
	f.sizeDeltas[username] += delta
	return nil
}

func (f *fakeAccountant) UpdateFileCount(ctx context.Context, username, filename string, delta int64) error {
	f.countDeltas[username] += delta
	return nil
}

type fakeLister struct{}

func (fakeLister) FilesAccessibleBy(identity string) ([]session.FileRef, error) { return nil, nil }

func newTestOps(t *testing.T) (*FileOps, *fakeAccountant) {
	t.Helper()
	root := t.TempDir()
	acct := newFakeAccountant()
	cfg := &config.FileConfig{
		RootDirectory:         root,
		ChunkMaxSize:          4096,
		FileContentionTimeout: 100 * time.Millisecond,
		FileLockTTL:           time.Second,
		ReaderCacheTTL:        time.Minute,
		AmendmentCacheTTL:     time.Minute,
		DeletedCacheTTL:       time.Minute,
		TransferTimeout:       time.Second,
		UserMaxFiles:          1000,
		DiskFlushInterval:     time.Minute,
		FlushBatchSize:        10,
		StorageCacheSize:      10,
	}
	return New(cfg, acct, fakeLister{}), acct
}

func TestCreateAndConflict(t *testing.T) {
	ops, acct := newTestOps(t)

	path, createdAt, err := ops.Create(context.Background(), "alice", "notes.txt", "alice")
	require.NoError(t, err)
	assert.False(t, createdAt.IsZero())
	assert.FileExists(t, path)
	assert.Equal(t, int64(1), acct.countDeltas["alice"])

	_, _, err = ops.Create(context.Background(), "alice", "notes.txt", "alice")
	assert.Error(t, err)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ops, _ := newTestOps(t)
	ctx := context.Background()

	_, _, err := ops.Create(ctx, "alice", "notes.txt", "alice")
	require.NoError(t, err)

	n, err := ops.Overwrite(ctx, "alice", "notes.txt", "alice", []byte("hello world"), true)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	result, err := ops.Read(ctx, "alice", "notes.txt", "alice", 0, 5, true)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(result.Data))
	assert.False(t, result.EOF)
	assert.Equal(t, int64(5), result.NewCursor)

	result, err = ops.Read(ctx, "alice", "notes.txt", "alice", 5, 100, true)
	require.NoError(t, err)
	assert.Equal(t, " world", string(result.Data))
	assert.True(t, result.EOF)
}

func TestReadClientCursorWins(t *testing.T) {
	ops, _ := newTestOps(t)
	ctx := context.Background()

	_, _, err := ops.Create(ctx, "alice", "notes.txt", "alice")
	require.NoError(t, err)
	_, err = ops.Overwrite(ctx, "alice", "notes.txt", "alice", []byte("0123456789"), true)
	require.NoError(t, err)

	_, err = ops.Read(ctx, "alice", "notes.txt", "alice", 0, 2, false)
	require.NoError(t, err)

	result, err := ops.Read(ctx, "alice", "notes.txt", "alice", 5, 2, true)
	require.NoError(t, err)
	assert.Equal(t, "56", string(result.Data), "an explicit client cursor must override the cached position")
}

func TestAppendAccumulatesAcrossChunks(t *testing.T) {
	ops, _ := newTestOps(t)
	ctx := context.Background()

	_, _, err := ops.Create(ctx, "alice", "log.txt", "alice")
	require.NoError(t, err)

	_, err = ops.Append(ctx, "alice", "log.txt", "alice", []byte("first-"), false)
	require.NoError(t, err)
	_, err = ops.Append(ctx, "alice", "log.txt", "alice", []byte("second"), true)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(ops.root, "alice", "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first-second", string(content))
}

func TestDeleteTombstonesAndBlocksReuse(t *testing.T) {
	ops, acct := newTestOps(t)
	ctx := context.Background()

	path, _, err := ops.Create(ctx, "alice", "gone.txt", "alice")
	require.NoError(t, err)

	require.NoError(t, ops.Delete(ctx, "alice", "gone.txt", "alice"))
	assert.NoFileExists(t, path)
	assert.Equal(t, int64(0), acct.countDeltas["alice"])

	_, err = ops.Read(ctx, "alice", "gone.txt", "alice", 0, 10, true)
	assert.Error(t, err, "a tombstoned path must fail fast with FileNotFound")
}

func TestTransferFileRenamesAndReportsCollisionName(t *testing.T) {
	ops, _ := newTestOps(t)
	ctx := context.Background()

	_, _, err := ops.Create(ctx, "alice", "shared.txt", "alice")
	require.NoError(t, err)

	newName, err := ops.TransferFile("alice", "bob", "shared.txt")
	require.NoError(t, err)
	assert.Equal(t, "shared.txt", newName)
	assert.FileExists(t, filepath.Join(ops.root, "bob", "shared.txt"))

	_, _, err = ops.Create(ctx, "alice", "dup.txt", "alice")
	require.NoError(t, err)
	_, _, err = ops.Create(ctx, "bob", "dup.txt", "bob")
	require.NoError(t, err)

	newName, err = ops.TransferFile("alice", "bob", "dup.txt")
	require.NoError(t, err)
	assert.NotEqual(t, "dup.txt", newName, "a name collision at the destination must be disambiguated")
}

func TestDeleteDirectoryReturnsPriorFilenames(t *testing.T) {
	ops, _ := newTestOps(t)
	ctx := context.Background()

	_, _, err := ops.Create(ctx, "alice", "a.txt", "alice")
	require.NoError(t, err)
	_, _, err = ops.Create(ctx, "alice", "b.txt", "alice")
	require.NoError(t, err)

	names, err := ops.DeleteDirectory("alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
	assert.NoDirExists(t, filepath.Join(ops.root, "alice"))
}

func TestCloseHandlesForIdentity(t *testing.T) {
	ops, _ := newTestOps(t)
	ctx := context.Background()

	_, _, err := ops.Create(ctx, "alice", "notes.txt", "alice")
	require.NoError(t, err)
	_, err = ops.Overwrite(ctx, "alice", "notes.txt", "alice", []byte("data"), false)
	require.NoError(t, err)

	require.NoError(t, ops.CloseHandlesForIdentity("alice"))

	key := cacheKey("alice", "notes.txt")
	_, cached := ops.amendments.get(key, "alice")
	assert.False(t, cached, "CloseHandlesForIdentity must evict every cached handle for the identity")
}
