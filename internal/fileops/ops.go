package fileops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/keelfs/keeld/internal/codes"
)

// Mode selects the open discipline for an amendment operation.
type Mode int

const (
	ModeWrite Mode = iota
	ModeAppend
	ModeOverwrite
)

// checkpointStore mirrors a live handle's cursor to the durable checkpoint
// store, if one is configured. Failures are discarded without logging; a
// missed checkpoint write never loses file data, so it's best-effort here.
func (f *FileOps) checkpointStore(key, identity string, cursor int64) {
	if f.checkpoint == nil {
		return
	}
	_ = f.checkpoint.Store(key, identity, cursor)
}

func (f *FileOps) checkpointDelete(key, identity string) {
	if f.checkpoint == nil {
		return
	}
	_ = f.checkpoint.Delete(key, identity)
}

func (f *FileOps) guard(owner, filename, identity string) (key string, release func(), err error) {
	key = cacheKey(owner, filename)
	if f.tombstones.contains(key) {
		return "", nil, codes.New(codes.FileNotFound, "file was just deleted")
	}
	if err := f.locks.acquire(key, identity, f.contentionTimeout); err != nil {
		return "", nil, err
	}
	return key, func() { f.locks.release(key, identity) }, nil
}

// Create makes the owner's directory if missing and exclusively creates
// the file, returning its absolute path and creation time.
func (f *FileOps) Create(ctx context.Context, owner, filename, identity string) (string, time.Time, error) {
	_, release, err := f.guard(owner, filename, identity)
	if err != nil {
		return "", time.Time{}, err
	}
	defer release()

	path := f.fsPath(owner, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", time.Time{}, fmt.Errorf("fileops: create owner directory: %w", err)
	}

	fh, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", time.Time{}, codes.New(codes.FileConflict, "file already exists")
		}
		return "", time.Time{}, fmt.Errorf("fileops: create file: %w", err)
	}
	defer fh.Close()

	now := time.Now()
	if f.storage != nil {
		_ = f.storage.UpdateFileCount(ctx, owner, filename, 1)
	}
	return path, now, nil
}

// ReadResult is the outcome of a Read call.
type ReadResult struct {
	Data      []byte
	NewCursor int64
	EOF       bool
}

// Read implements §4.6's read path: client-supplied cursor wins over a
// cached one, EOF is determined by peeking one extra byte and seeking
// back, and the handle is cached only when it's new, eviction wasn't
// requested, and EOF wasn't reached.
func (f *FileOps) Read(ctx context.Context, owner, filename, identity string, cursor int64, chunkSize int, purge bool) (*ReadResult, error) {
	key, release, err := f.guard(owner, filename, identity)
	if err != nil {
		return nil, err
	}
	defer release()

	if chunkSize <= 0 || chunkSize > f.chunkMax {
		return nil, codes.New(codes.InvalidBodyValues, "chunk_size out of range")
	}

	cached, wasCached := f.readers.get(key, identity)
	var fh *os.File
	if wasCached {
		fh = cached.file
		if cached.cursor != cursor {
			if _, err := fh.Seek(cursor, io.SeekStart); err != nil {
				return nil, fmt.Errorf("fileops: seek cached reader: %w", err)
			}
		}
	} else {
		path := f.fsPath(owner, filename)
		if f.cold != nil {
			if _, statErr := os.Stat(path + archiveMarkerSuffix); statErr == nil {
				if err := f.rehydrate(ctx, owner, filename); err != nil {
					return nil, err
				}
			}
		}
		fh, err = os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, codes.New(codes.FileNotFound, "file does not exist")
			}
			return nil, fmt.Errorf("fileops: open for read: %w", err)
		}
		if _, err := fh.Seek(cursor, io.SeekStart); err != nil {
			fh.Close()
			return nil, fmt.Errorf("fileops: seek: %w", err)
		}
	}

	buf := make([]byte, chunkSize)
	n, readErr := io.ReadFull(fh, buf)
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		if !wasCached {
			fh.Close()
		}
		return nil, fmt.Errorf("fileops: read: %w", readErr)
	}
	data := buf[:n]

	peek := make([]byte, 1)
	pn, _ := fh.Read(peek)
	eof := pn == 0
	if !eof {
		if _, err := fh.Seek(-1, io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("fileops: seek back after peek: %w", err)
		}
	}

	newCursor := cursor + int64(n)

	switch {
	case purge:
		fh.Close()
		if wasCached {
			f.readers.evict(key, identity)
		}
		f.checkpointDelete(key, identity)
	case wasCached:
		cached.cursor = newCursor
		cached.lastUsed = time.Now()
		f.checkpointStore(key, identity, newCursor)
	case !eof:
		f.readers.put(key, identity, &handle{file: fh, cursor: newCursor})
		f.checkpointStore(key, identity, newCursor)
	default:
		fh.Close()
	}

	return &ReadResult{Data: data, NewCursor: newCursor, EOF: eof}, nil
}

// amend is the shared body of Write/Append/Overwrite.
func (f *FileOps) amend(ctx context.Context, owner, filename, identity string, data []byte, cursor int64, purge bool, mode Mode) (int64, error) {
	key, release, err := f.guard(owner, filename, identity)
	if err != nil {
		return 0, err
	}
	defer release()

	cached, wasCached := f.amendments.get(key, identity)
	var fh *os.File
	var sizeBefore int64

	if wasCached && mode != ModeOverwrite {
		fh = cached.file
		if mode == ModeWrite && cached.cursor != cursor {
			if _, err := fh.Seek(cursor, io.SeekStart); err != nil {
				return 0, fmt.Errorf("fileops: seek cached amendment handle: %w", err)
			}
		}
	} else {
		if wasCached {
			cached.file.Close()
			f.amendments.evict(key, identity)
			wasCached = false
		}
		path := f.fsPath(owner, filename)
		flags := os.O_WRONLY
		switch mode {
		case ModeOverwrite:
			flags |= os.O_CREATE | os.O_TRUNC
		case ModeAppend:
			flags |= os.O_CREATE | os.O_APPEND
		default:
			flags |= os.O_CREATE
		}
		if info, statErr := os.Stat(path); statErr == nil {
			sizeBefore = info.Size()
		}
		fh, err = os.OpenFile(path, flags, 0o644)
		if err != nil {
			return 0, fmt.Errorf("fileops: open for amendment: %w", err)
		}
		if mode == ModeWrite {
			if _, err := fh.Seek(cursor, io.SeekStart); err != nil {
				fh.Close()
				return 0, fmt.Errorf("fileops: seek: %w", err)
			}
		}
	}

	n, err := fh.Write(data)
	if err != nil {
		if !wasCached {
			fh.Close()
		}
		return 0, fmt.Errorf("fileops: write: %w", err)
	}

	var newCursor int64
	if mode == ModeAppend {
		pos, _ := fh.Seek(0, io.SeekCurrent)
		newCursor = pos
	} else {
		newCursor = cursor + int64(n)
	}

	switch {
	case purge:
		fh.Close()
		if wasCached {
			f.amendments.evict(key, identity)
		}
		f.checkpointDelete(key, identity)
	case wasCached:
		cached.cursor = newCursor
		cached.lastUsed = time.Now()
		f.checkpointStore(key, identity, newCursor)
	default:
		f.amendments.put(key, identity, &handle{file: fh, cursor: newCursor})
		f.checkpointStore(key, identity, newCursor)
	}

	if f.storage != nil {
		delta := int64(n)
		if mode == ModeOverwrite {
			if info, statErr := os.Stat(f.fsPath(owner, filename)); statErr == nil {
				delta = info.Size() - sizeBefore
			}
		}
		_ = f.storage.UpdateFileSize(ctx, owner, delta)
	}

	return newCursor, nil
}

// Write seeks to cursor before writing (WRITE subcategory).
func (f *FileOps) Write(ctx context.Context, owner, filename, identity string, data []byte, cursor int64, purge bool) (int64, error) {
	return f.amend(ctx, owner, filename, identity, data, cursor, purge, ModeWrite)
}

// Append opens in append mode with no explicit seek.
func (f *FileOps) Append(ctx context.Context, owner, filename, identity string, data []byte, purge bool) (int64, error) {
	return f.amend(ctx, owner, filename, identity, data, 0, purge, ModeAppend)
}

// Overwrite truncates the file at open.
func (f *FileOps) Overwrite(ctx context.Context, owner, filename, identity string, data []byte, purge bool) (int64, error) {
	return f.amend(ctx, owner, filename, identity, data, 0, purge, ModeOverwrite)
}

// Delete is owner-only at the caller layer (internal/dispatch checks
// identity == owner before calling this). It barriers the lock, removes
// the file, tombstones the path, and closes every cached handle for it.
func (f *FileOps) Delete(ctx context.Context, owner, filename, identity string) error {
	key := cacheKey(owner, filename)
	if f.tombstones.contains(key) {
		return codes.New(codes.FileNotFound, "file was just deleted")
	}
	if err := f.locks.acquire(key, identity, f.contentionTimeout); err != nil {
		return err
	}

	f.locks.barrier(key)
	f.tombstones.mark(key)

	path := f.fsPath(owner, filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fileops: remove: %w", err)
	}
	if err := os.Remove(path + archiveMarkerSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fileops: remove archive marker: %w", err)
	}
	if f.cold != nil {
		if err := f.cold.Delete(ctx, owner, filename); err != nil {
			return fmt.Errorf("fileops: delete from cold storage: %w", err)
		}
	}

	f.readers.evictPath(key)
	f.amendments.evictPath(key)
	if f.checkpoint != nil {
		_ = f.checkpoint.DeletePath(key)
	}

	if f.storage != nil {
		_ = f.storage.UpdateFileCount(ctx, owner, filename, -1)
	}
	return nil
}

// TransferFile renames root/oldOwner/filename to root/newOwner/filename,
// creating the target directory if missing. On a name collision at the
// destination a UUID fragment is prefixed and the new name reported.
func (f *FileOps) TransferFile(oldOwner, newOwner, filename string) (newFilename string, err error) {
	srcPath := f.fsPath(oldOwner, filename)
	destDir := filepath.Join(f.root, newOwner)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("fileops: create destination directory: %w", err)
	}

	newFilename = filename
	destPath := filepath.Join(destDir, newFilename)
	if _, err := os.Stat(destPath); err == nil {
		newFilename = fmt.Sprintf("%s-%s", uuid.NewString()[:8], filename)
		destPath = filepath.Join(destDir, newFilename)
	}

	if err := os.Rename(srcPath, destPath); err != nil {
		return "", fmt.Errorf("fileops: rename: %w", err)
	}
	return newFilename, nil
}

// RollbackTransfer moves a file back to its original owner/name after a
// DB commit failure following a successful physical move (§4.7 TRANSFER).
func (f *FileOps) RollbackTransfer(newOwner, newFilename, oldOwner, oldFilename string) error {
	src := f.fsPath(newOwner, newFilename)
	destDir := filepath.Join(f.root, oldOwner)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("fileops: recreate original directory: %w", err)
	}
	dest := filepath.Join(destDir, oldFilename)
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("fileops: rollback rename: %w", err)
	}
	return nil
}

// rehydrate pulls an archived body back from cold storage onto disk and
// removes its marker, so the caller's subsequent os.Open succeeds.
func (f *FileOps) rehydrate(ctx context.Context, owner, filename string) error {
	data, err := f.cold.Restore(ctx, owner, filename)
	if err != nil {
		return fmt.Errorf("fileops: restore from cold storage: %w", err)
	}
	path := f.fsPath(owner, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("fileops: write rehydrated file: %w", err)
	}
	if err := os.Remove(path + archiveMarkerSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fileops: remove archive marker: %w", err)
	}
	return nil
}

// ArchiveCandidate is one (owner, filename) pair ArchiveEligible reports
// as old enough to move to cold storage.
type ArchiveCandidate struct {
	Owner    string
	Filename string
	ModTime  time.Time
}

// ArchiveEligible walks the root directory and returns every file whose
// modification time is older than cutoff and that isn't already archived
// or mid-flight as an archive marker itself, for internal/coldstore's
// periodic sweep to act on.
func (f *FileOps) ArchiveEligible(cutoff time.Time) ([]ArchiveCandidate, error) {
	owners, err := os.ReadDir(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fileops: read root directory: %w", err)
	}

	var candidates []ArchiveCandidate
	for _, ownerEntry := range owners {
		if !ownerEntry.IsDir() {
			continue
		}
		owner := ownerEntry.Name()
		files, err := os.ReadDir(filepath.Join(f.root, owner))
		if err != nil {
			continue
		}
		for _, fileEntry := range files {
			name := fileEntry.Name()
			if fileEntry.IsDir() || filepath.Ext(name) == archiveMarkerSuffix {
				continue
			}
			if _, err := os.Stat(filepath.Join(f.root, owner, name+archiveMarkerSuffix)); err == nil {
				continue
			}
			info, err := fileEntry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				candidates = append(candidates, ArchiveCandidate{Owner: owner, Filename: name, ModTime: info.ModTime()})
			}
		}
	}
	return candidates, nil
}

// Archive guards owner/filename against concurrent access, reads its full
// contents, hands them to upload (internal/coldstore's S3 PutObject),
// then replaces the local file with a zero-length archive marker so a
// later Read knows to rehydrate it first.
func (f *FileOps) Archive(ctx context.Context, owner, filename string, upload func([]byte) error) error {
	key, release, err := f.guard(owner, filename, coldArchiveIdentity)
	if err != nil {
		return err
	}
	defer release()

	path := f.fsPath(owner, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fileops: read file for archival: %w", err)
	}
	if err := upload(data); err != nil {
		return fmt.Errorf("fileops: upload to cold storage: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("fileops: remove archived file: %w", err)
	}
	if err := os.WriteFile(path+archiveMarkerSuffix, nil, 0o644); err != nil {
		return fmt.Errorf("fileops: write archive marker: %w", err)
	}

	f.readers.evictPath(key)
	f.amendments.evictPath(key)
	return nil
}

// DeleteDirectory recursively removes owner's directory tree and returns
// the filenames that existed just prior, for user-deletion cleanup.
func (f *FileOps) DeleteDirectory(owner string) ([]string, error) {
	dir := filepath.Join(f.root, owner)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fileops: read owner directory: %w", err)
	}

	filenames := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			filenames = append(filenames, e.Name())
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("fileops: remove owner directory: %w", err)
	}
	return filenames, nil
}
