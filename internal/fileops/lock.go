// Package fileops implements the file I/O core of spec.md §4.6: per-path
// locking, cursor-cached reader/amendment handles, and the
// create/read/write/append/overwrite/delete/transfer/delete-directory
// operations.
package fileops

import (
	"hash/adler32"
	"sync"
	"time"

	"github.com/keelfs/keeld/internal/codes"
)

// lockTable holds one entry per path currently locked by a holder
// checksum. The holder value is adler32(identity) — spec.md §4.6 calls
// this "a cheap checksum sufficient to distinguish holders in practice".
type lockTable struct {
	mu      sync.Mutex
	holders map[string]uint32
	ttl     time.Duration
	expiry  map[string]time.Time
}

func newLockTable(ttl time.Duration) *lockTable {
	return &lockTable{
		holders: make(map[string]uint32),
		expiry:  make(map[string]time.Time),
		ttl:     ttl,
	}
}

func holderChecksum(identity string) uint32 {
	return adler32.Checksum([]byte(identity))
}

// acquire retries acquisition of path for identity with a small sleep
// between attempts, failing with FileContested once contentionTimeout
// elapses.
func (t *lockTable) acquire(path, identity string, contentionTimeout time.Duration) error {
	checksum := holderChecksum(identity)
	deadline := time.Now().Add(contentionTimeout)
	const retryInterval = 5 * time.Millisecond

	for {
		if t.tryAcquire(path, checksum) {
			return nil
		}
		if time.Now().After(deadline) {
			return codes.New(codes.FileContested, "file is locked by another operation")
		}
		time.Sleep(retryInterval)
	}
}

func (t *lockTable) tryAcquire(path string, checksum uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, held := t.holders[path]; held {
		if exp, ok := t.expiry[path]; ok && time.Now().After(exp) {
			// expired lock, free for reacquisition
		} else if existing != checksum {
			return false
		}
	}

	t.holders[path] = checksum
	t.expiry[path] = time.Now().Add(t.ttl)
	return true
}

// release frees path's lock only if identity is still the holder.
func (t *lockTable) release(path, identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.holders[path] == holderChecksum(identity) {
		delete(t.holders, path)
		delete(t.expiry, path)
	}
}

// barrier sets path's lock slot to NULL unconditionally. Used by Delete:
// "forces concurrent amendment attempts to fail with FileNotFound" because
// the path is simultaneously entered into the tombstone cache.
func (t *lockTable) barrier(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.holders, path)
	delete(t.expiry, path)
}
