package fileops

import (
	"os"
	"sync"
	"time"
)

// handle is one cached (path, identity) file descriptor with its last
// known cursor position.
type handle struct {
	file     *os.File
	cursor   int64
	lastUsed time.Time
}

// handleCache is the reader_cache / amendment_cache of spec.md §4.6: a
// TTL-bounded map keyed (path, identity).
type handleCache struct {
	mu      sync.Mutex
	entries map[string]map[string]*handle
	ttl     time.Duration
}

func newHandleCache(ttl time.Duration) *handleCache {
	return &handleCache{
		entries: make(map[string]map[string]*handle),
		ttl:     ttl,
	}
}

func (c *handleCache) get(path, identity string) (*handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byIdentity, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	h, ok := byIdentity[identity]
	if !ok {
		return nil, false
	}
	if time.Since(h.lastUsed) > c.ttl {
		h.file.Close()
		delete(byIdentity, identity)
		return nil, false
	}
	return h, true
}

func (c *handleCache) put(path, identity string, h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byIdentity, ok := c.entries[path]
	if !ok {
		byIdentity = make(map[string]*handle)
		c.entries[path] = byIdentity
	}
	h.lastUsed = time.Now()
	byIdentity[identity] = h
}

// evict closes and removes the cached handle for (path, identity), if any.
func (c *handleCache) evict(path, identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byIdentity, ok := c.entries[path]
	if !ok {
		return
	}
	if h, ok := byIdentity[identity]; ok {
		h.file.Close()
		delete(byIdentity, identity)
	}
	if len(byIdentity) == 0 {
		delete(c.entries, path)
	}
}

// evictPath closes and removes every cached handle for path, across all
// identities — used by Delete, which must invalidate every holder.
func (c *handleCache) evictPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.entries[path] {
		h.file.Close()
	}
	delete(c.entries, path)
}

// evictIdentity closes and removes every cached handle held by identity,
// across all paths — used by session cleanup (ban/delete_user).
func (c *handleCache) evictIdentity(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path, byIdentity := range c.entries {
		if h, ok := byIdentity[identity]; ok {
			h.file.Close()
			delete(byIdentity, identity)
			if len(byIdentity) == 0 {
				delete(c.entries, path)
			}
		}
	}
}

// sweep closes and removes every handle whose TTL has elapsed.
func (c *handleCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for path, byIdentity := range c.entries {
		for identity, h := range byIdentity {
			if now.Sub(h.lastUsed) > c.ttl {
				h.file.Close()
				delete(byIdentity, identity)
			}
		}
		if len(byIdentity) == 0 {
			delete(c.entries, path)
		}
	}
}

// tombstoneCache is deleted_cache: a TTL-bounded set of paths known to
// have just been deleted, so concurrent stragglers fail fast with
// FileNotFound instead of racing the filesystem.
type tombstoneCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
}

func newTombstoneCache(ttl time.Duration) *tombstoneCache {
	return &tombstoneCache{entries: make(map[string]time.Time), ttl: ttl}
}

func (t *tombstoneCache) mark(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[path] = time.Now()
}

func (t *tombstoneCache) contains(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	markedAt, ok := t.entries[path]
	if !ok {
		return false
	}
	if time.Since(markedAt) > t.ttl {
		delete(t.entries, path)
		return false
	}
	return true
}

func (t *tombstoneCache) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for path, markedAt := range t.entries {
		if now.Sub(markedAt) > t.ttl {
			delete(t.entries, path)
		}
	}
}
