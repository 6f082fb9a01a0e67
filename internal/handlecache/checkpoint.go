// Package handlecache durably persists the (path, identity) cursor
// checkpoints internal/fileops's in-memory reader/amendment handle cache
// holds. internal/fileops writes and deletes checkpoints alongside its
// caches but does not load them back into the caches on start.
// Grounded on the teacher's pkg/metadata/store/badger transaction/CRUD
// files for the Update/View/Item.Value shape, generalized from metadata
// records to a plain path+identity -> cursor checkpoint.
package handlecache

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Checkpoint wraps a badger database keyed by "path\x00identity" ->
// big-endian int64 cursor.
type Checkpoint struct {
	db *badger.DB
}

// Open opens (creating if absent) a badger database at dir.
func Open(dir string) (*Checkpoint, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("handlecache: open badger db at %s: %w", dir, err)
	}
	return &Checkpoint{db: db}, nil
}

func checkpointKey(path, identity string) []byte {
	return []byte(path + "\x00" + identity)
}

// Store persists cursor for (path, identity), overwriting any prior value.
func (c *Checkpoint) Store(path, identity string, cursor int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(cursor))
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(path, identity), buf)
	})
	if err != nil {
		return fmt.Errorf("handlecache: store checkpoint: %w", err)
	}
	return nil
}

// Load returns the persisted cursor for (path, identity). found is false
// if no checkpoint has ever been stored for that pair.
func (c *Checkpoint) Load(path, identity string) (cursor int64, found bool) {
	_ = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(path, identity))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return nil
			}
			cursor = int64(binary.BigEndian.Uint64(val))
			found = true
			return nil
		})
	})
	return cursor, found
}

// Delete removes the persisted checkpoint for (path, identity), if any —
// called when a handle is evicted with purge.
func (c *Checkpoint) Delete(path, identity string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(checkpointKey(path, identity))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("handlecache: delete checkpoint: %w", err)
	}
	return nil
}

// DeletePath removes every persisted checkpoint under path, across every
// identity — mirrors the in-memory cache's evictPath, called on file
// deletion.
func (c *Checkpoint) DeletePath(path string) error {
	prefix := []byte(path + "\x00")
	err := c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("handlecache: delete path checkpoints: %w", err)
	}
	return nil
}

// GC runs badger's value-log garbage collection once; callers run this
// periodically from a ticker, tolerating the no-rewrite-needed case.
func (c *Checkpoint) GC(discardRatio float64) error {
	err := c.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

// Close flushes and closes the underlying badger database.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}
