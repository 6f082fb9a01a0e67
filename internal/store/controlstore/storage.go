package controlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/keelfs/keeld/internal/storagecache"
)

// FetchStorageData implements internal/storagecache.Store: loads the
// users.file_count/storage_used tuple on a cache miss.
func (s *Store) FetchStorageData(ctx context.Context, username string) (fileCount, storageUsed int64, err error) {
	var row UserRow
	if err := s.db.WithContext(ctx).Select("file_count", "storage_used").
		Where("username = ?", username).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("controlstore: fetch storage data: %w", err)
	}
	return row.FileCount, row.StorageUsed, nil
}

// FlushBatch implements internal/storagecache.Store: applies every evicted
// entry's accumulated file_count/storage_used delta in one transaction. Per
// spec.md §4.5, file-level size deltas recorded in FileDeltas are informational
// for this table (files.file_size lives in internal/store/filestore's files
// table) and are not re-applied here to avoid double-accounting against the
// per-user totals already folded into StorageUsed.
func (s *Store) FlushBatch(ctx context.Context, entries map[string]*storagecache.StorageData) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for username, data := range entries {
			if err := tx.Model(&UserRow{}).Where("username = ?", username).
				Updates(map[string]any{
					"file_count":   data.FileCount,
					"storage_used": data.StorageUsed,
				}).Error; err != nil {
				return fmt.Errorf("controlstore: flush storage data for %q: %w", username, err)
			}
		}
		return nil
	})
}
