package controlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/keelfs/keeld/internal/activitylog"
)

// InsertBatch implements internal/activitylog.Inserter: bulk-creates one
// ActivityLogRow per entry in a single statement, mirroring the teacher's
// batched-Create convention for high-volume inserts.
func (s *Store) InsertBatch(ctx context.Context, entries []activitylog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]ActivityLogRow, len(entries))
	for i, e := range entries {
		rows[i] = ActivityLogRow{
			Identity:    e.Identity,
			Category:    e.Category,
			Subcategory: e.Subcategory,
			Code:        e.Code,
			Filename:    e.Filename,
			Detail:      e.Detail,
			OccurredAt:  e.OccurredAt,
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("controlstore: insert activity log batch: %w", err)
	}
	return nil
}

// MetaLog implements internal/activitylog.Inserter: records that the queue
// dropped entries under backpressure, rather than silently losing them.
func (s *Store) MetaLog(ctx context.Context, reason string, dropped int) error {
	row := ActivityLogMetaRow{Reason: reason, Dropped: dropped, LoggedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("controlstore: insert activity log meta row: %w", err)
	}
	return nil
}
