package controlstore

import (
	"context"
	"fmt"

	"github.com/keelfs/keeld/internal/activitylog"
)

// UserSummary is one users row as internal/adminapi renders it: no
// password material, just the identity and whether it's currently banned.
type UserSummary struct {
	Username string
	Banned   bool
}

// ListUsers returns every known identity with its current ban status,
// backing internal/adminapi's user-listing endpoint.
func (s *Store) ListUsers(ctx context.Context) ([]UserSummary, error) {
	var rows []UserRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("controlstore: list users: %w", err)
	}

	banned := make(map[string]bool)
	var bans []BanLogRow
	if err := s.db.WithContext(ctx).Where("lifted_at IS NULL").Find(&bans).Error; err != nil {
		return nil, fmt.Errorf("controlstore: list active bans: %w", err)
	}
	for _, b := range bans {
		banned[b.Identity] = true
	}

	out := make([]UserSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, UserSummary{Username: r.Username, Banned: banned[r.Username]})
	}
	return out, nil
}

// RecentActivity returns the most recent limit activity_logs rows, newest
// first, backing internal/adminapi's activity feed.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]activitylog.Entry, error) {
	var rows []ActivityLogRow
	if err := s.db.WithContext(ctx).Order("occurred_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("controlstore: list recent activity: %w", err)
	}
	out := make([]activitylog.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, activitylog.Entry{
			Identity:    r.Identity,
			Category:    r.Category,
			Subcategory: r.Subcategory,
			Code:        r.Code,
			Filename:    r.Filename,
			Detail:      r.Detail,
			OccurredAt:  r.OccurredAt,
		})
	}
	return out, nil
}
