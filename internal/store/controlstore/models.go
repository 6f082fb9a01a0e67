package controlstore

import "time"

// UserRow mirrors the users table: identity, password credential, and the
// storage-accounting tuple internal/storagecache flushes into on eviction.
type UserRow struct {
	Username     string `gorm:"primaryKey"`
	PasswordHash []byte
	PasswordSalt []byte
	FileCount    int64
	StorageUsed  int64
	CreatedAt    time.Time
}

// BanLogRow mirrors ban_logs: one row per ban, lifted by setting LiftedAt.
type BanLogRow struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	Identity    string `gorm:"index"`
	Reason      string
	Description string
	BannedAt    time.Time
	LiftedAt    *time.Time
}

// ActivityLogRow mirrors activity_logs, one row per internal/activitylog.Entry.
type ActivityLogRow struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	Identity    string `gorm:"index"`
	Category    string
	Subcategory string
	Code        string
	Filename    string
	Detail      string
	OccurredAt  time.Time
}

// ActivityLogMetaRow mirrors the meta-log internal/activitylog.Inserter.MetaLog
// writes to when the bounded queue drops entries under backpressure.
type ActivityLogMetaRow struct {
	ID       uint `gorm:"primaryKey;autoIncrement"`
	Reason   string
	Dropped  int
	LoggedAt time.Time
}

// AllModels lists every model AutoMigrate should create, mirroring the
// teacher's models.AllModels() convention (pkg/controlplane/store/gorm.go).
func AllModels() []any {
	return []any{
		&UserRow{},
		&BanLogRow{},
		&ActivityLogRow{},
		&ActivityLogMetaRow{},
	}
}
