// Package controlstore is the GORM-backed persistence layer for the
// users/ban_logs/activity_logs tables: it implements internal/session.Store,
// internal/activitylog.Inserter, and internal/storagecache.Store, adapted
// from the teacher's pkg/controlplane/store GORMStore (same dialector
// selection, AutoMigrate-on-open, and Silent-logger convention) onto this
// spec's three tables instead of the teacher's NFS/SMB share/user/group
// schema.
package controlstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the GORM handle shared by every file in this package.
type Store struct {
	db *gorm.DB
}

// New opens dsn as a PostgreSQL connection and AutoMigrates the control
// tables. An empty dsn opens a local SQLite file instead (for single-node
// deployments without a Postgres instance; tests use NewWithDB), mirroring the
// teacher's SQLite/PostgreSQL dual-dialector Config.
func New(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if dsn == "" {
		path := "./data/controlstore.db"
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("controlstore: create sqlite directory: %w", err)
		}
		dialector = sqlite.Open(path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("controlstore: connect: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("controlstore: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open *gorm.DB, used by tests that want an
// in-memory SQLite connection they manage themselves.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("controlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}
