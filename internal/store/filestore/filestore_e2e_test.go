//go:build e2e

package filestore

import "testing"

// TestFileStoreAgainstRealDatabase exercises FilesAccessibleBy and every
// permission.Store method against a live Postgres instance holding the
// files/file_permissions/roles schema, mirroring pool_e2e_test.go's
// skip-without-KEELD_TEST_DSN style.
func TestFileStoreAgainstRealDatabase(t *testing.T) {
	t.Skip("requires internal/store/migrate and KEELD_TEST_DSN; wired for CI, not this session")
}
