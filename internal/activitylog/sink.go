package activitylog

import "context"

// Inserter is the persistence seam activitylog depends on; implemented by
// internal/store/controlstore so this package never imports the concrete
// store (avoiding an import cycle, the same pattern internal/session uses
// for its Store interface). InsertBatch is expected to route its query
// through the LOW connection lane; MetaLog through the HIGH lane
// (spec.md §4.3).
type Inserter interface {
	InsertBatch(ctx context.Context, entries []Entry) error
	MetaLog(ctx context.Context, reason string, dropped int) error
}
