// Package activitylog implements the activity-log sink of spec.md §4.3: a
// bounded queue feeding a batching flusher that inserts through the LOW
// connection lane, retries recoverable failures, and meta-logs the rest.
package activitylog

import "time"

// Entry is one activity-log row: an identity's action against the wire
// protocol, timestamped at enqueue time.
type Entry struct {
	Identity    string
	Category    string
	Subcategory string
	Code        string
	Filename    string
	Detail      string
	OccurredAt  time.Time
}
