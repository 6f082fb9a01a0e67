// Package migrations embeds the SQL migration files applied by
// internal/store/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
