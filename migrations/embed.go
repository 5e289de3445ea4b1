// Package migrations holds the SQL schema, compiled into the binary.
//
// Pass FS to database.DB.Migrate. Files follow
// YYYYMMDD_HHMMSS_name.up.sql with a matching .down.sql.
package migrations

import "embed"

// FS contains every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
