// Package migrations embeds the numbered SQLite schema files that
// sqlite.DB.Migrate applies.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
