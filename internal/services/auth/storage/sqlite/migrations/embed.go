// Package migrations embeds the auth SQLite schema migrations.
package migrations

import "embed"

// FS contains the ordered migration files applied at store open.
//
//go:embed *.sql
var FS embed.FS
