// Package migrations embeds the Postgres schema migrations of the archive.
package migrations

import "embed"

// FS holds the numbered .sql files applied by the migrate command.
//
//go:embed *.sql
var FS embed.FS
