// Package migrations embeds the SQL schema applied by cmd/migrate.
package migrations

import "embed"

// FS holds every NNN_name.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
