// Package migrations embeds the SQL Server migrations that create the sales
// plan table for local databases and integration tests.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files.
//
//go:embed *.sql
var FS embed.FS
