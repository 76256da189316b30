// Package migrations embeds SQL migration files so they can be applied at
// runtime regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem, containing all .sql files in
// this directory.
//
//go:embed *.sql
var FS embed.FS
