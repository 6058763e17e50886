// Package migrations holds the SQL schema of the close audit journal.
package migrations

import "embed"

// FS contains every *.sql migration, so binaries can migrate without the source tree
//
//go:embed *.sql
var FS embed.FS
