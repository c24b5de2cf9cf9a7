// Package migrations holds the SQL schema, embedded so the binary can migrate
// a database without the source tree.
package migrations

import "embed"

// FS contains every NNN_name.sql file of this directory
//
//go:embed *.sql
var FS embed.FS
