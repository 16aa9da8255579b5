// Package migrations holds the sqlite schema, embedded into the binary and
// applied by golang-migrate at startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
