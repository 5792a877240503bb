// Package migrations carries the SQL schema so binaries do not depend on the
// working directory.
package migrations

import "embed"

// Files holds every <version>_<name>.{up,down}.sql pair
//
//go:embed *.sql
var Files embed.FS
