// Package migrations embeds the SQL schema migrations so the binary can
// migrate the database regardless of its working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
