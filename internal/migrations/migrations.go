// Package migrations embeds the schema of the interval store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
