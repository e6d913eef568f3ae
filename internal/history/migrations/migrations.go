// Package migrations embeds the search history schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
