// Package migrations embeds the goose SQL migrations for the Identity Store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
