// Package migrations embeds the sqlite token store schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
