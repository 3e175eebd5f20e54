// Package migrations embeds the control-plane schema's goose migration
// files for use with pkg/database.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
