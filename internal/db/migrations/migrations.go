// Package migrations embeds the bot core's versioned SQL migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
