// Package migrations embeds the goose SQL migrations for the job ledger.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
