// Package migrations embeds the goose SQL migrations for the match-history
// archive, mirroring the teacher's internal/db/migrations.FS layout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
