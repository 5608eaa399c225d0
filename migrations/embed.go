// Package migrations holds the goose SQL migrations of the classroom schema.
package migrations

import "embed"

// FS contains every migration file; goose reads it through a provider.
//
//go:embed *.sql
var FS embed.FS
