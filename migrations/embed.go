// Package migrations embeds the schema for the SQL state providers.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
