// Package migrations embeds the versioned schema files for the SQL adapters.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
