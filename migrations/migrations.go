// Package migrations embeds the SQL schema for the users and audit_logs tables.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
