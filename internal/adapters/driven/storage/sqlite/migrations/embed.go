// Package migrations holds the SQLite schema as numbered up/down scripts.
// Store applies every NNN_*.up.sql newer than the recorded schema version.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
