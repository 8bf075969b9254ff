// Package migrations embeds the forward-only SQL migrations for each
// history store dialect.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed sqlite/*.sql
var sqliteFS embed.FS

// Postgres returns the PostgreSQL migrations rooted at their directory.
func Postgres() fs.FS { return sub(postgresFS, "postgres") }

// SQLite returns the SQLite migrations rooted at their directory.
func SQLite() fs.FS { return sub(sqliteFS, "sqlite") }

func sub(f embed.FS, dir string) fs.FS {
	s, err := fs.Sub(f, dir)
	if err != nil {
		// dir is a compile-time embed path.
		panic(err)
	}
	return s
}
