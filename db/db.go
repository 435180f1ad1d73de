// Package db carries the schema migrations compiled into the binary so
// the server and the tests apply the exact same DDL.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations exposes the migration files rooted at the migrations
// directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
