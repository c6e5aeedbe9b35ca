// Package db ships the SQL migrations and seeders inside the binary.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed seeders/*.sql
var Seeders embed.FS

// MigrationsFS returns the embedded migrations rooted at their directory.
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(Migrations, "migrations")
}

// SeedersFS returns the embedded seeders rooted at their directory.
func SeedersFS() (fs.FS, error) {
	return fs.Sub(Seeders, "seeders")
}
