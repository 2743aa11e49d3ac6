// Package migrations embeds the SQLite schema used by the sqlite state
// backend so the binary carries its own migrations.
package migrations

import (
	"embed"

	"github.com/nerrad567/lightswitch/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
