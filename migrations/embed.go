// Package migrations embeds the SQL schema migrations into the binary.
//
// Importing it registers the files with the database package, so
// database.DB.Migrate works without the SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/tcplink/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.Register(migrationsFS, ".")
}
