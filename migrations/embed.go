// Package migrations ships the SQL schema inside the binary. A blank import
// hands the files to the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gymdesk/internal/infrastructure/database"
)

//go:embed *.sql
var schema embed.FS

func init() {
	database.MigrationsFS, database.MigrationsDir = schema, "."
}
