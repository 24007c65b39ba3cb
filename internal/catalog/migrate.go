package catalog

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending catalog-schema migration, grounded on
// zoravur-postgres-spreadsheet-view's goose usage. The offline
// introspection/rebuild path (out of scope of this core) is the only
// caller; the serving path never migrates.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
