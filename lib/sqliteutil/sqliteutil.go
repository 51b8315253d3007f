package sqliteutil

import (
	"database/sql"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func driverFor(path string) string {
	if strings.HasPrefix(path, "libsql://") ||
		strings.HasPrefix(path, "wss://") ||
		strings.HasPrefix(path, "https://") {
		return "libsql"
	}
	return "sqlite"
}

// OpenDB opens the database at `path` (a file path, ":memory:" or a
// libsql url) and applies the given schema. Re-applying a schema to an
// existing database is fine as long as it only contains IF NOT EXISTS
// statements.
func OpenDB(schema string, path string) (*sql.DB, error) {
	db, err := sql.Open(driverFor(path), path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		db.Close()
		return nil, err
	}
	return db, nil
}
