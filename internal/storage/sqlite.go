package storage

import (
	"strings"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"price_tracker/migrations"
)

// connPragmas are applied by the driver to every new connection.
var connPragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// NewSQLite opens the embedded single-file backend at dsn.
// Call InitializeSchema before using the store.
func NewSQLite(dsn string, opts ...Option) (*SQL, error) {
	db, err := open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return newSQL(db, migrations.DialectSQLite, opts), nil
}

// sqliteDSN appends connPragmas to dsn as _pragma query parameters.
func sqliteDSN(dsn string) string {
	params := make([]string, 0, len(connPragmas))
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
