// Package migrations embeds SQL migration files and provides a function to apply them.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQL migration files, one directory per dialect.
//
//go:embed sqlite/*.sql mysql/*.sql
var FS embed.FS

// Supported dialect directories.
const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
)

// GooseDialect maps a dialect directory to goose's dialect name.
func GooseDialect(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite3", nil
	case DialectMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// Setup points goose at the embedded migrations for dialect and returns the
// directory to pass to goose commands.
func Setup(dialect string) (string, error) {
	gd, err := GooseDialect(dialect)
	if err != nil {
		return "", err
	}

	goose.SetBaseFS(FS)

	if err := goose.SetDialect(gd); err != nil {
		return "", fmt.Errorf("set dialect: %w", err)
	}
	return dialect, nil
}

// Run applies all pending migrations for dialect to the given database.
func Run(db *sql.DB, dialect string) error {
	dir, err := Setup(dialect)
	if err != nil {
		return err
	}
	goose.SetLogger(goose.NopLogger())

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
