package storage

import (
	_ "github.com/go-sql-driver/mysql" // MySQL driver registration.

	"price_tracker/migrations"
)

// NewMySQL opens the client/server backend described by dsn.
// Timestamps are read back correctly with or without parseTime.
// Call InitializeSchema before using the store.
func NewMySQL(dsn string, opts ...Option) (*SQL, error) {
	db, err := open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return newSQL(db, migrations.DialectMySQL, opts), nil
}
