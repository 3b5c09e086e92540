package storage

import (
	"fmt"

	"price_tracker/internal/config"
)

// Open connects to the backend selected by cfg.Database.Driver.
func Open(cfg *config.Config, opts ...Option) (*SQL, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		return NewSQLite(cfg.DSN(), opts...)
	case config.DriverMySQL:
		return NewMySQL(cfg.DSN(), opts...)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrConnection, cfg.Database.Driver)
	}
}
