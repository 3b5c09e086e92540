package storage

import "errors"

// Error classes returned by the store. Callers match them with errors.Is;
// the wrapped driver error stays available for logging.
var (
	// ErrConnection means the store could not be reached at startup.
	ErrConnection = errors.New("store unreachable")
	// ErrSchema means creating or migrating the schema failed.
	ErrSchema = errors.New("schema initialization failed")
	// ErrDataAccess means a query or mutation failed after startup.
	ErrDataAccess = errors.New("data access failed")
	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("not found")
)
