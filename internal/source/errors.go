package source

import "errors"

// Fetch failures. Adapters wrap these so the engine can tell them apart in logs.
var (
	// ErrTimeout means the fetch ran past its wall-clock budget.
	ErrTimeout = errors.New("fetch timeout reached")
	// ErrBadStatus means the marketplace answered with an unexpected HTTP status.
	ErrBadStatus = errors.New("unexpected status")
	// ErrDecode means the marketplace response could not be parsed.
	ErrDecode = errors.New("decode response")
)
