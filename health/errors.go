package health

import "errors"

var (
	// ErrCheckFailed indicates a health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout indicates a health check timed out.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCacheClosed indicates the checked cache no longer serves connections.
	ErrCacheClosed = errors.New("health: cache is closed")
)
