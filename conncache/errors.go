package conncache

import "errors"

// Sentinel errors for cache operations.
var (
	ErrNilFactory       = errors.New("conncache: factory is nil")
	ErrInvalidTTL       = errors.New("conncache: ttl must not be negative")
	ErrClosed           = errors.New("conncache: cache is closed")
	ErrConnectionClosed = errors.New("conncache: connection closed before it could be cached")
	ErrNilConnection    = errors.New("conncache: factory returned a nil connection")
)
