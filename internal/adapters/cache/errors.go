package cache

import "errors"

// Sentinel errors for stats cache operations.
var (
	ErrBackend = errors.New("stats cache backend error")
	ErrCorrupt = errors.New("stats cache entry corrupt")
)
