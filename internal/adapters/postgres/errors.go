package postgres

import "errors"

// Sentinel errors for the Postgres adapters.
var (
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")
	ErrSchema           = errors.New("postgres: schema bootstrap failed")
	ErrStaleStatus      = errors.New("postgres: score status changed concurrently")
	ErrScoreNotFound    = errors.New("postgres: score not found")
	ErrPlayerNotFound   = errors.New("postgres: player not found")
)
