package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted = errors.New("service not started")
	ErrInvalidJob = errors.New("invalid job")
	ErrStopped    = errors.New("service stopped")
)
