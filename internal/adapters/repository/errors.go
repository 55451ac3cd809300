package repository

import "errors"

// Sentinel kinds for ranking store errors.
var (
	ErrInvalidRange = errors.New("invalid ranking range")
	ErrStoreClosed  = errors.New("ranking store closed")
	ErrBackend      = errors.New("ranking backend unavailable")
)
