package leaderboard

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrInvalidRange  = errors.New("invalid leaderboard range")
	ErrNoSource      = errors.New("leaderboard source not configured")
)
