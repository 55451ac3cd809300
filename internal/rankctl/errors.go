package rankctl

import "errors"

// Sentinel errors for the admin client.
var (
	ErrUsage    = errors.New("usage")
	ErrResponse = errors.New("unexpected response")
)
