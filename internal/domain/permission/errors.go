package permission

import "errors"

// Sentinel errors for rule parsing and checks.
var (
	ErrInvalidRule = errors.New("invalid permission rule")
	ErrForbidden   = errors.New("forbidden")
	ErrUnknownKey  = errors.New("unknown api key")
)
