package model

import "errors"

// Sentinel errors for model parsing and decoding.
var (
	ErrUnknownMode     = errors.New("unknown mode")
	ErrUnknownJob      = errors.New("unknown job")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)
