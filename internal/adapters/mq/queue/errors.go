package queue

import "errors"

// Sentinel errors returned by Enqueue.
var (
	ErrClosed    = errors.New("queue closed")
	ErrFull      = errors.New("queue full")
	ErrCoalesced = errors.New("identical job already pending")
	ErrBackend   = errors.New("queue backend error")
)
