package reservation

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInactive          = errors.New("inactive")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrContention signals a lock or serialization timeout. Nothing was
	// committed, so the caller may safely retry.
	ErrContention = errors.New("contention")
)
