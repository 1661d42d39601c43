package reservation

import "fmt"

type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusApproved  Status = "APPROVED"
	StatusDelivered Status = "DELIVERED"
	StatusCanceled  Status = "CANCELED"
)

// transitions is the single source of truth for the reservation lifecycle.
// Cancellation is deliberately absent: it is a separate operation with a
// compensating inventory release, never a bare status update.
var transitions = map[Status][]Status{
	StatusOpen:     {StatusApproved},
	StatusApproved: {StatusDelivered},
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOpen, StatusApproved, StatusDelivered, StatusCanceled:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCanceled
}

// Occupies reports whether a reservation in this status blocks the space
// for overlapping time windows.
func (s Status) Occupies() bool {
	return s == StatusOpen || s == StatusApproved
}

// ValidateStatusUpdate checks the generic status-update path.
// CANCELED is never a legal target here; use Cancel instead.
func ValidateStatusUpdate(current, target Status) error {
	if target == StatusCanceled {
		return fmt.Errorf("%w: %s -> %s (cancel is a separate operation)", ErrInvalidTransition, current, target)
	}
	for _, next := range transitions[current] {
		if next == target {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

// ValidateCancel checks the cancel path. Only open reservations can be
// canceled; approved ones are already committed to delivery.
func ValidateCancel(current Status) error {
	if current != StatusOpen {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, StatusCanceled)
	}
	return nil
}

// ValidateWindowEdit checks whether the time window may still change.
func ValidateWindowEdit(current Status) error {
	if current.Terminal() {
		return fmt.Errorf("%w: cannot edit window in status %s", ErrInvalidTransition, current)
	}
	return nil
}
