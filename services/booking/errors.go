package booking

import "errors"

var (
	// ErrValidation marks malformed input (missing ids, non-positive
	// duration, start in the past). Caller-fixable, never retried.
	ErrValidation = errors.New("invalid booking request")

	// ErrConflict means the slot is already held by an active booking.
	ErrConflict = errors.New("slot already booked")

	// ErrOutsideAvailability means the requested interval is not covered by
	// any window the coach declared bookable. Distinct from ErrConflict.
	ErrOutsideAvailability = errors.New("requested time is outside coach availability")

	// ErrBookingNotFound is returned when no booking matches the given id.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidTransition marks a lifecycle step the state machine does not
	// permit, regardless of timing.
	ErrInvalidTransition = errors.New("invalid booking state transition")

	// ErrStaleState means the persisted booking moved underneath the caller;
	// re-read and retry.
	ErrStaleState = errors.New("booking state is stale, re-read and retry")

	// ErrCancellationWindowClosed rejects last-minute cancellation of a
	// confirmed booking. Surfaced verbatim to the end user.
	ErrCancellationWindowClosed = errors.New("cancellation window has closed")

	// ErrForbidden means the acting user may not perform this operation on
	// this booking.
	ErrForbidden = errors.New("actor not allowed to perform this operation")
)
