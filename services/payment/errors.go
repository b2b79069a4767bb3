package payment

import "errors"

var (
	// ErrPaymentDeclined marks a permanent provider failure (declined card,
	// invalid request). Not retryable; the booking path treats it as a
	// booking failure.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrProviderTimeout marks a transient provider failure after retries
	// were exhausted. The caller may prompt the user to try again.
	ErrProviderTimeout = errors.New("payment provider timed out")

	// ErrIntentNotFound is returned when no intent matches the given id.
	ErrIntentNotFound = errors.New("payment intent not found")

	// ErrInvalidIntentState is returned when an operation is attempted
	// against an intent whose status does not permit it (e.g. refunding an
	// intent that was never captured).
	ErrInvalidIntentState = errors.New("operation not valid for payment intent state")

	// ErrInvalidRefundAmount is returned when a partial refund exceeds the
	// captured amount.
	ErrInvalidRefundAmount = errors.New("refund amount exceeds captured amount")
)
