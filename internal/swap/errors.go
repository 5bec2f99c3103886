package swap

import "errors"

var (
	// ErrIllegalTransition means a caller tried to move an order or escrow
	// along an edge the state machine does not have. This is a bug signal,
	// not an expected runtime condition; it is never retried.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrInvalidSecret means the supplied secret (or Merkle proof) does not
	// match the order's committed hash.
	ErrInvalidSecret = errors.New("secret does not match committed hash")

	// ErrTimelockNotElapsed means the operation is gated behind a deadline
	// that has not passed yet. Callers treat it as a signal to resynchronize
	// from the chain, not a fatal fault.
	ErrTimelockNotElapsed = errors.New("timelock has not elapsed")

	// ErrTimelockElapsed means the operation's window has already closed.
	ErrTimelockElapsed = errors.New("timelock has elapsed")

	// ErrExclusivePeriod means a non-assigned resolver tried to settle the
	// destination leg before the exclusivity window opened up.
	ErrExclusivePeriod = errors.New("exclusive period has not elapsed for this resolver")

	// ErrInvalidTimelockConfig means the order's timing parameters violate
	// finality < exclusive < cancellation and the order must be rejected.
	ErrInvalidTimelockConfig = errors.New("invalid timelock configuration")
)
