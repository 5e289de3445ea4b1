package correlator

import "errors"

// Domain errors for correlated requests.
var (
	// ErrTimeout is returned when no matching reply arrives before the deadline.
	ErrTimeout = errors.New("correlator: reply timed out")

	// ErrProtocol is returned when a reply arrives but does not have the expected shape.
	ErrProtocol = errors.New("correlator: unexpected reply")
)
