package discovery

import "errors"

// Domain errors for the discovery package.
var (
	// ErrUnavailable is returned when the discovery subscription cannot be opened.
	ErrUnavailable = errors.New("discovery: broker unavailable")

	// ErrInvalidTimeout is returned for a non-positive discovery window.
	ErrInvalidTimeout = errors.New("discovery: timeout must be positive")
)
