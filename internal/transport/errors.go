package transport

import "errors"

var (
	// ErrConnection is returned when the device or broker is unreachable.
	ErrConnection = errors.New("transport: connection error")

	// ErrAuthentication is returned when the device rejects the credentials.
	// It is always wrapped together with ErrConnection.
	ErrAuthentication = errors.New("transport: authentication failed")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidConfig is returned for unusable transport settings.
	ErrInvalidConfig = errors.New("transport: invalid config")
)
