package tasmota

import "errors"

var (
	// ErrNotManaged is returned for a device ID the manager is not running.
	ErrNotManaged = errors.New("tasmota: device not managed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tasmota: manager closed")

	// ErrNoRegistry is returned by New without a device registry.
	ErrNoRegistry = errors.New("tasmota: device registry is required")

	// ErrNoTransports is returned by New without a transport factory.
	ErrNoTransports = errors.New("tasmota: transport factory is required")
)
