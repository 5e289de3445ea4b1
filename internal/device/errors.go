package device

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnsupported) {
//	    // the device lacks the feature
//	}
var (
	// ErrUnsupported is returned when a command needs a feature the device lacks.
	ErrUnsupported = errors.New("device: unsupported feature")

	// ErrChannelOutOfRange is returned when a command addresses a relay channel
	// the device does not have.
	ErrChannelOutOfRange = errors.New("device: channel out of range")

	// ErrInvalidCapabilities is returned when a capability set cannot be built.
	ErrInvalidCapabilities = errors.New("device: invalid capabilities")

	// ErrUnknownPreset is returned for an unrecognised capability preset name.
	ErrUnknownPreset = errors.New("device: unknown capability preset")

	// ErrClosed is returned when a command is sent through a closed handle.
	ErrClosed = errors.New("device: closed")

	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrTopicInUse is returned when another device already uses the same
	// MQTT topic on the same broker.
	ErrTopicInUse = errors.New("device: mqtt topic already in use")

	// ErrInvalidDevice is returned when definition validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidTransport is returned when a transport value is not recognised.
	ErrInvalidTransport = errors.New("device: invalid transport")
)

// CapabilityError reports a command rejected before dispatch.
type CapabilityError struct {
	Command command.Command
	Feature command.Feature
	Channel int
	Err     error
}

func (e *CapabilityError) Error() string {
	if errors.Is(e.Err, ErrChannelOutOfRange) {
		return fmt.Sprintf("%s: channel %d: %v", e.Command.Name, e.Channel, e.Err)
	}
	return fmt.Sprintf("%s: needs %s: %v", e.Command.Name, e.Feature, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }
