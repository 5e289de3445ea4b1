package command

import "errors"

// Domain errors for command construction.
var (
	// ErrOutOfRange is returned when a numeric value is outside its valid range.
	ErrOutOfRange = errors.New("command: value out of range")

	// ErrInvalidValue is returned when a textual value cannot be parsed.
	ErrInvalidValue = errors.New("command: invalid value")
)
