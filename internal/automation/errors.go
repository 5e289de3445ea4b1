package automation

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrInvalidRoutine) {
//	    // reject the request
//	}
var (
	// ErrInvalidRoutine is returned when a routine cannot be built.
	ErrInvalidRoutine = errors.New("routine: invalid")

	// ErrNoSteps is returned when building a routine without steps.
	ErrNoSteps = fmt.Errorf("%w: no steps", ErrInvalidRoutine)

	// ErrTooManySteps is returned when a routine exceeds MaxSteps.
	ErrTooManySteps = fmt.Errorf("%w: more than %d steps", ErrInvalidRoutine, MaxSteps)

	// ErrInvalidStep is returned when a step carries no command.
	ErrInvalidStep = fmt.Errorf("%w: step without command", ErrInvalidRoutine)

	// ErrExecutionNotFound is returned when an execution ID does not exist.
	ErrExecutionNotFound = errors.New("routine: execution not found")
)

// RoutineError reports the step that stopped a routine. Steps before it
// have taken effect on the device and are not rolled back.
type RoutineError struct {
	// Step is the 1-based index of the failing step.
	Step int

	// Total is the number of steps in the routine.
	Total int

	Command command.Command
	Err     error
}

func (e *RoutineError) Error() string {
	return fmt.Sprintf("routine: step %d of %d (%s): %v", e.Step, e.Total, e.Command, e.Err)
}

func (e *RoutineError) Unwrap() error { return e.Err }
