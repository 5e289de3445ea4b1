package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// Routine limits. Delays are expressed to the device in deciseconds
// (Delay 1..65535), so they are clamped to that range.
const (
	MaxSteps = 30

	MinDelay = 100 * time.Millisecond
	MaxDelay = 65535 * 100 * time.Millisecond
)

// backlogCommand runs its entries without waiting for replies between them.
const backlogCommand = "Backlog0"

// Build validates steps and returns an immutable routine. Non-zero delays
// are clamped to MinDelay..MaxDelay.
func Build(steps []Step) (Routine, error) {
	if len(steps) == 0 {
		return Routine{}, ErrNoSteps
	}
	if len(steps) > MaxSteps {
		return Routine{}, fmt.Errorf("%w: got %d", ErrTooManySteps, len(steps))
	}

	out := make([]Step, len(steps))
	for i, s := range steps {
		if s.Command.Name == "" {
			return Routine{}, fmt.Errorf("%w: step %d", ErrInvalidStep, i+1)
		}
		s.Delay = clampDelay(s.Delay)
		if s.Timeout < 0 {
			s.Timeout = 0
		}
		out[i] = s
	}
	return Routine{steps: out}, nil
}

func clampDelay(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return 0
	case d < MinDelay:
		return MinDelay
	case d > MaxDelay:
		return MaxDelay
	default:
		return d
	}
}

// deciseconds converts a clamped delay to the device's Delay argument.
func deciseconds(d time.Duration) int {
	return int((d + 50*time.Millisecond) / (100 * time.Millisecond))
}

// Backlog renders the routine as one Backlog0 command. Delays become
// "Delay n" entries, which count against the device's limit of MaxSteps
// entries. The command is acknowledged by the first step's reply.
func (r Routine) Backlog() (command.Command, error) {
	if len(r.steps) == 0 {
		return command.Command{}, ErrNoSteps
	}

	entries := make([]string, 0, len(r.steps)*2)
	for i, s := range r.steps {
		entries = append(entries, s.Command.String())
		// A trailing delay has nothing to hold back.
		if s.Delay > 0 && i < len(r.steps)-1 {
			entries = append(entries, "Delay "+strconv.Itoa(deciseconds(s.Delay)))
		}
	}
	if len(entries) > MaxSteps {
		return command.Command{}, fmt.Errorf("%w: %d backlog entries including delays", ErrTooManySteps, len(entries))
	}

	first := r.steps[0].Command
	return command.Command{
		Name:     backlogCommand,
		Payload:  strings.Join(entries, "; "),
		Response: first.Response,
	}, nil
}
