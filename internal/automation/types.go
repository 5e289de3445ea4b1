package automation

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// Step is one command of a routine plus an optional pause after it.
type Step struct {
	Command command.Command

	// Delay is waited after the command resolves and before the next step
	// is sent. Zero means no pause.
	Delay time.Duration

	// Timeout overrides the transport's reply deadline for this step.
	Timeout time.Duration
}

// Routine is a validated, immutable sequence of steps. Build it with Build
// or a Builder; the zero value has no steps and does not run.
type Routine struct {
	steps []Step
}

// Len returns the number of steps.
func (r Routine) Len() int { return len(r.steps) }

// Steps returns a copy of the steps.
func (r Routine) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Execution tracks a single run of a routine against one device.
type Execution struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"device_id"`
	Source      string          `json:"source,omitempty"` // api, cli, ...
	Mode        Mode            `json:"mode"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Status      ExecutionStatus `json:"status"`

	StepsTotal     int `json:"steps_total"`
	StepsCompleted int `json:"steps_completed"`

	// FailedStep is the 1-based index of the step that stopped the run,
	// zero when none did.
	FailedStep int    `json:"failed_step,omitempty"`
	Error      string `json:"error,omitempty"`

	DurationMS *int `json:"duration_ms,omitempty"`
}

// ExecutionStatus represents the state of a routine execution.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"    // A step failed, later steps never sent
	StatusCancelled ExecutionStatus = "cancelled" // Context cancelled mid-run
)

// Mode selects how a routine reaches the device.
type Mode string

const (
	// ModeSequential sends each step and waits for its reply and delay.
	ModeSequential Mode = "sequential"

	// ModeBacklog hands the whole routine to the device as one Backlog0
	// command; the device runs the steps and delays itself.
	ModeBacklog Mode = "backlog"
)

// GenerateID returns a new execution ID.
func GenerateID() string {
	return uuid.NewString()
}
