package automation

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
)

// Logger is the logging surface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Target is the device a routine runs against. *device.Device implements it.
type Target interface {
	ID() string
	Send(ctx context.Context, cmd command.Command) (correlator.Reply, error)
}

// authorizer is implemented by targets that can reject a command before
// it is sent. Backlog runs use it since the device never sees the steps
// individually.
type authorizer interface {
	Authorize(cmd command.Command) error
}

// EventRoutineCompleted is broadcast when a routine run ends, successfully
// or not.
const EventRoutineCompleted = "routine.completed"

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Engine runs routines and records their executions.
//
// Thread Safety: Run is safe for concurrent use. Two routines run
// concurrently against the same device interleave their steps.
type Engine struct {
	repo   Repository // may be nil
	hub    WSHub      // may be nil
	logger Logger
}

// NewEngine creates a routine engine. repo and hub may be nil.
func NewEngine(repo Repository, hub WSHub, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{repo: repo, hub: hub, logger: logger}
}

// Run executes r against target one step at a time. Step i+1 is sent only
// after step i's reply has arrived and its delay has elapsed. The first
// failing step stops the run and is reported as a *RoutineError; earlier
// steps are not undone.
//
// The returned execution is non-nil whenever the routine started.
func (e *Engine) Run(ctx context.Context, target Target, r Routine, source string) (*Execution, error) {
	if r.Len() == 0 {
		return nil, ErrNoSteps
	}
	exec := e.begin(ctx, target, r, source, ModeSequential)

	var runErr *RoutineError
	for i, step := range r.steps {
		if err := e.runStep(ctx, target, step); err != nil {
			runErr = &RoutineError{Step: i + 1, Total: r.Len(), Command: step.Command, Err: err}
			break
		}
		exec.StepsCompleted++

		if step.Delay > 0 && i < r.Len()-1 {
			if err := sleep(ctx, step.Delay); err != nil {
				// The delay belongs to the step that was just sent; the next
				// one is the step that never ran.
				runErr = &RoutineError{Step: i + 2, Total: r.Len(), Command: r.steps[i+1].Command, Err: err}
				break
			}
		}
	}

	e.finish(ctx, exec, runErr)
	if runErr != nil {
		return exec, runErr
	}
	return exec, nil
}

// RunBacklog hands r to the device as a single Backlog0 command. Every
// step is authorized up front when target supports it. The device runs
// the steps and delays on its own, so a failure after the first step is
// not observed.
func (e *Engine) RunBacklog(ctx context.Context, target Target, r Routine, source string) (*Execution, error) {
	cmd, err := r.Backlog()
	if err != nil {
		return nil, err
	}

	if a, ok := target.(authorizer); ok {
		for i, step := range r.steps {
			if authErr := a.Authorize(step.Command); authErr != nil {
				return nil, &RoutineError{Step: i + 1, Total: r.Len(), Command: step.Command, Err: authErr}
			}
		}
	}

	exec := e.begin(ctx, target, r, source, ModeBacklog)

	var runErr *RoutineError
	if _, err := target.Send(ctx, cmd); err != nil {
		runErr = &RoutineError{Step: 1, Total: r.Len(), Command: r.steps[0].Command, Err: err}
	} else {
		exec.StepsCompleted = r.Len()
	}

	e.finish(ctx, exec, runErr)
	if runErr != nil {
		return exec, runErr
	}
	return exec, nil
}

func (e *Engine) runStep(ctx context.Context, target Target, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := step.Command
	if step.Timeout > 0 {
		cmd = cmd.WithTimeout(step.Timeout)
	}
	_, err := target.Send(ctx, cmd)
	return err
}

func (e *Engine) begin(ctx context.Context, target Target, r Routine, source string, mode Mode) *Execution {
	exec := &Execution{
		ID:         GenerateID(),
		DeviceID:   target.ID(),
		Source:     source,
		Mode:       mode,
		StartedAt:  time.Now().UTC(),
		Status:     StatusRunning,
		StepsTotal: r.Len(),
	}

	if e.repo != nil {
		if err := e.repo.CreateExecution(ctx, exec); err != nil {
			// The routine still runs; only its record is lost.
			e.logger.Error("failed to create execution record", "error", err)
		}
	}

	e.logger.Info("routine started",
		"device_id", exec.DeviceID,
		"execution_id", exec.ID,
		"mode", mode,
		"steps", exec.StepsTotal,
	)
	return exec
}

func (e *Engine) finish(ctx context.Context, exec *Execution, runErr *RoutineError) {
	completedAt := time.Now().UTC()
	exec.CompletedAt = &completedAt
	duration := int(completedAt.Sub(exec.StartedAt).Milliseconds())
	exec.DurationMS = &duration

	switch {
	case runErr == nil:
		exec.Status = StatusCompleted
	case ctx.Err() != nil:
		exec.Status = StatusCancelled
	default:
		exec.Status = StatusFailed
	}
	if runErr != nil {
		exec.FailedStep = runErr.Step
		exec.Error = runErr.Err.Error()
	}

	if e.repo != nil {
		// Record the outcome even when the caller's context is gone.
		if err := e.repo.UpdateExecution(context.WithoutCancel(ctx), exec); err != nil {
			e.logger.Error("failed to update execution record", "error", err)
		}
	}

	if runErr != nil {
		e.logger.Warn("routine stopped",
			"device_id", exec.DeviceID,
			"execution_id", exec.ID,
			"status", exec.Status,
			"step", runErr.Step,
			"command", runErr.Command.String(),
			"error", runErr.Err,
		)
	} else {
		e.logger.Info("routine complete",
			"device_id", exec.DeviceID,
			"execution_id", exec.ID,
			"steps", exec.StepsCompleted,
			"duration_ms", duration,
		)
	}

	if e.hub != nil {
		e.hub.Broadcast(EventRoutineCompleted, map[string]any{
			"device_id":    exec.DeviceID,
			"execution_id": exec.ID,
			"status":       string(exec.Status),
			"failed_step":  exec.FailedStep,
			"duration_ms":  duration,
		})
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
