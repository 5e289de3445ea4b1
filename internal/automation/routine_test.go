package automation

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

func powerSteps(n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		state := command.PowerOn
		if i%2 == 1 {
			state = command.PowerOff
		}
		steps[i] = Step{Command: command.Power(1, state)}
	}
	return steps
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr error
	}{
		{"empty", nil, ErrNoSteps},
		{"one step", powerSteps(1), nil},
		{"max steps", powerSteps(MaxSteps), nil},
		{"too many steps", powerSteps(MaxSteps + 1), ErrTooManySteps},
		{"step without command", []Step{{Command: command.PowerQuery(1)}, {Delay: time.Second}}, ErrInvalidStep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Build(tt.steps)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, ErrInvalidRoutine) {
					t.Errorf("Build() error = %v, want it to wrap ErrInvalidRoutine", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if r.Len() != len(tt.steps) {
				t.Errorf("Len() = %d, want %d", r.Len(), len(tt.steps))
			}
		})
	}
}

func TestBuildClampsDelays(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, 0},
		{-time.Second, 0},
		{10 * time.Millisecond, MinDelay},
		{1500 * time.Millisecond, 1500 * time.Millisecond},
		{3 * time.Hour, MaxDelay},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			r, err := Build([]Step{{Command: command.PowerQuery(1), Delay: tt.in}})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got := r.Steps()[0].Delay; got != tt.want {
				t.Errorf("Delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoutineIsImmutable(t *testing.T) {
	steps := powerSteps(2)
	r, err := Build(steps)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	steps[0].Command = command.PowerQuery(2)
	r.Steps()[1].Command = command.PowerQuery(3)

	got := r.Steps()
	if got[0].Command.Name != "Power1" || got[1].Command.Name != "Power1" {
		t.Errorf("routine changed after build: %v, %v", got[0].Command, got[1].Command)
	}
}

func TestBuilder(t *testing.T) {
	d, _ := command.NewDimmer(40)
	r, err := NewBuilder().
		PowerOn(1).
		SetDimmer(d).Delay(2 * time.Second).Timeout(time.Second).
		PowerOff(1).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	steps := r.Steps()
	want := []string{"Power1 ON", "Dimmer 40", "Power1 OFF"}
	if len(steps) != len(want) {
		t.Fatalf("len(steps) = %d, want %d", len(steps), len(want))
	}
	for i, w := range want {
		if steps[i].Command.String() != w {
			t.Errorf("step %d = %q, want %q", i+1, steps[i].Command.String(), w)
		}
	}
	if steps[1].Delay != 2*time.Second || steps[1].Timeout != time.Second {
		t.Errorf("step 2 delay/timeout = %v/%v", steps[1].Delay, steps[1].Timeout)
	}
}

func TestBuilderLeadingDelayRejected(t *testing.T) {
	_, err := NewBuilder().Delay(time.Second).PowerOn(1).Build()
	if !errors.Is(err, ErrInvalidStep) {
		t.Errorf("Build() error = %v, want ErrInvalidStep", err)
	}
}

func TestBuilderTooManySteps(t *testing.T) {
	b := NewBuilder()
	for range MaxSteps + 1 {
		b.PowerToggle(1)
	}
	if _, err := b.Build(); !errors.Is(err, ErrTooManySteps) {
		t.Errorf("Build() error = %v, want ErrTooManySteps", err)
	}
}

func TestRoutineBacklog(t *testing.T) {
	d, _ := command.NewDimmer(40)
	r, err := NewBuilder().
		PowerOn(1).Delay(2 * time.Second).
		SetDimmer(d).Delay(250 * time.Millisecond).
		PowerOff(1).Delay(time.Second).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	cmd, err := r.Backlog()
	if err != nil {
		t.Fatalf("Backlog() error = %v", err)
	}
	if cmd.Name != "Backlog0" {
		t.Errorf("Name = %q, want Backlog0", cmd.Name)
	}
	if want := "Power1 ON; Delay 20; Dimmer 40; Delay 3; Power1 OFF"; cmd.Payload != want {
		t.Errorf("Payload = %q, want %q", cmd.Payload, want)
	}
	first := command.Power(1, command.PowerOn).Response
	if len(cmd.Response.Keys) != len(first.Keys) || cmd.Response.Keys[0] != first.Keys[0] {
		t.Errorf("Response.Keys = %v, want %v", cmd.Response.Keys, first.Keys)
	}
}

func TestRoutineBacklogCountsDelays(t *testing.T) {
	b := NewBuilder()
	for range 16 {
		b.PowerToggle(1).Delay(time.Second)
	}
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// 16 commands plus 15 delays.
	if _, err := r.Backlog(); !errors.Is(err, ErrTooManySteps) {
		t.Errorf("Backlog() error = %v, want ErrTooManySteps", err)
	}
}

func TestZeroRoutineBacklog(t *testing.T) {
	if _, err := (Routine{}).Backlog(); !errors.Is(err, ErrNoSteps) {
		t.Errorf("Backlog() error = %v, want ErrNoSteps", err)
	}
}
