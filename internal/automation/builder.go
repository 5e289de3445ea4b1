package automation

import (
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// Builder accumulates steps for Build. It holds nothing but the step list;
// all validation happens in Build.
//
//	r, err := automation.NewBuilder().
//	    PowerOn(1).
//	    SetDimmer(d).Delay(2 * time.Second).
//	    PowerOff(1).
//	    Build()
type Builder struct {
	steps []Step
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Command appends an arbitrary command.
func (b *Builder) Command(cmd command.Command) *Builder {
	b.steps = append(b.steps, Step{Command: cmd})
	return b
}

// Delay sets the pause after the most recent step. A delay with no step
// before it becomes a step without a command, which Build rejects.
func (b *Builder) Delay(d time.Duration) *Builder {
	if len(b.steps) == 0 {
		b.steps = append(b.steps, Step{Delay: d})
		return b
	}
	b.steps[len(b.steps)-1].Delay += d
	return b
}

// Timeout sets the reply deadline of the most recent step.
func (b *Builder) Timeout(d time.Duration) *Builder {
	if len(b.steps) > 0 {
		b.steps[len(b.steps)-1].Timeout = d
	}
	return b
}

func (b *Builder) PowerOn(idx command.PowerIndex) *Builder {
	return b.Command(command.Power(idx, command.PowerOn))
}

func (b *Builder) PowerOff(idx command.PowerIndex) *Builder {
	return b.Command(command.Power(idx, command.PowerOff))
}

func (b *Builder) PowerToggle(idx command.PowerIndex) *Builder {
	return b.Command(command.Power(idx, command.PowerToggle))
}

func (b *Builder) SetPower(idx command.PowerIndex, state command.PowerState) *Builder {
	return b.Command(command.Power(idx, state))
}

func (b *Builder) SetDimmer(v command.Dimmer) *Builder {
	return b.Command(command.SetDimmer(v))
}

func (b *Builder) SetColorTemp(v command.ColorTemp) *Builder {
	return b.Command(command.SetColorTemp(v))
}

func (b *Builder) SetHSBColor(v command.HSBColor) *Builder {
	return b.Command(command.SetHSBColor(v))
}

func (b *Builder) SetScheme(v command.Scheme) *Builder {
	return b.Command(command.SetScheme(v))
}

func (b *Builder) SetWakeupDuration(v command.WakeupDuration) *Builder {
	return b.Command(command.SetWakeupDuration(v))
}

func (b *Builder) SetFade(enabled bool) *Builder {
	return b.Command(command.SetFade(enabled))
}

func (b *Builder) SetFadeSpeed(v command.FadeSpeed) *Builder {
	return b.Command(command.SetFadeSpeed(v))
}

func (b *Builder) SetFadeAtStartup(enabled bool) *Builder {
	return b.Command(command.SetFadeAtStartup(enabled))
}

// Build validates the accumulated steps.
func (b *Builder) Build() (Routine, error) {
	return Build(b.steps)
}
