package device

import (
	"maps"
	"slices"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// Energy is one energy meter reading. Power figures are in W, VA and var,
// energy counters in kWh.
type Energy struct {
	Power          float64 `json:"power"`
	Voltage        float64 `json:"voltage"`
	Current        float64 `json:"current"`
	ApparentPower  float64 `json:"apparent_power"`
	ReactivePower  float64 `json:"reactive_power"`
	Factor         float64 `json:"factor"`
	Today          float64 `json:"today"`
	Yesterday      float64 `json:"yesterday"`
	Total          float64 `json:"total"`
	TotalStartTime string  `json:"total_start_time,omitempty"`
}

// System holds device diagnostics.
type System struct {
	Uptime    string `json:"uptime,omitempty"`
	UptimeSec int64  `json:"uptime_sec"`
	RSSI      int    `json:"rssi"`
	Signal    int    `json:"signal"`
	Heap      int    `json:"heap"`
}

// State is the last known state of a device. A nil field has never been
// observed. HSBColor and ColorTemp are never both set.
type State struct {
	Power     map[int]command.PowerState `json:"power,omitempty"`
	Dimmer    *command.Dimmer            `json:"dimmer,omitempty"`
	HSBColor  *command.HSBColor          `json:"hsb_color,omitempty"`
	ColorTemp *command.ColorTemp         `json:"color_temp,omitempty"`
	Scheme    *command.Scheme            `json:"scheme,omitempty"`
	Fade      *bool                      `json:"fade,omitempty"`
	Speed     *command.FadeSpeed         `json:"speed,omitempty"`
	Energy    *Energy                    `json:"energy,omitempty"`
	System    *System                    `json:"system,omitempty"`
	Online    *bool                      `json:"online,omitempty"`
}

// Clone returns a copy that shares nothing with s.
func (s State) Clone() State {
	out := State{
		Power:     maps.Clone(s.Power),
		Dimmer:    clonePtr(s.Dimmer),
		HSBColor:  clonePtr(s.HSBColor),
		ColorTemp: clonePtr(s.ColorTemp),
		Scheme:    clonePtr(s.Scheme),
		Fade:      clonePtr(s.Fade),
		Speed:     clonePtr(s.Speed),
		Energy:    clonePtr(s.Energy),
		System:    clonePtr(s.System),
		Online:    clonePtr(s.Online),
	}
	return out
}

// PowerOf returns the state of one channel.
func (s State) PowerOf(index int) (command.PowerState, bool) {
	p, ok := s.Power[index]
	return p, ok
}

// AnyOn reports whether any channel is on.
func (s State) AnyOn() bool {
	for _, p := range s.Power {
		if p == command.PowerOn {
			return true
		}
	}
	return false
}

// Channels returns the observed channel indices in ascending order.
func (s State) Channels() []int {
	return slices.Sorted(maps.Keys(s.Power))
}

// Update is a partial state. Only non-nil fields (and the channels present
// in Power) are applied.
type Update struct {
	Power     map[int]command.PowerState
	Dimmer    *command.Dimmer
	HSBColor  *command.HSBColor
	ColorTemp *command.ColorTemp
	Scheme    *command.Scheme
	Fade      *bool
	Speed     *command.FadeSpeed
	Energy    *Energy
	System    *System
	Online    *bool
}

// IsEmpty reports whether the update carries nothing.
func (u Update) IsEmpty() bool {
	return len(u.Power) == 0 && u.Dimmer == nil && u.HSBColor == nil &&
		u.ColorTemp == nil && u.Scheme == nil && u.Fade == nil && u.Speed == nil &&
		u.Energy == nil && u.System == nil && u.Online == nil
}

// Merge overlays other onto u.
func (u *Update) Merge(other Update) {
	if len(other.Power) > 0 {
		if u.Power == nil {
			u.Power = make(map[int]command.PowerState, len(other.Power))
		}
		maps.Copy(u.Power, other.Power)
	}
	mergePtr(&u.Dimmer, other.Dimmer)
	mergePtr(&u.HSBColor, other.HSBColor)
	mergePtr(&u.ColorTemp, other.ColorTemp)
	mergePtr(&u.Scheme, other.Scheme)
	mergePtr(&u.Fade, other.Fade)
	mergePtr(&u.Speed, other.Speed)
	mergePtr(&u.Energy, other.Energy)
	mergePtr(&u.System, other.System)
	mergePtr(&u.Online, other.Online)
}

// resolveColor drops one of HSBColor and ColorTemp when both are present.
// A saturated color wins; an unsaturated one means the white channels are
// in use.
func (u *Update) resolveColor() {
	if u.HSBColor == nil || u.ColorTemp == nil {
		return
	}
	if u.HSBColor.Saturation > 0 {
		u.ColorTemp = nil
	} else {
		u.HSBColor = nil
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func mergePtr[T any](dst **T, src *T) {
	if src != nil {
		*dst = clonePtr(src)
	}
}

func ptr[T any](v T) *T { return &v }
