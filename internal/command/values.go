package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Value ranges accepted by Tasmota firmware.
const (
	// MaxPowerChannels is the highest relay index a device can expose.
	MaxPowerChannels = 8

	maxDimmer         = 100
	minColorTemp      = 153 // ~6500K
	maxColorTemp      = 500 // ~2000K
	maxHue            = 360
	maxPercent        = 100
	maxScheme         = 4
	minFadeSpeed      = 1
	maxFadeSpeed      = 40
	minWakeupDuration = 1
	maxWakeupDuration = 3000
)

// PowerState is the on/off state of a relay channel.
type PowerState int

const (
	PowerOff PowerState = iota
	PowerOn
	// PowerToggle is only meaningful as a command payload, never as observed state.
	PowerToggle
)

// String returns the Tasmota payload for the state.
func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "ON"
	case PowerToggle:
		return "TOGGLE"
	default:
		return "OFF"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p PowerState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePowerState parses the power values Tasmota reports.
// Accepts ON/OFF, 1/0 and true/false in any case.
func ParsePowerState(s string) (PowerState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "1", "TRUE":
		return PowerOn, nil
	case "OFF", "0", "FALSE":
		return PowerOff, nil
	default:
		return PowerOff, fmt.Errorf("%w: power state %q", ErrInvalidValue, s)
	}
}

// PowerIndex addresses one relay channel (1-8).
type PowerIndex uint8

// NewPowerIndex validates a relay channel number.
func NewPowerIndex(n int) (PowerIndex, error) {
	if n < 1 || n > MaxPowerChannels {
		return 0, fmt.Errorf("%w: power index %d (want 1-%d)", ErrOutOfRange, n, MaxPowerChannels)
	}
	return PowerIndex(n), nil
}

// Dimmer is a brightness level in percent (0-100).
type Dimmer uint8

// NewDimmer validates a brightness level.
func NewDimmer(n int) (Dimmer, error) {
	if n < 0 || n > maxDimmer {
		return 0, fmt.Errorf("%w: dimmer %d (want 0-%d)", ErrOutOfRange, n, maxDimmer)
	}
	return Dimmer(n), nil
}

// ColorTemp is a white color temperature in mireds (153-500).
type ColorTemp uint16

// NewColorTemp validates a color temperature.
func NewColorTemp(n int) (ColorTemp, error) {
	if n < minColorTemp || n > maxColorTemp {
		return 0, fmt.Errorf("%w: color temperature %d (want %d-%d)", ErrOutOfRange, n, minColorTemp, maxColorTemp)
	}
	return ColorTemp(n), nil
}

// Kelvin converts the mired value to an approximate Kelvin temperature.
func (c ColorTemp) Kelvin() int {
	if c == 0 {
		return 0
	}
	return 1_000_000 / int(c)
}

// HSBColor is a hue/saturation/brightness triple.
type HSBColor struct {
	Hue        uint16 `json:"hue"`
	Saturation uint8  `json:"saturation"`
	Brightness uint8  `json:"brightness"`
}

// NewHSBColor validates a color. Hue is 0-360, saturation and brightness 0-100.
func NewHSBColor(hue, saturation, brightness int) (HSBColor, error) {
	if hue < 0 || hue > maxHue {
		return HSBColor{}, fmt.Errorf("%w: hue %d (want 0-%d)", ErrOutOfRange, hue, maxHue)
	}
	if saturation < 0 || saturation > maxPercent {
		return HSBColor{}, fmt.Errorf("%w: saturation %d (want 0-%d)", ErrOutOfRange, saturation, maxPercent)
	}
	if brightness < 0 || brightness > maxPercent {
		return HSBColor{}, fmt.Errorf("%w: brightness %d (want 0-%d)", ErrOutOfRange, brightness, maxPercent)
	}
	return HSBColor{Hue: uint16(hue), Saturation: uint8(saturation), Brightness: uint8(brightness)}, nil
}

// ParseHSBColor parses the "hue,saturation,brightness" form Tasmota reports.
func ParseHSBColor(s string) (HSBColor, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return HSBColor{}, fmt.Errorf("%w: hsb color %q", ErrInvalidValue, s)
	}
	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return HSBColor{}, fmt.Errorf("%w: hsb color %q", ErrInvalidValue, s)
		}
		vals[i] = n
	}
	return NewHSBColor(vals[0], vals[1], vals[2])
}

// String returns the "hue,saturation,brightness" payload form.
func (c HSBColor) String() string {
	return fmt.Sprintf("%d,%d,%d", c.Hue, c.Saturation, c.Brightness)
}

// Scheme selects a light effect (0 single color, 1 wake up, 2 cycle up,
// 3 cycle down, 4 random).
type Scheme uint8

const (
	SchemeSingle Scheme = iota
	SchemeWakeup
	SchemeCycleUp
	SchemeCycleDown
	SchemeRandom
)

// NewScheme validates a scheme number.
func NewScheme(n int) (Scheme, error) {
	if n < 0 || n > maxScheme {
		return 0, fmt.Errorf("%w: scheme %d (want 0-%d)", ErrOutOfRange, n, maxScheme)
	}
	return Scheme(n), nil
}

// FadeSpeed is the fade transition speed (1 fast - 40 slow).
type FadeSpeed uint8

// NewFadeSpeed validates a fade speed.
func NewFadeSpeed(n int) (FadeSpeed, error) {
	if n < minFadeSpeed || n > maxFadeSpeed {
		return 0, fmt.Errorf("%w: fade speed %d (want %d-%d)", ErrOutOfRange, n, minFadeSpeed, maxFadeSpeed)
	}
	return FadeSpeed(n), nil
}

// WakeupDuration is the wake up scheme duration in seconds (1-3000).
type WakeupDuration uint16

// NewWakeupDuration validates a wake up duration.
func NewWakeupDuration(seconds int) (WakeupDuration, error) {
	if seconds < minWakeupDuration || seconds > maxWakeupDuration {
		return 0, fmt.Errorf("%w: wakeup duration %d (want %d-%d)", ErrOutOfRange, seconds, minWakeupDuration, maxWakeupDuration)
	}
	return WakeupDuration(seconds), nil
}
