package device

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
)

// neoCoolcamModule is the Tasmota module number of the Neo Coolcam plug,
// which always carries an energy meter.
const neoCoolcamModule = 49

// Capabilities is the feature set of one device. It is a value type; a
// device handle keeps its own copy for its whole lifetime.
type Capabilities struct {
	PowerChannels int  `json:"power_channels" yaml:"power_channels"`
	Dimmer        bool `json:"dimmer" yaml:"dimmer"`
	ColorTemp     bool `json:"color_temp" yaml:"color_temp"`
	RGB           bool `json:"rgb" yaml:"rgb"`
	Energy        bool `json:"energy" yaml:"energy"`
	Fade          bool `json:"fade" yaml:"fade"`
}

// NewCapabilities validates a capability set.
func NewCapabilities(c Capabilities) (Capabilities, error) {
	if c.PowerChannels < 1 || c.PowerChannels > command.MaxPowerChannels {
		return Capabilities{}, fmt.Errorf("%w: power channels %d (want 1-%d)",
			ErrInvalidCapabilities, c.PowerChannels, command.MaxPowerChannels)
	}
	if c.Fade && !c.Dimmer {
		return Capabilities{}, fmt.Errorf("%w: fade requires dimmer", ErrInvalidCapabilities)
	}
	return c, nil
}

// Basic is a single relay without extras.
func Basic() Capabilities {
	return Capabilities{PowerChannels: 1}
}

// Preset names accepted by Preset.
const (
	PresetBasic       = "basic"
	PresetNeoCoolcam  = "neo_coolcam"
	PresetRGBLight    = "rgb_light"
	PresetRGBCCTLight = "rgbcct_light"
	PresetCCTLight    = "cct_light"
)

var presets = map[string]Capabilities{
	PresetBasic:       {PowerChannels: 1},
	PresetNeoCoolcam:  {PowerChannels: 1, Energy: true},
	PresetRGBLight:    {PowerChannels: 1, Dimmer: true, RGB: true, Fade: true},
	PresetRGBCCTLight: {PowerChannels: 1, Dimmer: true, RGB: true, ColorTemp: true, Fade: true},
	PresetCCTLight:    {PowerChannels: 1, Dimmer: true, ColorTemp: true, Fade: true},
}

// Preset returns a named capability set.
func Preset(name string) (Capabilities, error) {
	c, ok := presets[name]
	if !ok {
		return Capabilities{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return c, nil
}

// PresetNames lists the known presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsLight reports whether any light control is supported.
func (c Capabilities) IsLight() bool {
	return c.Dimmer || c.ColorTemp || c.RGB
}

// Supports reports whether the feature is available.
func (c Capabilities) Supports(f command.Feature) bool {
	switch f {
	case command.FeatureNone, command.FeaturePower:
		return true
	case command.FeatureDimmer:
		return c.Dimmer
	case command.FeatureColorTemp:
		return c.ColorTemp
	case command.FeatureRGB:
		return c.RGB
	case command.FeatureEnergy:
		return c.Energy
	case command.FeatureFade:
		return c.Fade
	default:
		return false
	}
}

// Authorize checks cmd against the capability set without any I/O.
func (c Capabilities) Authorize(cmd command.Command) error {
	if !c.Supports(cmd.Feature) {
		return &CapabilityError{Command: cmd, Feature: cmd.Feature, Err: ErrUnsupported}
	}
	if cmd.Channel != 0 && (cmd.Channel < 1 || cmd.Channel > c.PowerChannels) {
		return &CapabilityError{Command: cmd, Feature: cmd.Feature, Channel: cmd.Channel, Err: ErrChannelOutOfRange}
	}
	return nil
}

// CapabilitiesFromStatus derives capabilities from a Status 0 reply:
//
//   - Module 49 has an energy meter.
//   - The number of FriendlyName entries is the relay count (1-8).
//   - Dimmer, CT and HSBColor in StatusSTS enable the matching light features.
//   - An ENERGY block in StatusSNS or StatusSTS enables energy monitoring.
func CapabilitiesFromStatus(r correlator.Reply) Capabilities {
	caps := Basic()

	var status struct {
		Module       int      `json:"Module"`
		FriendlyName []string `json:"FriendlyName"`
	}
	if r.Decode("Status", &status) == nil {
		if status.Module == neoCoolcamModule {
			caps.Energy = true
		}
		if n := len(status.FriendlyName); n > 0 {
			caps.PowerChannels = min(n, command.MaxPowerChannels)
		}
	}

	var sts map[string]json.RawMessage
	if r.Decode("StatusSTS", &sts) == nil {
		_, caps.Dimmer = sts["Dimmer"]
		_, caps.ColorTemp = sts["CT"]
		_, caps.RGB = sts["HSBColor"]
		if _, ok := sts["ENERGY"]; ok {
			caps.Energy = true
		}
	}
	caps.Fade = caps.Dimmer

	var sns map[string]json.RawMessage
	if r.Decode("StatusSNS", &sns) == nil {
		if _, ok := sns["ENERGY"]; ok {
			caps.Energy = true
		}
	}

	return caps
}

// CapabilitiesBuilder assembles a capability set. Build delegates to
// NewCapabilities.
type CapabilitiesBuilder struct {
	caps Capabilities
}

// NewCapabilitiesBuilder starts from a single relay.
func NewCapabilitiesBuilder() *CapabilitiesBuilder {
	return &CapabilitiesBuilder{caps: Basic()}
}

func (b *CapabilitiesBuilder) PowerChannels(n int) *CapabilitiesBuilder {
	b.caps.PowerChannels = n
	return b
}

func (b *CapabilitiesBuilder) Dimmer() *CapabilitiesBuilder {
	b.caps.Dimmer = true
	return b
}

func (b *CapabilitiesBuilder) ColorTemp() *CapabilitiesBuilder {
	b.caps.ColorTemp = true
	return b
}

func (b *CapabilitiesBuilder) RGB() *CapabilitiesBuilder {
	b.caps.RGB = true
	return b
}

func (b *CapabilitiesBuilder) Energy() *CapabilitiesBuilder {
	b.caps.Energy = true
	return b
}

func (b *CapabilitiesBuilder) Fade() *CapabilitiesBuilder {
	b.caps.Fade = true
	return b
}

// Build validates and returns the capability set.
func (b *CapabilitiesBuilder) Build() (Capabilities, error) {
	return NewCapabilities(b.caps)
}
