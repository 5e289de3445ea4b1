package device

import "github.com/nerrad567/gray-logic-tasmota/internal/command"

// ChangeKind names a category of state change.
type ChangeKind string

const (
	KindPower        ChangeKind = "power"
	KindDimmer       ChangeKind = "dimmer"
	KindHSBColor     ChangeKind = "hsb_color"
	KindColorTemp    ChangeKind = "color_temp"
	KindScheme       ChangeKind = "scheme"
	KindFade         ChangeKind = "fade"
	KindSpeed        ChangeKind = "speed"
	KindEnergy       ChangeKind = "energy"
	KindSystem       ChangeKind = "system"
	KindConnected    ChangeKind = "connected"
	KindDisconnected ChangeKind = "disconnected"
)

// Change is one observed state transition. The concrete types below are
// the only implementations.
type Change interface {
	Kind() ChangeKind
}

// PowerChanged reports a relay channel switching.
type PowerChanged struct {
	Index int                `json:"index"`
	State command.PowerState `json:"state"`
}

// DimmerChanged reports a new brightness.
type DimmerChanged struct {
	Dimmer command.Dimmer `json:"dimmer"`
}

// HSBColorChanged reports a new color.
type HSBColorChanged struct {
	Color command.HSBColor `json:"color"`
}

// ColorTempChanged reports a new white color temperature.
type ColorTempChanged struct {
	ColorTemp command.ColorTemp `json:"color_temp"`
}

// SchemeChanged reports a new light effect.
type SchemeChanged struct {
	Scheme command.Scheme `json:"scheme"`
}

// FadeChanged reports fading being enabled or disabled.
type FadeChanged struct {
	Enabled bool `json:"enabled"`
}

// SpeedChanged reports a new fade speed.
type SpeedChanged struct {
	Speed command.FadeSpeed `json:"speed"`
}

// EnergyChanged reports a new energy reading.
type EnergyChanged struct {
	Energy Energy `json:"energy"`
}

// SystemChanged reports new diagnostics.
type SystemChanged struct {
	System System `json:"system"`
}

// Connected reports the device coming online.
type Connected struct{}

// Disconnected reports the device going offline.
type Disconnected struct{}

func (PowerChanged) Kind() ChangeKind     { return KindPower }
func (DimmerChanged) Kind() ChangeKind    { return KindDimmer }
func (HSBColorChanged) Kind() ChangeKind  { return KindHSBColor }
func (ColorTempChanged) Kind() ChangeKind { return KindColorTemp }
func (SchemeChanged) Kind() ChangeKind    { return KindScheme }
func (FadeChanged) Kind() ChangeKind      { return KindFade }
func (SpeedChanged) Kind() ChangeKind     { return KindSpeed }
func (EnergyChanged) Kind() ChangeKind    { return KindEnergy }
func (SystemChanged) Kind() ChangeKind    { return KindSystem }
func (Connected) Kind() ChangeKind        { return KindConnected }
func (Disconnected) Kind() ChangeKind     { return KindDisconnected }
