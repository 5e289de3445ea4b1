package command

import (
	"strconv"
	"strings"
	"time"
)

// Feature names the device capability a command needs.
type Feature string

const (
	FeatureNone      Feature = ""
	FeaturePower     Feature = "power"
	FeatureDimmer    Feature = "dimmer"
	FeatureColorTemp Feature = "color_temperature"
	FeatureRGB       Feature = "rgb"
	FeatureEnergy    Feature = "energy"
	FeatureFade      Feature = "fade"
)

// Reply topic suffixes.
const (
	SuffixResult = "RESULT"
	SuffixStatus = "STATUS"
)

// statusAllTimeout bounds collection of the STATUS* messages a Status 0 produces.
const statusAllTimeout = 3 * time.Second

// Kind identifies a command for correlation. Two commands of the same kind
// to the same device are answered by replies of the same shape.
type Kind string

// ResponseSpec describes which stat/<topic>/<suffix> messages answer a command.
type ResponseSpec struct {
	// Topics lists reply suffixes. Without Collect any one of them answers
	// the command; with Collect every one of them is awaited.
	Topics []string

	// Optional lists suffixes merged into a collected reply when they arrive
	// before it completes. Ignored without Collect.
	Optional []string

	// Collect merges several reply messages into one reply.
	Collect bool

	// Keys lists JSON keys identifying a RESULT payload as this command's
	// reply. Any one key is enough. Unused for STATUS suffixes.
	Keys []string

	// Timeout overrides the transport default when non-zero.
	Timeout time.Duration
}

// Command is one Tasmota command.
type Command struct {
	// Name is the command word including any index ("Power2").
	Name string

	// Payload is the argument, empty for queries.
	Payload string

	// Feature is the capability the device must have.
	Feature Feature

	// Channel is the relay channel addressed, 0 when not channel addressed.
	Channel int

	// Response describes the replies that answer this command.
	Response ResponseSpec

	kind Kind
}

// Kind returns the correlation kind of the command.
func (c Command) Kind() Kind {
	if c.kind != "" {
		return c.kind
	}
	return Kind(c.Name)
}

// String returns the command in "Name Payload" form, as used by the HTTP API
// and by Backlog.
func (c Command) String() string {
	if c.Payload == "" {
		return c.Name
	}
	return c.Name + " " + c.Payload
}

// IsQuery reports whether the command only reads state.
func (c Command) IsQuery() bool {
	return c.Payload == ""
}

// WithTimeout returns a copy of the command with a reply timeout.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Response.Timeout = d
	return c
}

// KeySpecificity ranks how firmly a RESULT key identifies the command it
// answers. Light replies echo POWER and Dimmer next to the field that
// changed ({"POWER":"ON","Dimmer":40} answers Dimmer 40), so those keys
// rank below every other key.
func KeySpecificity(key string) int {
	switch {
	case strings.HasPrefix(key, "POWER"):
		return 0
	case key == "Dimmer":
		return 1
	default:
		return 2
	}
}

// MatchResult reports whether a RESULT payload holding keys answers s and,
// if so, the specificity of the most specific key that matched.
func (s ResponseSpec) MatchResult(keys map[string]bool) (int, bool) {
	rank, ok := -1, false
	for _, k := range s.Keys {
		if keys[k] {
			ok = true
			rank = max(rank, KeySpecificity(k))
		}
	}
	return rank, ok
}

func result(keys ...string) ResponseSpec {
	return ResponseSpec{Topics: []string{SuffixResult}, Keys: keys}
}

// Raw builds an arbitrary command that is answered on RESULT by a payload
// carrying a key equal to its name.
func Raw(name, payload string) Command {
	return Command{Name: name, Payload: payload, Response: result(name)}
}

// =============================================================================
// Power
// =============================================================================

func powerKeys(idx PowerIndex) []string {
	key := "POWER" + strconv.Itoa(int(idx))
	if idx == 1 {
		// Single relay devices answer Power1 with a bare POWER key.
		return []string{key, "POWER"}
	}
	return []string{key}
}

// Power switches one relay channel.
func Power(idx PowerIndex, state PowerState) Command {
	c := PowerQuery(idx)
	c.Payload = state.String()
	return c
}

// PowerQuery reads one relay channel.
func PowerQuery(idx PowerIndex) Command {
	return Command{
		Name:     "Power" + strconv.Itoa(int(idx)),
		Feature:  FeaturePower,
		Channel:  int(idx),
		Response: result(powerKeys(idx)...),
	}
}

// =============================================================================
// Light
// =============================================================================

// SetDimmer sets the brightness.
func SetDimmer(d Dimmer) Command {
	c := DimmerQuery()
	c.Payload = strconv.Itoa(int(d))
	return c
}

// DimmerQuery reads the brightness.
func DimmerQuery() Command {
	return Command{Name: "Dimmer", Feature: FeatureDimmer, Response: result("Dimmer")}
}

// SetColorTemp sets the white color temperature.
func SetColorTemp(ct ColorTemp) Command {
	c := ColorTempQuery()
	c.Payload = strconv.Itoa(int(ct))
	return c
}

// ColorTempQuery reads the white color temperature.
func ColorTempQuery() Command {
	return Command{Name: "CT", Feature: FeatureColorTemp, Response: result("CT")}
}

// SetHSBColor sets the color.
func SetHSBColor(hsb HSBColor) Command {
	c := HSBColorQuery()
	c.Payload = hsb.String()
	return c
}

// HSBColorQuery reads the color.
func HSBColorQuery() Command {
	return Command{Name: "HSBColor", Feature: FeatureRGB, Response: result("HSBColor")}
}

// SetScheme selects a light effect.
func SetScheme(s Scheme) Command {
	c := SchemeQuery()
	c.Payload = strconv.Itoa(int(s))
	return c
}

// SchemeQuery reads the light effect.
func SchemeQuery() Command {
	return Command{Name: "Scheme", Feature: FeatureDimmer, Response: result("Scheme")}
}

// SetWakeupDuration sets the wake up scheme duration.
func SetWakeupDuration(d WakeupDuration) Command {
	c := WakeupDurationQuery()
	c.Payload = strconv.Itoa(int(d))
	return c
}

// WakeupDurationQuery reads the wake up scheme duration.
func WakeupDurationQuery() Command {
	return Command{Name: "WakeupDuration", Feature: FeatureDimmer, Response: result("WakeUpDuration", "WakeupDuration")}
}

// SetFade enables or disables fading between light states.
func SetFade(enabled bool) Command {
	c := FadeQuery()
	c.Payload = onOff(enabled)
	return c
}

// FadeQuery reads the fade setting.
func FadeQuery() Command {
	return Command{Name: "Fade", Feature: FeatureFade, Response: result("Fade")}
}

// SetFadeSpeed sets the fade transition speed.
func SetFadeSpeed(s FadeSpeed) Command {
	c := FadeSpeedQuery()
	c.Payload = strconv.Itoa(int(s))
	return c
}

// FadeSpeedQuery reads the fade transition speed.
func FadeSpeedQuery() Command {
	return Command{Name: "Speed", Feature: FeatureFade, Response: result("Speed")}
}

// SetFadeAtStartup enables or disables fading in at power up (SetOption91).
func SetFadeAtStartup(enabled bool) Command {
	return Command{
		Name:     "SetOption91",
		Payload:  onOff(enabled),
		Feature:  FeatureFade,
		Response: result("SetOption91"),
	}
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// =============================================================================
// Status and energy
// =============================================================================

// StatusType selects the Status section to read.
type StatusType int

const (
	StatusAll              StatusType = 0
	StatusDeviceParameters StatusType = 1
	StatusFirmware         StatusType = 2
	StatusLogging          StatusType = 3
	StatusMemory           StatusType = 4
	StatusNetwork          StatusType = 5
	StatusMQTT             StatusType = 6
	StatusTime             StatusType = 7
	StatusSensors          StatusType = 10
	StatusState            StatusType = 11

	// StatusAbbreviated sends Status without an argument.
	StatusAbbreviated StatusType = -1
)

// statusAllTopics are the sections a Status 0 always publishes.
var statusAllTopics = []string{
	"STATUS", "STATUS1", "STATUS2", "STATUS3", "STATUS4",
	"STATUS5", "STATUS6", "STATUS7", "STATUS11",
}

// Status reads one or all status sections.
//
// Status 0 is answered by one message per section, so its ResponseSpec
// collects them. STATUS10 only exists on devices with sensors and is
// optional.
func Status(t StatusType) Command {
	switch t {
	case StatusAbbreviated:
		return Command{
			Name:     "Status",
			Response: ResponseSpec{Topics: []string{SuffixStatus}},
			kind:     "Status",
		}
	case StatusAll:
		return Command{
			Name:    "Status",
			Payload: "0",
			Response: ResponseSpec{
				Topics:   append([]string(nil), statusAllTopics...),
				Optional: []string{"STATUS10"},
				Collect:  true,
				Timeout:  statusAllTimeout,
			},
			kind: "Status 0",
		}
	default:
		n := strconv.Itoa(int(t))
		return Command{
			Name:     "Status",
			Payload:  n,
			Response: ResponseSpec{Topics: []string{SuffixStatus + n}},
			kind:     Kind("Status " + n),
		}
	}
}

// EnergyQuery reads the energy sensor section (Status 10). Older firmware
// answers on STATUS8, which is accepted too.
func EnergyQuery() Command {
	return Command{
		Name:     "Status",
		Payload:  "10",
		Feature:  FeatureEnergy,
		Response: ResponseSpec{Topics: []string{"STATUS10", "STATUS8"}},
		kind:     "Status 10",
	}
}

// ResetEnergyTotal zeroes the total energy counter.
func ResetEnergyTotal() Command {
	return Command{
		Name:     "EnergyTotal",
		Payload:  "0",
		Feature:  FeatureEnergy,
		Response: result("EnergyTotal", "EnergyReset"),
	}
}

// ResetEnergyToday zeroes today's energy counter.
func ResetEnergyToday() Command {
	return Command{
		Name:     "EnergyToday",
		Payload:  "0",
		Feature:  FeatureEnergy,
		Response: result("EnergyToday", "EnergyReset"),
	}
}

// State asks the device to report its full runtime state on RESULT.
func State() Command {
	return Command{Name: "State", Response: result("UptimeSec", "Uptime")}
}
