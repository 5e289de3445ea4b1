package mqtt

import (
	"fmt"
	"strings"
)

// Tasmota topic prefixes (FullTopic "%prefix%/%topic%/").
const (
	PrefixCommand   = "cmnd"
	PrefixStat      = "stat"
	PrefixTelemetry = "tele"
)

// Well-known suffixes.
const (
	SuffixLWT    = "LWT"
	SuffixState  = "STATE"
	SuffixSensor = "SENSOR"
	SuffixResult = "RESULT"
	SuffixStatus = "STATUS"
)

// Topics provides builders for Tasmota MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.Command("tasmota_kitchen", "Power1")
//	// Returns: "cmnd/tasmota_kitchen/Power1"
type Topics struct{}

// Command returns the topic a device listens on for a command.
func (Topics) Command(device, command string) string {
	return fmt.Sprintf("%s/%s/%s", PrefixCommand, device, command)
}

// Stat returns a stat topic, e.g. stat/tasmota_kitchen/RESULT.
func (Topics) Stat(device, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", PrefixStat, device, suffix)
}

// Telemetry returns a tele topic, e.g. tele/tasmota_kitchen/STATE.
func (Topics) Telemetry(device, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", PrefixTelemetry, device, suffix)
}

// DeviceFilters returns the subscriptions that carry every reply and
// telemetry message of one device.
func (t Topics) DeviceFilters(device string) []string {
	return []string{
		t.Stat(device, "+"),
		t.Telemetry(device, "+"),
	}
}

// =============================================================================
// Discovery Topics
// =============================================================================

// AllLWT matches the availability topic of every device.
func (t Topics) AllLWT() string { return t.Telemetry("+", SuffixLWT) }

// AllState matches the periodic state telemetry of every device.
func (t Topics) AllState() string { return t.Telemetry("+", SuffixState) }

// AllStatus matches the abbreviated status reply of every device.
func (t Topics) AllStatus() string { return t.Stat("+", SuffixStatus) }

// DiscoveryFilters returns the wildcard subscriptions used while discovering.
func (t Topics) DiscoveryFilters() []string {
	return []string{t.AllLWT(), t.AllState(), t.AllStatus()}
}

// ValidateFilter checks a subscription filter for MQTT wildcard rules:
// '+' must occupy a whole level and '#' must be the whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidTopic)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q misuses '#'", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q misuses '+'", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// validateTopic checks a publish topic: non-empty and wildcard-free.
func validateTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}
