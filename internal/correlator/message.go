package correlator

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Topic prefixes used by Tasmota.
const (
	PrefixCommand   = "cmnd"
	PrefixStat      = "stat"
	PrefixTelemetry = "tele"
)

// Class is the classification of an inbound message.
type Class int

const (
	ClassUnknown Class = iota
	ClassReply
	ClassPowerText
	ClassState
	ClassSensor
	ClassAvailability
	ClassTelemetry
)

func (c Class) String() string {
	switch c {
	case ClassReply:
		return "reply"
	case ClassPowerText:
		return "power_text"
	case ClassState:
		return "state"
	case ClassSensor:
		return "sensor"
	case ClassAvailability:
		return "availability"
	case ClassTelemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// Message is a decoded inbound message.
type Message struct {
	Topic   string
	Prefix  string
	Device  string
	Suffix  string
	Payload []byte
	Class   Class

	// Object holds the top-level keys when the payload is a JSON object.
	Object map[string]json.RawMessage
}

// Text returns the payload as trimmed text.
func (m Message) Text() string {
	return strings.TrimSpace(string(m.Payload))
}

// SplitTopic splits "prefix/device/suffix". The device part may itself
// contain slashes.
func SplitTopic(topic string) (prefix, device, suffix string, ok bool) {
	first := strings.IndexByte(topic, '/')
	last := strings.LastIndexByte(topic, '/')
	if first <= 0 || last <= first+1 || last == len(topic)-1 {
		return "", "", "", false
	}
	return topic[:first], topic[first+1 : last], topic[last+1:], true
}

// Classify decodes and classifies one inbound message. The precedence is
// documented on the package.
func Classify(topic string, payload []byte) Message {
	msg := Message{Topic: topic, Payload: payload}

	prefix, device, suffix, ok := SplitTopic(topic)
	if !ok {
		return msg
	}
	msg.Prefix, msg.Device, msg.Suffix = prefix, device, suffix
	msg.Object = decodeObject(payload)

	switch prefix {
	case PrefixStat:
		switch {
		case isReplySuffix(suffix) && msg.Object != nil:
			msg.Class = ClassReply
		case isIndexed(suffix, "POWER"):
			msg.Class = ClassPowerText
		}
	case PrefixTelemetry:
		switch suffix {
		case "LWT":
			msg.Class = ClassAvailability
		case "STATE":
			if msg.Object != nil {
				msg.Class = ClassState
			}
		case "SENSOR":
			if msg.Object != nil {
				msg.Class = ClassSensor
			}
		default:
			msg.Class = ClassTelemetry
		}
	}

	return msg
}

func isReplySuffix(suffix string) bool {
	return suffix == "RESULT" || isIndexed(suffix, "STATUS")
}

// isIndexed reports whether s is base followed by zero or more digits.
func isIndexed(s, base string) bool {
	if !strings.HasPrefix(s, base) {
		return false
	}
	for _, r := range s[len(base):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func decodeObject(payload []byte) map[string]json.RawMessage {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil
	}
	return obj
}
