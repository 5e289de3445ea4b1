package device

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
)

// DecodeMessage turns one inbound message into a state update. It reports
// false when the message carries no state.
func DecodeMessage(msg correlator.Message) (Update, bool) {
	switch msg.Class {
	case correlator.ClassReply, correlator.ClassState, correlator.ClassSensor:
		u := DecodeObject(msg.Object)
		return u, !u.IsEmpty()

	case correlator.ClassPowerText:
		idx := powerIndex(msg.Suffix)
		state, err := command.ParsePowerState(msg.Text())
		if idx == 0 || err != nil {
			return Update{}, false
		}
		return Update{Power: map[int]command.PowerState{idx: state}}, true

	case correlator.ClassAvailability:
		switch strings.ToLower(msg.Text()) {
		case "online":
			return Update{Online: ptr(true)}, true
		case "offline":
			return Update{Online: ptr(false)}, true
		}
	}
	return Update{}, false
}

// DecodeReply turns a command reply into a state update.
func DecodeReply(r correlator.Reply) Update {
	return DecodeObject(r.Body)
}

// DecodeObject extracts every known state field from a Tasmota JSON object.
// The StatusSTS and StatusSNS sections of Status replies are descended
// into. Fields with malformed or out-of-range values are skipped.
func DecodeObject(obj map[string]json.RawMessage) Update {
	var u Update
	if obj == nil {
		return u
	}

	for key, raw := range obj {
		if idx := powerIndex(key); idx > 0 {
			var s string
			if json.Unmarshal(raw, &s) != nil {
				continue
			}
			if state, err := command.ParsePowerState(s); err == nil {
				if u.Power == nil {
					u.Power = make(map[int]command.PowerState)
				}
				u.Power[idx] = state
			}
		}
	}

	if n, ok := intField(obj, "Dimmer"); ok {
		if d, err := command.NewDimmer(n); err == nil {
			u.Dimmer = &d
		}
	}
	if n, ok := intField(obj, "CT"); ok {
		if ct, err := command.NewColorTemp(n); err == nil {
			u.ColorTemp = &ct
		}
	}
	if s, ok := stringField(obj, "HSBColor"); ok {
		if hsb, err := command.ParseHSBColor(s); err == nil {
			u.HSBColor = &hsb
		}
	}
	if n, ok := intField(obj, "Scheme"); ok {
		if sc, err := command.NewScheme(n); err == nil {
			u.Scheme = &sc
		}
	}
	if n, ok := intField(obj, "Speed"); ok {
		if sp, err := command.NewFadeSpeed(n); err == nil {
			u.Speed = &sp
		}
	}
	if b, ok := switchField(obj, "Fade"); ok {
		u.Fade = &b
	}
	if sys, ok := decodeSystem(obj); ok {
		u.System = &sys
	}
	if raw, ok := obj["ENERGY"]; ok {
		if e, ok := decodeEnergy(raw); ok {
			u.Energy = &e
		}
	}

	for _, section := range []string{"StatusSTS", "StatusSNS"} {
		raw, ok := obj[section]
		if !ok {
			continue
		}
		var nested map[string]json.RawMessage
		if json.Unmarshal(raw, &nested) == nil {
			u.Merge(DecodeObject(nested))
		}
	}

	u.resolveColor()
	return u
}

// powerIndex maps POWER and POWER1..POWER8 to a channel index, 0 otherwise.
func powerIndex(key string) int {
	if key == "POWER" {
		return 1
	}
	rest, ok := strings.CutPrefix(key, "POWER")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > command.MaxPowerChannels {
		return 0
	}
	return n
}

func decodeSystem(obj map[string]json.RawMessage) (System, bool) {
	var sys System
	found := false

	if s, ok := stringField(obj, "Uptime"); ok {
		sys.Uptime = s
		found = true
	}
	if n, ok := intField(obj, "UptimeSec"); ok {
		sys.UptimeSec = int64(n)
		found = true
	}
	if n, ok := intField(obj, "Heap"); ok {
		sys.Heap = n
		found = true
	}
	if raw, ok := obj["Wifi"]; ok {
		var wifi struct {
			RSSI   *int `json:"RSSI"`
			Signal *int `json:"Signal"`
		}
		if json.Unmarshal(raw, &wifi) == nil {
			if wifi.RSSI != nil {
				sys.RSSI = *wifi.RSSI
				found = true
			}
			if wifi.Signal != nil {
				sys.Signal = *wifi.Signal
				found = true
			}
		}
	}
	return sys, found
}

func decodeEnergy(raw json.RawMessage) (Energy, bool) {
	var block map[string]json.RawMessage
	if json.Unmarshal(raw, &block) != nil {
		return Energy{}, false
	}
	var e Energy
	e.Power = floatField(block, "Power")
	e.Voltage = floatField(block, "Voltage")
	e.Current = floatField(block, "Current")
	e.ApparentPower = floatField(block, "ApparentPower")
	e.ReactivePower = floatField(block, "ReactivePower")
	e.Factor = floatField(block, "Factor")
	e.Today = floatField(block, "Today")
	e.Yesterday = floatField(block, "Yesterday")
	e.Total = floatField(block, "Total")
	e.TotalStartTime, _ = stringField(block, "TotalStartTime")
	return e, true
}

func intField(obj map[string]json.RawMessage, key string) (int, bool) {
	raw, ok := obj[key]
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(i), true
}

func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// floatField reads a number. Multi-phase meters report arrays, which are summed.
func floatField(obj map[string]json.RawMessage, key string) float64 {
	raw, ok := obj[key]
	if !ok {
		return 0
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var vals []float64
		if json.Unmarshal(raw, &vals) != nil {
			return 0
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum
	}
	var f float64
	if json.Unmarshal(raw, &f) != nil {
		return 0
	}
	return f
}

// switchField reads ON/OFF, 1/0 or a JSON boolean.
func switchField(obj map[string]json.RawMessage, key string) (bool, bool) {
	raw, ok := obj[key]
	if !ok {
		return false, false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, true
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		var n int
		if json.Unmarshal(raw, &n) != nil {
			return false, false
		}
		return n != 0, true
	}
	state, err := command.ParsePowerState(s)
	if err != nil {
		return false, false
	}
	return state == command.PowerOn, true
}
