package tasmota

import (
	"strconv"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/influxdb"
)

// Event channels broadcast to WebSocket clients.
const (
	EventStateChanged = "device.state_changed"
	EventConnected    = "device.connected"
	EventDisconnected = "device.disconnected"
)

// MetricsWriter receives device telemetry. *influxdb.Client implements it.
type MetricsWriter interface {
	WriteEnergy(deviceID string, r influxdb.EnergyReading)
	WriteDeviceMetric(deviceID, metric string, value float64)
}

// Broadcaster fans events out to subscribers. Broadcast must not block.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// StateEvent is the payload of EventStateChanged.
type StateEvent struct {
	DeviceID string            `json:"device_id"`
	Kind     device.ChangeKind `json:"kind"`
	Change   device.Change     `json:"change"`
}

// ConnectionEvent is the payload of EventConnected and EventDisconnected.
type ConnectionEvent struct {
	DeviceID string `json:"device_id"`
}

// relay runs on the device's delivery goroutine; both sinks are
// non-blocking.
func (m *Manager) relay(id string, c device.Change) {
	if m.events != nil {
		switch c.(type) {
		case device.Connected:
			m.events.Broadcast(EventConnected, ConnectionEvent{DeviceID: id})
		case device.Disconnected:
			m.events.Broadcast(EventDisconnected, ConnectionEvent{DeviceID: id})
		default:
			m.events.Broadcast(EventStateChanged, StateEvent{DeviceID: id, Kind: c.Kind(), Change: c})
		}
	}
	if m.metrics != nil {
		exportMetrics(m.metrics, id, c)
	}
}

func exportMetrics(w MetricsWriter, id string, c device.Change) {
	switch c := c.(type) {
	case device.EnergyChanged:
		e := c.Energy
		w.WriteEnergy(id, influxdb.EnergyReading{
			Power:         e.Power,
			Voltage:       e.Voltage,
			Current:       e.Current,
			ApparentPower: e.ApparentPower,
			ReactivePower: e.ReactivePower,
			Factor:        e.Factor,
			Today:         e.Today,
			Yesterday:     e.Yesterday,
			Total:         e.Total,
		})
	case device.PowerChanged:
		w.WriteDeviceMetric(id, "power"+strconv.Itoa(c.Index), boolValue(c.State == command.PowerOn))
	case device.DimmerChanged:
		w.WriteDeviceMetric(id, "dimmer", float64(c.Dimmer))
	case device.SystemChanged:
		w.WriteDeviceMetric(id, "rssi", float64(c.System.RSSI))
	case device.Connected:
		w.WriteDeviceMetric(id, "online", 1)
	case device.Disconnected:
		w.WriteDeviceMetric(id, "online", 0)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
