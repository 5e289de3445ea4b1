package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementEnergy  = "energy"
	MeasurementMetrics = "device_metrics"
)

// EnergyReading is one energy meter sample. Power figures are in W, VA
// and var, counters in kWh.
type EnergyReading struct {
	Power         float64
	Voltage       float64
	Current       float64
	ApparentPower float64
	ReactivePower float64
	Factor        float64
	Today         float64
	Yesterday     float64
	Total         float64
}

// WriteEnergy records an energy sample for a device.
//
//	client.WriteEnergy("plug-washer", influxdb.EnergyReading{Power: 1830, Today: 1.2})
func (c *Client) WriteEnergy(deviceID string, r EnergyReading) {
	c.write(write.NewPoint(
		MeasurementEnergy,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"power_watts":    r.Power,
			"voltage":        r.Voltage,
			"current":        r.Current,
			"apparent_power": r.ApparentPower,
			"reactive_power": r.ReactivePower,
			"power_factor":   r.Factor,
			"today_kwh":      r.Today,
			"yesterday_kwh":  r.Yesterday,
			"total_kwh":      r.Total,
		},
		c.now(),
	))
}

// WriteDeviceMetric records a single named value, such as a relay state
// (1 or 0), a dimmer level or the WiFi RSSI.
func (c *Client) WriteDeviceMetric(deviceID, metric string, value float64) {
	c.write(write.NewPoint(
		MeasurementMetrics,
		map[string]string{"device_id": deviceID, "metric": metric},
		map[string]any{"value": value},
		c.now(),
	))
}
