// Package influxdb writes Tasmota telemetry to InfluxDB v2.
//
// Two measurements are written, both tagged with device_id:
//   - energy: one point per energy meter reading (power, voltage, current,
//     counters in kWh)
//   - device_metrics: single values tagged with a metric name (relay
//     state, dimmer level, RSSI)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceMetric("plug-washer", "power", 1)
//
// Writes are batched by the official client according to batch_size and
// flush_interval and never block the caller. Batch failures arrive through
// SetOnError.
package influxdb
