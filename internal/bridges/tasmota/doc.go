// Package tasmota runs the configured Tasmota devices.
//
// The Manager reads definitions from the device registry (seeded from the
// config file), opens one transport per device and builds its handle with
// static or probed capabilities. Every state change is relayed to:
//   - a Broadcaster (the WebSocket hub) as device.state_changed,
//     device.connected or device.disconnected
//   - a MetricsWriter (InfluxDB) as energy and device_metrics points
//
// Devices that cannot be reached at start are logged and skipped. A failed
// capability probe falls back to a single relay.
//
//	mgr, err := tasmota.New(tasmota.Options{
//	    Registry:   registry,
//	    Transports: tasmota.NewTransportFactory(hub, cfg.MQTT, cfg.GetHTTPTimeout()),
//	    Metrics:    influx,
//	    Events:     wsHub,
//	})
//	if err := mgr.Seed(ctx, cfg.Tasmota.Devices); err != nil { ... }
//	if err := mgr.Start(ctx); err != nil { ... }
//	defer mgr.Close()
package tasmota
