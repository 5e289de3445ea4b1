// Package discovery finds Tasmota devices on an MQTT broker.
//
// A discovery run opens wildcard subscriptions for availability, state
// telemetry and status replies, asks every device on the group topic for
// its status, and collects what arrives until the window closes. Each
// distinct device topic seen in the window becomes one result: a device
// handle plus the state folded from the messages it sent.
//
//	engine := discovery.NewEngine(hub.Endpoint(broker), factory, "tasmotas")
//	results, err := engine.Discover(ctx, 5*time.Second)
//
// Devices that answer after the window closes are not reported. An empty
// result is not an error.
package discovery
