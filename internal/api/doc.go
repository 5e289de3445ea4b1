// Package api serves the Tasmota devices over HTTP and WebSocket.
//
// REST endpoints under /api/v1 add, list and remove devices, read their
// synchronized state and drive them (power, dimmer, colour, fade, energy
// counters). Each command is written to the command log. Routines run as
// one request and are recorded in the execution history. POST /discovery
// opens a listening window on the broker and reports the devices that
// answered.
//
// # Events
//
// The Hub fans device events out to WebSocket clients that subscribed to
// their channel (device.state_changed, device.connected,
// device.disconnected, routine.completed, or "*" for all). Subscribing to
// state changes first delivers a device.snapshot event.
//
// # Security
//
// With security.jwt.enabled every route except /health needs an HS256
// bearer token signed with the configured secret (IssueToken mints one).
// The WebSocket upgrade may pass it as ?token= instead.
package api
