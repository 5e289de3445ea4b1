// Package transport connects device handles to Tasmota devices.
//
// Two transports implement device.Transport:
//
//   - MQTT: commands are published to cmnd/<topic>/<Command> over a shared
//     broker session; replies arrive on stat/<topic>/... and are matched to
//     the waiting caller by the broker's correlator. Everything that is not
//     a matched reply is streamed to the device for state tracking.
//   - HTTP: each command is one GET /cm?cmnd=... request; the JSON body is
//     the reply. There is no inbound stream.
//
// A Hub hands out MQTT transports. It keeps one correlator per broker so the
// pending-reply table lives next to the session it serves, and one broker
// subscription per device topic: transports opened for the same topic share
// it, each inbound message is offered to the correlator once, and what is
// not a reply is streamed to every transport on the topic.
package transport
