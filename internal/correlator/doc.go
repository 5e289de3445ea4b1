// Package correlator gives request/response semantics to Tasmota's MQTT
// traffic.
//
// Tasmota answers a command published on cmnd/<topic>/<Command> with a JSON
// object on stat/<topic>/RESULT (or stat/<topic>/STATUSn for Status), but the
// same stat/ and tele/ topics also carry unsolicited traffic: periodic
// telemetry, plain-text POWER echoes, button presses and last-will messages.
// Nothing in a reply identifies the request it answers.
//
// # Classification
//
// Every inbound message goes through Classify, which applies a fixed
// precedence:
//
//  1. stat/<t>/RESULT or stat/<t>/STATUS[n] whose payload is a JSON object
//     is a reply (ClassReply).
//  2. stat/<t>/POWER[n] is a plain-text power echo (ClassPowerText).
//  3. tele/<t>/LWT, tele/<t>/STATE and tele/<t>/SENSOR are availability and
//     telemetry; any other tele/ suffix is generic telemetry.
//  4. Anything else, including a RESULT whose payload is not a JSON object,
//     is ClassUnknown.
//
// Only ClassReply messages can resolve a correlation. A message that is not
// confidently a reply is left for the state synchronizer.
//
// # Matching
//
// Pending requests are kept per device in send order. A reply is offered to
// the pending requests of its device whose ResponseSpec accepts the reply
// suffix and, for RESULT, one of whose reply keys is present in the payload.
// Light replies echo POWER and Dimmer beside the field that changed, so
// among the accepting requests the one matched by the most specific key
// (command.KeySpecificity) wins. Between equally specific matches the
// oldest request wins: Tasmota processes a device's commands in the order
// it receives them. Replies for different devices never interact.
//
// A request that is never matched fails with ErrTimeout when its deadline
// elapses. A disconnect does not fail pending requests early.
package correlator
