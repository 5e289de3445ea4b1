// Package device provides the Tasmota device handle, its state model and
// the persisted device definitions.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                              Device                                  │
//	│                                                                      │
//	│  Send ──▶ Capabilities.Authorize ──▶ Transport.Send ──▶ DecodeReply   │
//	│                  (capabilities.go)                          │        │
//	│                                                             ▼        │
//	│  Streamer ──▶ DecodeMessage ─────────────────────▶ Synchronizer.Apply │
//	│              (telemetry.go)                           (sync.go)      │
//	│                                                             │        │
//	│                                                             ▼        │
//	│                                                  Listeners.dispatch  │
//	│                                                    (listeners.go)    │
//	└──────────────────────────────────────────────────────────────────────┘
//
//	┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │───▶│    Repository    │    │    Validation    │
//	│   (registry.go)  │    │  (repository.go) │    │ (validation.go)  │
//	└──────────────────┘    └──────────────────┘    └──────────────────┘
//
// # Key Types
//
//   - Device: handle to one device; shared by pointer
//   - State: last known state, each field absent until first observed
//   - Update: a partial state applied by the Synchronizer
//   - Change: one typed state transition delivered to listeners
//   - Capabilities: feature flags checked before every command
//   - Definition: persisted configuration (transport, topic or host, capabilities)
//
// # State
//
// Command replies and telemetry both become an Update and go through
// Synchronizer.Apply. Only fields present in the update are touched, and one
// Change is emitted per field whose value differs. HSB color and color
// temperature are exclusive: setting one clears the other without a change
// event. Listeners are called synchronously, in detection order, on the
// goroutine that applied the update.
//
// # Usage
//
//	dev, err := device.New("kitchen", transport, device.Basic())
//	if err != nil {
//	    return err
//	}
//	dev.Listeners().OnPower(func(idx int, state command.PowerState) {
//	    log.Info("power", "channel", idx, "state", state)
//	})
//	if _, err := dev.PowerOn(ctx, 1); err != nil {
//	    return err
//	}
//
//	// A color command on a relay is rejected without any I/O.
//	err = dev.SetHSBColor(ctx, hsb) // *device.CapabilityError
//
// # Thread Safety
//
// Device, Synchronizer, Listeners and Registry are safe for concurrent use.
// The Repository implementation must also be thread-safe.
package device
