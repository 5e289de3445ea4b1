// Package command defines the Tasmota command tokens sent to devices and the
// typed values they carry.
//
// A Command is an opaque token from the point of view of the transports: it
// has a name ("Power2", "Dimmer", "Status"), an optional payload ("ON", "75",
// "0"), the device feature it needs, and a ResponseSpec describing which
// replies answer it. Wire formatting is limited to what the transports need:
//
//	HTTP: /cm?cmnd=Power2%20ON
//	MQTT: cmnd/<topic>/Power2  payload "ON"
//
// # Values
//
// Value types (PowerIndex, Dimmer, ColorTemp, HSBColor, Scheme, FadeSpeed,
// WakeupDuration) are validated once, by their constructors. Everything
// downstream treats them as already valid.
//
// # Usage
//
//	dim, err := command.NewDimmer(75)
//	if err != nil {
//	    return err
//	}
//	cmd := command.SetDimmer(dim)
//	// cmd.Name == "Dimmer", cmd.Payload == "75"
package command
