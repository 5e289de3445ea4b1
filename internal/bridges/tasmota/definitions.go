package tasmota

import (
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
)

// DefinitionFromConfig converts a device declared in the config file. An
// empty ID is derived from the name, then from the topic or host, so the
// same entry maps to the same ID on every start.
func DefinitionFromConfig(c config.DeviceConfig) device.Definition {
	d := device.Definition{
		ID:        c.ID,
		Name:      c.Name,
		Transport: device.TransportKind(c.Transport),
		Topic:     c.Topic,
		Host:      c.Host,
		Port:      c.Port,
		HTTPS:     c.HTTPS,
		Username:  c.Username,
		Password:  c.Password,
		Preset:    c.Preset,
	}
	if d.Transport == "" {
		d.Transport = device.TransportMQTT
	}
	if d.Name == "" {
		d.Name = d.Identity()
	}
	if d.ID == "" {
		d.ID = device.GenerateSlug(d.Name)
		if d.ID == "" {
			d.ID = device.GenerateSlug(d.Identity())
		}
	}
	if c.Broker != nil {
		d.Broker = &device.BrokerRef{
			Host:     c.Broker.Host,
			Port:     c.Broker.Port,
			Username: c.Broker.Username,
			Password: c.Broker.Password,
		}
	}
	if c.Capabilities != nil {
		d.Capabilities = &device.Capabilities{
			PowerChannels: c.Capabilities.PowerChannels,
			Dimmer:        c.Capabilities.Dimmer,
			ColorTemp:     c.Capabilities.ColorTemp,
			RGB:           c.Capabilities.RGB,
			Energy:        c.Capabilities.Energy,
			Fade:          c.Capabilities.Fade,
		}
	}
	return d
}
