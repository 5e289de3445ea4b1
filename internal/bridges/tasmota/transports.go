package tasmota

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tasmota/internal/transport"
)

// TransportFactory opens the transport a definition describes.
type TransportFactory func(ctx context.Context, def device.Definition) (device.Transport, error)

// NewTransportFactory returns the factory used in production: MQTT
// devices share sessions through hub, HTTP devices get their own client.
func NewTransportFactory(hub *transport.Hub, mqttCfg config.MQTTConfig, httpTimeout time.Duration) TransportFactory {
	defaultBroker := mqtt.DefaultBroker(mqttCfg)

	return func(ctx context.Context, def device.Definition) (device.Transport, error) {
		switch def.Transport {
		case device.TransportMQTT:
			t, err := hub.Open(ctx, BrokerFor(def, defaultBroker), def.Topic)
			if err != nil {
				return nil, err
			}
			return t, nil
		case device.TransportHTTP:
			t, err := transport.NewHTTP(transport.HTTPConfig{
				Host:     def.Host,
				Port:     def.Port,
				HTTPS:    def.HTTPS,
				Username: def.Username,
				Password: def.Password,
				Timeout:  httpTimeout,
			})
			if err != nil {
				return nil, err
			}
			return t, nil
		default:
			return nil, fmt.Errorf("%w: %q", device.ErrInvalidTransport, def.Transport)
		}
	}
}

// BrokerFor resolves the broker of an MQTT definition. Devices without
// their own broker use the default one.
func BrokerFor(def device.Definition, defaultBroker mqtt.Broker) mqtt.Broker {
	if def.Broker == nil {
		return defaultBroker
	}
	port := def.Broker.Port
	if port == 0 {
		port = defaultBroker.Key.Port
	}
	return mqtt.Broker{
		Key: mqtt.BrokerKey{
			Host:     def.Broker.Host,
			Port:     port,
			Username: def.Broker.Username,
		},
		Password: def.Broker.Password,
		TLS:      defaultBroker.TLS,
	}
}
