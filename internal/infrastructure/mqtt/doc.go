// Package mqtt manages broker sessions for Tasmota devices.
//
// This package manages:
//   - One paho connection per broker endpoint + credentials (BrokerKey)
//   - A topic map with owner reference counts (Attach/Detach)
//   - Reconnection as an explicit state machine
//   - Tasmota topic builders (cmnd/stat/tele)
//
// # Architecture
//
//	Device transports ──Attach/Publish──► Pool ──► Session ──► paho ──► Broker
//	                   ◄─────handlers────────────────┘
//
// Each Session owns a topic map: filter → set of owners. The broker sees one
// subscription per filter no matter how many devices share it. When the last
// owner detaches, the Pool closes the Session.
//
// # Reconnection
//
//	Disconnected ──Start──► Reconnecting ──connect──► Connected
//	      ▲                      ▲                        │
//	      └──── connection lost ─┴────────────────────────┘
//
// Paho retries with its own backoff. On every connect the session
// re-subscribes the full topic map, then enters Connected, then fires
// OnReconnected listeners. Publish waits for Connected, so outbound commands
// are held back until resubscription is done. A connection loss never fails
// in-flight work; callers are bounded by their own contexts.
//
// # Usage
//
//	pool := mqtt.NewPool(cfg.MQTT)
//	defer pool.Close()
//
//	broker := mqtt.DefaultBroker(cfg.MQTT)
//	session, err := pool.Attach(ctx, broker, "kitchen",
//	    mqtt.Topics{}.DeviceFilters("tasmota_kitchen"),
//	    func(topic string, payload []byte) error {
//	        log.Printf("%s = %s", topic, payload)
//	        return nil
//	    })
//	if err != nil {
//	    return err
//	}
//	err = session.Publish(ctx, mqtt.Topics{}.Command("tasmota_kitchen", "Power"), []byte("TOGGLE"))
package mqtt
