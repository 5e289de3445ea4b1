package mqtt

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultSubscribeTimeout bounds a subscribe or unsubscribe round trip.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// BrokerKey identifies one physical broker session. Devices that resolve to
// the same key share a session.
type BrokerKey struct {
	Host     string
	Port     int
	Username string
}

// String returns host:port, prefixed with the username when one is set.
func (k BrokerKey) String() string {
	addr := k.Host + ":" + strconv.Itoa(k.Port)
	if k.Username == "" {
		return addr
	}
	return k.Username + "@" + addr
}

// Broker is a resolved broker endpoint with credentials.
type Broker struct {
	Key      BrokerKey
	Password string
	TLS      bool
}

// DefaultBroker returns the broker described by the mqtt config section.
func DefaultBroker(cfg config.MQTTConfig) Broker {
	return Broker{
		Key: BrokerKey{
			Host:     cfg.Broker.Host,
			Port:     cfg.Broker.Port,
			Username: cfg.Auth.Username,
		},
		Password: cfg.Auth.Password,
		TLS:      cfg.Broker.TLS,
	}
}

// newClientID returns a client ID that is unique per session, so two
// sessions from the same process never kick each other off the broker.
func newClientID(prefix string) string {
	if prefix == "" {
		prefix = "graylogic-tasmota"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// buildClientOptions creates paho MQTT options for one broker session.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - A unique client ID
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff, including the first attempt
//   - Clean session mode; subscriptions are restored by the session itself
//   - In-order message delivery so per-device callbacks never interleave
func buildClientOptions(cfg config.MQTTConfig, b Broker, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, b.Key.Host, b.Key.Port))

	opts.SetClientID(clientID)

	if b.Key.Username != "" {
		opts.SetUsername(b.Key.Username)
		opts.SetPassword(b.Password)
	}

	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	initial := time.Duration(cfg.Reconnect.InitialDelay) * time.Second
	if initial <= 0 {
		initial = time.Second
	}
	opts.SetConnectRetryInterval(initial)
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if b.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
