package device

import "time"

// TransportKind selects how a device is reached.
type TransportKind string

const (
	TransportMQTT TransportKind = "mqtt"
	TransportHTTP TransportKind = "http"
)

// AllTransports returns every supported transport.
func AllTransports() []TransportKind {
	return []TransportKind{TransportMQTT, TransportHTTP}
}

// BrokerRef points an MQTT device at a broker other than the default one.
type BrokerRef struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"-" yaml:"password"`
}

// Definition is the persisted configuration of one device. It never holds
// device state.
// This matches the devices table in migrations/20261018_120000_tasmota_devices.up.sql.
type Definition struct {
	// Identity
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	Transport TransportKind `json:"transport" yaml:"transport"`

	// MQTT: the device topic (%topic% in Tasmota) and an optional broker.
	Topic  string     `json:"topic,omitempty" yaml:"topic"`
	Broker *BrokerRef `json:"broker,omitempty" yaml:"broker"`

	// HTTP: host, port (default 80) and web credentials.
	Host     string `json:"host,omitempty" yaml:"host"`
	Port     int    `json:"port,omitempty" yaml:"port"`
	HTTPS    bool   `json:"https,omitempty" yaml:"https"`
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"-" yaml:"password"`

	// Capabilities: an explicit set wins over a preset name. With neither,
	// capabilities are probed at start.
	Preset       string        `json:"preset,omitempty" yaml:"preset"`
	Capabilities *Capabilities `json:"capabilities,omitempty" yaml:"capabilities"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// DeepCopy creates a complete independent copy of the Definition.
func (d *Definition) DeepCopy() *Definition {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Broker = clonePtr(d.Broker)
	cp.Capabilities = clonePtr(d.Capabilities)
	return &cp
}

// Identity returns the address the device is known by: its topic for
// MQTT, its host for HTTP.
func (d *Definition) Identity() string {
	if d.Transport == TransportHTTP {
		return d.Host
	}
	return d.Topic
}

// StaticCapabilities resolves the configured capabilities. It reports
// false when the device should be probed instead.
func (d *Definition) StaticCapabilities() (Capabilities, bool, error) {
	if d.Capabilities != nil {
		c, err := NewCapabilities(*d.Capabilities)
		return c, err == nil, err
	}
	if d.Preset != "" {
		c, err := Preset(d.Preset)
		return c, err == nil, err
	}
	return Capabilities{}, false, nil
}
