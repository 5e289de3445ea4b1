package mqtt

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"command", topics.Command("tasmota_kitchen", "Power1"), "cmnd/tasmota_kitchen/Power1"},
		{"command nested topic", topics.Command("home/kitchen", "Dimmer"), "cmnd/home/kitchen/Dimmer"},
		{"stat", topics.Stat("tasmota_kitchen", SuffixResult), "stat/tasmota_kitchen/RESULT"},
		{"telemetry", topics.Telemetry("tasmota_kitchen", SuffixSensor), "tele/tasmota_kitchen/SENSOR"},
		{"all lwt", topics.AllLWT(), "tele/+/LWT"},
		{"all state", topics.AllState(), "tele/+/STATE"},
		{"all status", topics.AllStatus(), "stat/+/STATUS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	want := []string{"stat/plug/+", "tele/plug/+"}
	if got := topics.DeviceFilters("plug"); !slices.Equal(got, want) {
		t.Errorf("DeviceFilters() = %v, want %v", got, want)
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		filter string
		valid  bool
	}{
		{"stat/plug/+", true},
		{"tele/+/LWT", true},
		{"#", true},
		{"tele/#", true},
		{"", false},
		{"tele/#/LWT", false},
		{"tele/a#", false},
		{"stat/plug+/RESULT", false},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			err := ValidateFilter(tt.filter)
			if tt.valid && err != nil {
				t.Errorf("ValidateFilter(%q) error = %v", tt.filter, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("ValidateFilter(%q) error = %v, want ErrInvalidTopic", tt.filter, err)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxDelay = 30

	b := Broker{Key: BrokerKey{Host: "broker.lan", Port: 8883, Username: "tasmota"}, Password: "pw", TLS: true}
	opts := buildClientOptions(cfg, b, "graylogic-test-1234")

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.lan:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "graylogic-test-1234" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "tasmota" || opts.Password != "pw" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.CleanSession || !opts.AutoReconnect || !opts.ConnectRetry || !opts.Order {
		t.Errorf("clean=%v auto=%v retry=%v order=%v, want all true",
			opts.CleanSession, opts.AutoReconnect, opts.ConnectRetry, opts.Order)
	}
	if opts.MaxReconnectInterval != 30*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 30s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil for a TLS broker")
	}

	plain := buildClientOptions(cfg, DefaultBroker(cfg), "x")
	if plain.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", plain.Servers)
	}
	if plain.Username != "" {
		t.Errorf("Username = %q, want empty for anonymous broker", plain.Username)
	}
}

func TestBrokerKeyString(t *testing.T) {
	if got := (BrokerKey{Host: "h", Port: 1883}).String(); got != "h:1883" {
		t.Errorf("String() = %q", got)
	}
	if got := (BrokerKey{Host: "h", Port: 1883, Username: "u"}).String(); got != "u@h:1883" {
		t.Errorf("String() = %q", got)
	}
}
