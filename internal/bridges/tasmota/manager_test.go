package tasmota

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/influxdb"
)

// fakeTransport answers from canned JSON replies; anything else times out.
type fakeTransport struct {
	mu      sync.Mutex
	replies map[string]string
	handler func(correlator.Message)
	closed  bool
}

func (f *fakeTransport) Send(_ context.Context, cmd command.Command) (correlator.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.replies[cmd.String()]
	if !ok {
		return correlator.Reply{}, correlator.ErrTimeout
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return correlator.Reply{}, err
	}
	return correlator.Reply{Topics: []string{command.SuffixStatus}, Body: obj}, nil
}

func (f *fakeTransport) Stream(h func(correlator.Message)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) push(topic, payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(correlator.Classify(topic, []byte(payload)))
}

// fakeTransports hands out one fakeTransport per device address.
type fakeTransports struct {
	mu      sync.Mutex
	replies map[string]map[string]string
	fail    map[string]error
	opened  map[string]*fakeTransport
}

func newFakeTransports() *fakeTransports {
	return &fakeTransports{
		replies: map[string]map[string]string{},
		fail:    map[string]error{},
		opened:  map[string]*fakeTransport{},
	}
}

func (f *fakeTransports) open(_ context.Context, def device.Definition) (device.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr := def.Identity()
	if err := f.fail[addr]; err != nil {
		return nil, err
	}
	t := &fakeTransport{replies: f.replies[addr]}
	f.opened[addr] = t
	return t, nil
}

func (f *fakeTransports) get(addr string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[addr]
}

type recordedEvent struct {
	channel string
	payload any
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) Broadcast(channel string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{channel, payload})
}

func (f *fakeEvents) all() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

type fakeMetrics struct {
	mu      sync.Mutex
	energy  []influxdb.EnergyReading
	metrics map[string]float64
}

func (f *fakeMetrics) WriteEnergy(_ string, r influxdb.EnergyReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.energy = append(f.energy, r)
}

func (f *fakeMetrics) WriteDeviceMetric(id, metric string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metrics == nil {
		f.metrics = map[string]float64{}
	}
	f.metrics[id+"/"+metric] = v
}

func newRegistry(t *testing.T) *device.Registry {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if _, err := db.Migrate(ctx, os.DirFS("../../../migrations")); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return device.NewRegistry(device.NewSQLiteRepository(db.DB))
}

const stripStatus = `{
	"Status": {"Module": 18, "FriendlyName": ["Strip 1", "Strip 2"], "Topic": "strip"},
	"StatusSTS": {"POWER1": "ON", "POWER2": "OFF"}
}`

func newTestManager(t *testing.T, ft *fakeTransports) (*Manager, *fakeEvents, *fakeMetrics) {
	t.Helper()
	events, metrics := &fakeEvents{}, &fakeMetrics{}
	m, err := New(Options{
		Registry:   newRegistry(t),
		Transports: ft.open,
		Metrics:    metrics,
		Events:     events,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { m.Close() }) //nolint:errcheck // test cleanup
	return m, events, metrics
}

var seededDevices = []config.DeviceConfig{
	{Name: "Kitchen", Transport: "mqtt", Topic: "kitchen", Preset: "basic"},
	{Name: "Strip", Topic: "strip"},
	{Name: "Porch", Transport: "http", Host: "192.168.1.40", Capabilities: &config.CapabilitiesConfig{PowerChannels: 1, Energy: true}},
	{Name: "Garage", Topic: "garage", Preset: "basic"},
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{Transports: newFakeTransports().open}); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("New() error = %v, want ErrNoRegistry", err)
	}
	if _, err := New(Options{Registry: newRegistry(t)}); !errors.Is(err, ErrNoTransports) {
		t.Errorf("New() error = %v, want ErrNoTransports", err)
	}
}

func TestManagerStartsSeededDevices(t *testing.T) {
	ft := newFakeTransports()
	ft.replies["strip"] = map[string]string{"Status 0": stripStatus}
	ft.fail["garage"] = errors.New("broker unreachable")

	m, _, _ := newTestManager(t, ft)
	ctx := context.Background()

	if err := m.Seed(ctx, seededDevices); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	// Seeding twice updates rather than duplicates.
	if err := m.Seed(ctx, seededDevices); err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (garage unreachable)", m.Len())
	}

	summaries := m.Summaries()
	names := []string{summaries[0].Name, summaries[1].Name, summaries[2].Name}
	if names[0] != "Kitchen" || names[1] != "Porch" || names[2] != "Strip" {
		t.Errorf("Summaries() order = %v", names)
	}

	strip, err := m.Summary("strip")
	if err != nil {
		t.Fatalf("Summary(strip) error = %v", err)
	}
	if !strip.Probed || strip.Capabilities.PowerChannels != 2 {
		t.Errorf("strip = %+v, want probed with 2 channels", strip)
	}
	if p, ok := strip.State.PowerOf(1); !ok || p != command.PowerOn {
		t.Errorf("strip power1 = %v, %v; want ON seeded from the probe", p, ok)
	}

	porch, err := m.Summary("porch")
	if err != nil {
		t.Fatalf("Summary(porch) error = %v", err)
	}
	if porch.Transport != device.TransportHTTP || !porch.Capabilities.Energy || porch.Probed {
		t.Errorf("porch = %+v", porch)
	}

	if _, err := m.Device("garage"); !errors.Is(err, ErrNotManaged) {
		t.Errorf("Device(garage) error = %v, want ErrNotManaged", err)
	}
	if id, ok := m.ManagesTopic("kitchen"); !ok || id != "kitchen" {
		t.Errorf("ManagesTopic(kitchen) = %q, %v", id, ok)
	}
}

func TestManagerProbeFailureFallsBackToBasic(t *testing.T) {
	ft := newFakeTransports()
	m, _, _ := newTestManager(t, ft)
	ctx := context.Background()

	s, err := m.Add(ctx, device.Definition{Name: "Silent", Transport: device.TransportMQTT, Topic: "silent"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if s.Probed || s.Capabilities != device.Basic() {
		t.Errorf("summary = %+v, want unprobed basic", s)
	}
}

func TestManagerRelaysChanges(t *testing.T) {
	ft := newFakeTransports()
	m, events, metrics := newTestManager(t, ft)
	ctx := context.Background()

	if err := m.Seed(ctx, seededDevices[:1]); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	kitchen := ft.get("kitchen")
	kitchen.push("tele/kitchen/LWT", "Online")
	kitchen.push("stat/kitchen/POWER", "ON")
	kitchen.push("tele/kitchen/SENSOR", `{"ENERGY":{"Power":42.5,"Voltage":230,"Today":0.4,"Total":12.1}}`)
	kitchen.push("tele/kitchen/LWT", "Offline")

	got := events.all()
	wantChannels := []string{EventConnected, EventStateChanged, EventStateChanged, EventDisconnected}
	if len(got) != len(wantChannels) {
		t.Fatalf("events = %+v, want %v", got, wantChannels)
	}
	for i, want := range wantChannels {
		if got[i].channel != want {
			t.Errorf("event[%d] = %s, want %s", i, got[i].channel, want)
		}
	}
	if ev, ok := got[1].payload.(StateEvent); !ok || ev.DeviceID != "kitchen" || ev.Kind != device.KindPower {
		t.Errorf("power event = %+v", got[1].payload)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.energy) != 1 || metrics.energy[0].Power != 42.5 || metrics.energy[0].Total != 12.1 {
		t.Errorf("energy = %+v", metrics.energy)
	}
	if metrics.metrics["kitchen/power1"] != 1 {
		t.Errorf("power1 metric = %v, want 1", metrics.metrics["kitchen/power1"])
	}
	if v, ok := metrics.metrics["kitchen/online"]; !ok || v != 0 {
		t.Errorf("online metric = %v, %v; want 0 after offline", v, ok)
	}
}

func TestManagerAddRemove(t *testing.T) {
	ft := newFakeTransports()
	m, _, _ := newTestManager(t, ft)
	ctx := context.Background()

	def := device.Definition{Name: "Desk Lamp", Transport: device.TransportMQTT, Topic: "desk", Preset: "cct_light"}
	s, err := m.Add(ctx, def)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if s.ID != "desk-lamp" || !s.Capabilities.ColorTemp {
		t.Errorf("summary = %+v", s)
	}

	if _, err := m.Add(ctx, def); !errors.Is(err, device.ErrDeviceExists) {
		t.Errorf("duplicate Add() error = %v, want ErrDeviceExists", err)
	}
	other := device.Definition{Name: "Second Lamp", Transport: device.TransportMQTT, Topic: "desk"}
	if _, err := m.Add(ctx, other); !errors.Is(err, device.ErrTopicInUse) {
		t.Errorf("Add() on a taken topic error = %v, want ErrTopicInUse", err)
	}

	if err := m.Remove(ctx, "desk-lamp"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !ft.get("desk").isClosed() {
		t.Error("transport not closed on Remove")
	}
	if _, err := m.Device("desk-lamp"); !errors.Is(err, ErrNotManaged) {
		t.Errorf("Device() after Remove error = %v", err)
	}
	if err := m.Remove(ctx, "desk-lamp"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("second Remove() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestManagerClose(t *testing.T) {
	ft := newFakeTransports()
	m, _, _ := newTestManager(t, ft)
	ctx := context.Background()

	if err := m.Seed(ctx, seededDevices[:3]); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, addr := range []string{"kitchen", "strip", "192.168.1.40"} {
		if !ft.get(addr).isClosed() {
			t.Errorf("transport %s not closed", addr)
		}
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after Close", m.Len())
	}
	if _, err := m.Add(ctx, device.Definition{Name: "Late", Transport: device.TransportMQTT, Topic: "late"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Add() after Close error = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDiscoveryFactory(t *testing.T) {
	ft := newFakeTransports()
	m, _, _ := newTestManager(t, ft)

	dev, err := m.DiscoveryFactory()(context.Background(), "tasmota_ABC123")
	if err != nil {
		t.Fatalf("factory error = %v", err)
	}
	defer dev.Close() //nolint:errcheck // test cleanup

	if dev.ID() != "tasmota_ABC123" || dev.Capabilities() != device.Basic() {
		t.Errorf("device = %s %+v", dev.ID(), dev.Capabilities())
	}
	if m.Len() != 0 {
		t.Error("discovered handles must not be managed")
	}
}
