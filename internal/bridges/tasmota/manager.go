package tasmota

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/discovery"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
)

const (
	// defaultProbeTimeout bounds the Status 0 capability probe.
	defaultProbeTimeout = 5 * time.Second

	// refreshTimeout bounds the initial state query of one device.
	refreshTimeout = 15 * time.Second
)

// Logger is the logging surface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager.
type Options struct {
	// Registry holds the persisted device definitions. Required.
	Registry *device.Registry

	// Transports opens device transports. Required.
	Transports TransportFactory

	// Metrics receives energy and relay metrics. Optional.
	Metrics MetricsWriter

	// Events receives state change broadcasts. Optional.
	Events Broadcaster

	// ProbeTimeout bounds capability probing; zero means 5s.
	ProbeTimeout time.Duration

	Logger Logger
}

// managed is one running device.
type managed struct {
	def    device.Definition
	dev    *device.Device
	probed bool
	sub    device.SubscriptionID
}

// Summary describes a running device.
type Summary struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Transport    device.TransportKind `json:"transport"`
	Address      string               `json:"address"`
	Capabilities device.Capabilities  `json:"capabilities"`
	Probed       bool                 `json:"probed"`
	State        device.State         `json:"state"`
}

// Manager owns the configured devices: it opens their transports, keeps
// their handles and relays their state changes to metrics and events.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager struct {
	registry     *device.Registry
	transports   TransportFactory
	metrics      MetricsWriter
	events       Broadcaster
	probeTimeout time.Duration
	logger       Logger

	mu      sync.RWMutex
	devices map[string]*managed
	closed  bool

	// ctx is cancelled on Close to abort background state queries.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager. Call Start to bring devices up.
func New(opts Options) (*Manager, error) {
	if opts.Registry == nil {
		return nil, ErrNoRegistry
	}
	if opts.Transports == nil {
		return nil, ErrNoTransports
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry:     opts.Registry,
		transports:   opts.Transports,
		metrics:      opts.Metrics,
		events:       opts.Events,
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger,
		devices:      make(map[string]*managed),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Seed writes the devices declared in the config file into the registry.
// Entries already stored are updated, so the file stays authoritative for
// the devices it names.
func (m *Manager) Seed(ctx context.Context, devices []config.DeviceConfig) error {
	// Stored definitions must be cached before topic conflicts can be seen.
	if err := m.registry.RefreshCache(ctx); err != nil {
		return err
	}
	var errs []error
	for _, c := range devices {
		def := DefinitionFromConfig(c)
		if err := m.registry.Upsert(ctx, &def); err != nil {
			errs = append(errs, fmt.Errorf("seeding %s: %w", def.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Start loads every definition from the registry and brings each device
// up. A device that cannot be reached is logged and left out; Start only
// fails when the registry cannot be read.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.registry.RefreshCache(ctx); err != nil {
		return err
	}

	started := 0
	for _, def := range m.registry.List() {
		if err := m.start(ctx, def); err != nil {
			m.logger.Warn("device not started", "id", def.ID, "address", def.Identity(), "error", err)
			continue
		}
		started++
	}
	m.logger.Info("tasmota devices started", "started", started, "configured", m.registry.Count())
	return nil
}

// Add persists a new definition and starts the device.
func (m *Manager) Add(ctx context.Context, def device.Definition) (Summary, error) {
	if err := m.registry.Create(ctx, &def); err != nil {
		return Summary{}, err
	}
	if err := m.start(ctx, def); err != nil {
		return Summary{}, err
	}
	return m.Summary(def.ID)
}

// Remove stops the device and deletes its definition.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := m.stop(id); err != nil && !errors.Is(err, ErrNotManaged) {
		return err
	}
	return m.registry.Delete(ctx, id)
}

func (m *Manager) start(ctx context.Context, def device.Definition) error {
	m.mu.RLock()
	closed := m.closed
	_, running := m.devices[def.ID]
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if running {
		return fmt.Errorf("%w: %s", device.ErrDeviceExists, def.ID)
	}

	t, err := m.transports(ctx, def)
	if err != nil {
		return fmt.Errorf("opening transport: %w", err)
	}

	dev, probed, err := m.build(ctx, def, t)
	if err != nil {
		_ = t.Close()
		return err
	}

	entry := &managed{def: def, dev: dev, probed: probed}
	entry.sub = dev.Listeners().OnStateChanged(func(c device.Change) { m.relay(def.ID, c) })

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = dev.Close()
		return ErrClosed
	}
	m.devices[def.ID] = entry
	m.mu.Unlock()

	m.logger.Info("device started",
		"id", def.ID,
		"transport", def.Transport,
		"address", def.Identity(),
		"capabilities", dev.Capabilities())

	m.wg.Add(1)
	go m.refresh(entry)
	return nil
}

// build creates the handle with static capabilities, or probes them. A
// failed probe falls back to a single relay so the device stays usable.
func (m *Manager) build(ctx context.Context, def device.Definition, t device.Transport) (*device.Device, bool, error) {
	opts := []device.Option{device.WithLogger(m.logger)}

	caps, static, err := def.StaticCapabilities()
	if err != nil {
		return nil, false, err
	}
	if static {
		dev, err := device.New(def.ID, t, caps, opts...)
		return dev, false, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	dev, err := device.Probe(probeCtx, def.ID, t, opts...)
	if err == nil {
		return dev, true, nil
	}
	m.logger.Warn("capability probe failed, assuming a single relay", "id", def.ID, "error", err)
	dev, err = device.New(def.ID, t, device.Basic(), opts...)
	return dev, false, err
}

// refresh queries the current state once so the first reads are not empty.
func (m *Manager) refresh(entry *managed) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, refreshTimeout)
	defer cancel()
	if _, err := entry.dev.QueryState(ctx); err != nil && m.ctx.Err() == nil {
		m.logger.Warn("initial state query failed", "id", entry.def.ID, "error", err)
	}
}

func (m *Manager) stop(id string) error {
	m.mu.Lock()
	entry, ok := m.devices[id]
	delete(m.devices, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotManaged, id)
	}

	entry.dev.Listeners().Unsubscribe(entry.sub)
	if err := entry.dev.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", id, err)
	}
	m.logger.Info("device stopped", "id", id)
	return nil
}

// Device returns the handle of a running device.
func (m *Manager) Device(id string) (*device.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotManaged, id)
	}
	return entry.dev, nil
}

// Summary describes one running device.
func (m *Manager) Summary(id string) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.devices[id]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrNotManaged, id)
	}
	return summarize(entry), nil
}

// Summaries describes every running device, sorted by name.
func (m *Manager) Summaries() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.devices))
	for _, entry := range m.devices {
		out = append(out, summarize(entry))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ManagesTopic reports whether a running MQTT device uses topic.
func (m *Manager) ManagesTopic(topic string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, entry := range m.devices {
		if entry.def.Transport == device.TransportMQTT && entry.def.Topic == topic {
			return id, true
		}
	}
	return "", false
}

// Len returns the number of running devices.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

func summarize(e *managed) Summary {
	return Summary{
		ID:           e.def.ID,
		Name:         e.def.Name,
		Transport:    e.def.Transport,
		Address:      e.def.Identity(),
		Capabilities: e.dev.Capabilities(),
		Probed:       e.probed,
		State:        e.dev.State(),
	}
}

// DiscoveryFactory builds the short-lived handles reported by discovery.
// They carry a single-relay capability set and must be closed by the
// caller.
func (m *Manager) DiscoveryFactory() discovery.DeviceFactory {
	return func(ctx context.Context, topic string) (*device.Device, error) {
		def := device.Definition{ID: topic, Name: topic, Transport: device.TransportMQTT, Topic: topic}
		t, err := m.transports(ctx, def)
		if err != nil {
			return nil, err
		}
		dev, err := device.New(topic, t, device.Basic(), device.WithLogger(m.logger))
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		return dev, nil
	}
}

// Close stops every device. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	var errs []error
	for _, id := range ids {
		if err := m.stop(id); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Info("tasmota manager stopped", "devices", len(ids))
	return errors.Join(errs...)
}
