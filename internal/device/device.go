package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
)

// Logger defines the logging interface used by the device package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport delivers commands to one device and returns the reply.
type Transport interface {
	Send(ctx context.Context, cmd command.Command) (correlator.Reply, error)
	Close() error
}

// Streamer is implemented by transports that also deliver unsolicited
// messages (telemetry, power echoes, availability). The handler is called
// from the transport's receive goroutine.
type Streamer interface {
	Stream(handler func(correlator.Message)) error
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(logger Logger) Option {
	return func(d *Device) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithListeners shares an existing listener registry.
func WithListeners(l *Listeners) Option {
	return func(d *Device) {
		if l != nil {
			d.listeners = l
		}
	}
}

// Device is the handle to one Tasmota device. A *Device is safe for
// concurrent use; every holder of the pointer sees the same transport and
// state.
type Device struct {
	id        string
	transport Transport
	caps      Capabilities
	listeners *Listeners
	sync      *Synchronizer
	logger    Logger
	closed    atomic.Bool
}

// New creates a handle with a static capability set. No I/O is done.
func New(id string, t Transport, caps Capabilities, opts ...Option) (*Device, error) {
	caps, err := NewCapabilities(caps)
	if err != nil {
		return nil, err
	}
	d := &Device{
		id:        id,
		transport: t,
		caps:      caps,
		listeners: NewListeners(),
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.listeners.SetLogger(d.logger)
	d.sync = NewSynchronizer(d.listeners)

	if s, ok := t.(Streamer); ok {
		if err := s.Stream(d.handle); err != nil {
			return nil, fmt.Errorf("streaming %s: %w", id, err)
		}
	}
	return d, nil
}

// Probe creates a handle whose capabilities come from a Status 0 query.
// The status reply also seeds the initial state.
func Probe(ctx context.Context, id string, t Transport, opts ...Option) (*Device, error) {
	reply, err := t.Send(ctx, command.Status(command.StatusAll))
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", id, err)
	}
	d, err := New(id, t, CapabilitiesFromStatus(reply), opts...)
	if err != nil {
		return nil, err
	}
	d.sync.Apply(DecodeReply(reply))
	return d, nil
}

// ID returns the device identity (MQTT topic or HTTP host).
func (d *Device) ID() string { return d.id }

// Capabilities returns the capability set.
func (d *Device) Capabilities() Capabilities { return d.caps }

// Listeners returns the listener registry.
func (d *Device) Listeners() *Listeners { return d.listeners }

// State returns a snapshot of the last known state.
func (d *Device) State() State { return d.sync.State() }

// Apply merges an update into the device state and notifies listeners.
func (d *Device) Apply(u Update) []Change { return d.sync.Apply(u) }

// Authorize reports whether the device's capabilities allow cmd.
func (d *Device) Authorize(cmd command.Command) error { return d.caps.Authorize(cmd) }

// Send authorizes cmd, dispatches it and folds the reply into the state.
// Unsupported commands fail with a *CapabilityError before any I/O.
func (d *Device) Send(ctx context.Context, cmd command.Command) (correlator.Reply, error) {
	if d.closed.Load() {
		return correlator.Reply{}, ErrClosed
	}
	if err := d.caps.Authorize(cmd); err != nil {
		return correlator.Reply{}, err
	}

	reply, err := d.transport.Send(ctx, cmd)
	if err != nil {
		return correlator.Reply{}, err
	}
	if err := checkReply(cmd, reply); err != nil {
		return reply, err
	}

	d.sync.Apply(DecodeReply(reply))
	return reply, nil
}

// Close releases the transport. Further sends fail with ErrClosed.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.listeners.Clear()
	return d.transport.Close()
}

func (d *Device) handle(msg correlator.Message) {
	if u, ok := DecodeMessage(msg); ok {
		d.sync.Apply(u)
	}
}

// checkReply rejects Tasmota's error replies and RESULT payloads without
// any of the command's keys.
func checkReply(cmd command.Command, r correlator.Reply) error {
	var status string
	if r.Decode("Command", &status) == nil && (status == "Unknown" || status == "Error") {
		return fmt.Errorf("%w: %s answered %q", correlator.ErrProtocol, cmd, status)
	}
	if len(cmd.Response.Keys) == 0 {
		return nil
	}
	if slices.ContainsFunc(cmd.Response.Keys, r.Has) {
		return nil
	}
	return fmt.Errorf("%w: %s reply lacks %v", correlator.ErrProtocol, cmd, cmd.Response.Keys)
}

// =============================================================================
// Power
// =============================================================================

// SetPower switches one channel and returns the state the device reports.
func (d *Device) SetPower(ctx context.Context, idx command.PowerIndex, state command.PowerState) (command.PowerState, error) {
	return d.power(ctx, command.Power(idx, state), idx)
}

// PowerOn switches one channel on.
func (d *Device) PowerOn(ctx context.Context, idx command.PowerIndex) (command.PowerState, error) {
	return d.SetPower(ctx, idx, command.PowerOn)
}

// PowerOff switches one channel off.
func (d *Device) PowerOff(ctx context.Context, idx command.PowerIndex) (command.PowerState, error) {
	return d.SetPower(ctx, idx, command.PowerOff)
}

// PowerToggle flips one channel.
func (d *Device) PowerToggle(ctx context.Context, idx command.PowerIndex) (command.PowerState, error) {
	return d.SetPower(ctx, idx, command.PowerToggle)
}

// Power reads one channel.
func (d *Device) Power(ctx context.Context, idx command.PowerIndex) (command.PowerState, error) {
	return d.power(ctx, command.PowerQuery(idx), idx)
}

func (d *Device) power(ctx context.Context, cmd command.Command, idx command.PowerIndex) (command.PowerState, error) {
	reply, err := d.Send(ctx, cmd)
	if err != nil {
		return command.PowerOff, err
	}
	state, ok := DecodeReply(reply).Power[int(idx)]
	if !ok {
		return command.PowerOff, fmt.Errorf("%w: %s reply has no power state", correlator.ErrProtocol, cmd)
	}
	return state, nil
}

// =============================================================================
// Light
// =============================================================================

// SetDimmer sets the brightness.
func (d *Device) SetDimmer(ctx context.Context, v command.Dimmer) error {
	_, err := d.Send(ctx, command.SetDimmer(v))
	return err
}

// SetColorTemp sets the white color temperature.
func (d *Device) SetColorTemp(ctx context.Context, v command.ColorTemp) error {
	_, err := d.Send(ctx, command.SetColorTemp(v))
	return err
}

// SetHSBColor sets the color.
func (d *Device) SetHSBColor(ctx context.Context, v command.HSBColor) error {
	_, err := d.Send(ctx, command.SetHSBColor(v))
	return err
}

// SetScheme selects a light effect.
func (d *Device) SetScheme(ctx context.Context, v command.Scheme) error {
	_, err := d.Send(ctx, command.SetScheme(v))
	return err
}

// SetWakeupDuration sets the wake up effect duration.
func (d *Device) SetWakeupDuration(ctx context.Context, v command.WakeupDuration) error {
	_, err := d.Send(ctx, command.SetWakeupDuration(v))
	return err
}

// SetFade enables or disables fading.
func (d *Device) SetFade(ctx context.Context, enabled bool) error {
	_, err := d.Send(ctx, command.SetFade(enabled))
	return err
}

// SetFadeSpeed sets the fade speed.
func (d *Device) SetFadeSpeed(ctx context.Context, v command.FadeSpeed) error {
	_, err := d.Send(ctx, command.SetFadeSpeed(v))
	return err
}

// SetFadeAtStartup enables or disables fading in at power up.
func (d *Device) SetFadeAtStartup(ctx context.Context, enabled bool) error {
	_, err := d.Send(ctx, command.SetFadeAtStartup(enabled))
	return err
}

// =============================================================================
// Status and energy
// =============================================================================

// Status reads one or all status sections.
func (d *Device) Status(ctx context.Context, t command.StatusType) (correlator.Reply, error) {
	return d.Send(ctx, command.Status(t))
}

// Energy reads the energy meter.
func (d *Device) Energy(ctx context.Context) (Energy, error) {
	reply, err := d.Send(ctx, command.EnergyQuery())
	if err != nil {
		return Energy{}, err
	}
	u := DecodeReply(reply)
	if u.Energy == nil {
		return Energy{}, fmt.Errorf("%w: status 10 reply has no ENERGY block", correlator.ErrProtocol)
	}
	return *u.Energy, nil
}

// ResetEnergyTotal zeroes the total energy counter.
func (d *Device) ResetEnergyTotal(ctx context.Context) error {
	_, err := d.Send(ctx, command.ResetEnergyTotal())
	return err
}

// ResetEnergyToday zeroes today's energy counter.
func (d *Device) ResetEnergyToday(ctx context.Context) error {
	_, err := d.Send(ctx, command.ResetEnergyToday())
	return err
}

// QueryState reads every supported field from the device and returns the
// resulting state. Individual query failures are logged and skipped; an
// error is returned only when every query failed.
func (d *Device) QueryState(ctx context.Context) (State, error) {
	var queries []command.Command
	for i := 1; i <= d.caps.PowerChannels; i++ {
		queries = append(queries, command.PowerQuery(command.PowerIndex(i)))
	}
	if d.caps.Dimmer {
		queries = append(queries, command.DimmerQuery())
	}
	if d.caps.ColorTemp {
		queries = append(queries, command.ColorTempQuery())
	}
	if d.caps.RGB {
		queries = append(queries, command.HSBColorQuery())
	}
	if d.caps.Energy {
		queries = append(queries, command.EnergyQuery())
	}

	var errs []error
	for _, q := range queries {
		if _, err := d.Send(ctx, q); err != nil {
			d.logger.Warn("state query failed", "device", d.id, "command", q.String(), "error", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				return d.State(), fmt.Errorf("querying %s: %w", d.id, ctx.Err())
			}
		}
	}
	if len(errs) > 0 && len(errs) == len(queries) {
		return d.State(), fmt.Errorf("querying %s: %w", d.id, errors.Join(errs...))
	}
	return d.State(), nil
}
