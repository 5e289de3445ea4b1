package device

import (
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// SubscriptionID identifies a registered listener.
type SubscriptionID uint64

type listener struct {
	id   SubscriptionID
	kind ChangeKind // empty matches every change
	fn   func(Change)
}

// Listeners is a registry of state change callbacks.
//
// Callbacks run synchronously on the goroutine that applied the update, in
// the order changes were detected. They must not block and must not apply
// updates to the same device; longer work belongs on another goroutine.
type Listeners struct {
	mu      sync.RWMutex
	nextID  SubscriptionID
	entries []listener
	logger  Logger
}

// NewListeners creates an empty registry.
func NewListeners() *Listeners {
	return &Listeners{logger: noopLogger{}}
}

// SetLogger sets the logger used to report recovered listener panics.
func (l *Listeners) SetLogger(logger Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if logger != nil {
		l.logger = logger
	}
}

// OnStateChanged registers fn for every change.
func (l *Listeners) OnStateChanged(fn func(Change)) SubscriptionID {
	return l.add("", fn)
}

// OnPower registers fn for relay changes.
func (l *Listeners) OnPower(fn func(index int, state command.PowerState)) SubscriptionID {
	return l.add(KindPower, func(c Change) {
		p := c.(PowerChanged)
		fn(p.Index, p.State)
	})
}

// OnDimmer registers fn for brightness changes.
func (l *Listeners) OnDimmer(fn func(command.Dimmer)) SubscriptionID {
	return l.add(KindDimmer, func(c Change) { fn(c.(DimmerChanged).Dimmer) })
}

// OnHSBColor registers fn for color changes.
func (l *Listeners) OnHSBColor(fn func(command.HSBColor)) SubscriptionID {
	return l.add(KindHSBColor, func(c Change) { fn(c.(HSBColorChanged).Color) })
}

// OnColorTemp registers fn for color temperature changes.
func (l *Listeners) OnColorTemp(fn func(command.ColorTemp)) SubscriptionID {
	return l.add(KindColorTemp, func(c Change) { fn(c.(ColorTempChanged).ColorTemp) })
}

// OnScheme registers fn for light effect changes.
func (l *Listeners) OnScheme(fn func(command.Scheme)) SubscriptionID {
	return l.add(KindScheme, func(c Change) { fn(c.(SchemeChanged).Scheme) })
}

// OnEnergy registers fn for energy readings.
func (l *Listeners) OnEnergy(fn func(Energy)) SubscriptionID {
	return l.add(KindEnergy, func(c Change) { fn(c.(EnergyChanged).Energy) })
}

// OnConnected registers fn for the device coming online.
func (l *Listeners) OnConnected(fn func()) SubscriptionID {
	return l.add(KindConnected, func(Change) { fn() })
}

// OnDisconnected registers fn for the device going offline.
func (l *Listeners) OnDisconnected(fn func()) SubscriptionID {
	return l.add(KindDisconnected, func(Change) { fn() })
}

// Unsubscribe removes a listener. It reports whether id was registered.
func (l *Listeners) Unsubscribe(id SubscriptionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.entries, func(e listener) bool { return e.id == id })
	if i < 0 {
		return false
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	return true
}

// Len returns the number of registered listeners.
func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear removes every listener.
func (l *Listeners) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func (l *Listeners) add(kind ChangeKind, fn func(Change)) SubscriptionID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.entries = append(l.entries, listener{id: l.nextID, kind: kind, fn: fn})
	return l.nextID
}

// dispatch delivers changes in order. The entry list is copied so
// listeners may unsubscribe themselves.
func (l *Listeners) dispatch(changes []Change) {
	if len(changes) == 0 {
		return
	}
	l.mu.RLock()
	entries := slices.Clone(l.entries)
	logger := l.logger
	l.mu.RUnlock()

	for _, c := range changes {
		for _, e := range entries {
			if e.kind != "" && e.kind != c.Kind() {
				continue
			}
			invoke(e, c, logger)
		}
	}
}

func invoke(e listener, c Change, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("state listener panicked", "subscription", e.id, "change", c.Kind(), "panic", r)
		}
	}()
	e.fn(c)
}
