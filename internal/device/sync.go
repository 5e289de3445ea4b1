package device

import (
	"maps"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// Synchronizer owns the state of one device. Every update, whether from a
// command reply or from telemetry, goes through Apply.
type Synchronizer struct {
	// applyMu serialises Apply so changes for one device are detected and
	// delivered in order.
	applyMu sync.Mutex

	mu    sync.RWMutex
	state State

	listeners *Listeners
}

// NewSynchronizer creates a synchronizer delivering to listeners. A nil
// registry gets a fresh one.
func NewSynchronizer(listeners *Listeners) *Synchronizer {
	if listeners == nil {
		listeners = NewListeners()
	}
	return &Synchronizer{listeners: listeners}
}

// Listeners returns the listener registry.
func (s *Synchronizer) Listeners() *Listeners {
	return s.listeners
}

// State returns a snapshot of the current state.
func (s *Synchronizer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Apply merges the fields present in u and returns one change per field
// whose value differs from before, including fields seen for the first
// time. Fields absent from u are untouched. The changes are delivered to
// the listeners before Apply returns.
//
// Setting HSBColor clears ColorTemp and vice versa; the cleared field does
// not produce a change.
func (s *Synchronizer) Apply(u Update) []Change {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	u.resolveColor()

	s.mu.Lock()
	changes := s.merge(u)
	s.mu.Unlock()

	s.listeners.dispatch(changes)
	return changes
}

// Reset forgets all state without emitting changes.
func (s *Synchronizer) Reset() {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()
}

//nolint:gocognit,gocyclo // one branch per state field
func (s *Synchronizer) merge(u Update) []Change {
	var changes []Change
	st := &s.state

	if u.Online != nil && (st.Online == nil || *st.Online != *u.Online) {
		st.Online = ptr(*u.Online)
		if *u.Online {
			changes = append(changes, Connected{})
		} else {
			changes = append(changes, Disconnected{})
		}
	}

	for _, idx := range slices.Sorted(maps.Keys(u.Power)) {
		state := u.Power[idx]
		if prev, ok := st.Power[idx]; ok && prev == state {
			continue
		}
		if st.Power == nil {
			st.Power = make(map[int]command.PowerState)
		}
		st.Power[idx] = state
		changes = append(changes, PowerChanged{Index: idx, State: state})
	}

	if setIfChanged(&st.Dimmer, u.Dimmer) {
		changes = append(changes, DimmerChanged{Dimmer: *u.Dimmer})
	}
	if u.HSBColor != nil {
		st.ColorTemp = nil
		if setIfChanged(&st.HSBColor, u.HSBColor) {
			changes = append(changes, HSBColorChanged{Color: *u.HSBColor})
		}
	}
	if u.ColorTemp != nil {
		st.HSBColor = nil
		if setIfChanged(&st.ColorTemp, u.ColorTemp) {
			changes = append(changes, ColorTempChanged{ColorTemp: *u.ColorTemp})
		}
	}
	if setIfChanged(&st.Scheme, u.Scheme) {
		changes = append(changes, SchemeChanged{Scheme: *u.Scheme})
	}
	if setIfChanged(&st.Fade, u.Fade) {
		changes = append(changes, FadeChanged{Enabled: *u.Fade})
	}
	if setIfChanged(&st.Speed, u.Speed) {
		changes = append(changes, SpeedChanged{Speed: *u.Speed})
	}
	if setIfChanged(&st.Energy, u.Energy) {
		changes = append(changes, EnergyChanged{Energy: *u.Energy})
	}
	if setIfChanged(&st.System, u.System) {
		changes = append(changes, SystemChanged{System: *u.System})
	}

	return changes
}

// setIfChanged stores a copy of src in *dst when src is present and
// differs, and reports whether it did.
func setIfChanged[T comparable](dst **T, src *T) bool {
	if src == nil {
		return false
	}
	if *dst != nil && **dst == *src {
		return false
	}
	*dst = ptr(*src)
	return true
}
