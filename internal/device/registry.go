package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry provides device definition management with caching and thread
// safety. It wraps a Repository and adds an in-memory cache for fast
// lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
type Registry struct {
	repo    Repository
	cache   map[string]*Definition
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Definition),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all definitions from the repository into the cache.
func (r *Registry) RefreshCache(ctx context.Context) error {
	defs, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Definition, len(defs))
	for i := range defs {
		r.cache[defs[i].ID] = defs[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(defs))
	return nil
}

// Get retrieves a definition by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned definition is a deep copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Definition, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()
	return d, nil
}

// List returns every cached definition sorted by name.
func (r *Registry) List() []Definition {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	defs := make([]Definition, 0, len(r.cache))
	for _, d := range r.cache {
		defs = append(defs, *d.DeepCopy())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Create validates and persists a new definition. A missing ID is derived
// from the name, or generated when the name yields nothing usable.
func (r *Registry) Create(ctx context.Context, d *Definition) error {
	if d.ID == "" {
		d.ID = GenerateSlug(d.Name)
		if d.ID == "" {
			d.ID = GenerateID()
		}
	}
	if err := ValidateDefinition(d); err != nil {
		return err
	}
	if err := r.checkTopic(d); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", d.ID, "name", d.Name, "transport", d.Transport)
	return nil
}

// Update validates and persists changes to an existing definition.
func (r *Registry) Update(ctx context.Context, d *Definition) error {
	if err := ValidateDefinition(d); err != nil {
		return err
	}
	if err := r.checkTopic(d); err != nil {
		return err
	}
	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", d.ID, "name", d.Name)
	return nil
}

// checkTopic rejects d when another definition listens on the same topic
// of the same broker. Two handles on one topic would both claim its
// replies and state.
func (r *Registry) checkTopic(d *Definition) error {
	if d.Transport != TransportMQTT {
		return nil
	}
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for id, other := range r.cache {
		if id == d.ID || other.Transport != TransportMQTT || other.Topic != d.Topic {
			continue
		}
		if sameBroker(other.Broker, d.Broker) {
			return fmt.Errorf("%w: %q is used by %s", ErrTopicInUse, d.Topic, id)
		}
	}
	return nil
}

// sameBroker compares broker references by address. nil is the default
// broker.
func sameBroker(a, b *BrokerRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Host == b.Host && a.Port == b.Port
}

// Upsert creates the definition or updates it when the ID exists. Used to
// seed the registry from the configuration file.
func (r *Registry) Upsert(ctx context.Context, d *Definition) error {
	if _, err := r.Get(ctx, d.ID); err == nil {
		return r.Update(ctx, d)
	}
	return r.Create(ctx, d)
}

// Delete removes a definition.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// Count returns the number of cached definitions.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int
	ByTransport  map[TransportKind]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByTransport:  make(map[TransportKind]int),
	}
	for _, d := range r.cache {
		stats.ByTransport[d.Transport]++
	}
	return stats
}
