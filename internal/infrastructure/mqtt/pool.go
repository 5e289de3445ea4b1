package mqtt

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
)

// Pool shares one Session per BrokerKey. Sessions are created and started
// on first Attach and closed when their last owner detaches.
type Pool struct {
	cfg     config.MQTTConfig
	factory clientFactory

	mu       sync.Mutex
	sessions map[BrokerKey]*Session
	logger   Logger
}

// NewPool creates an empty pool. cfg supplies QoS, reconnect backoff and
// the client ID prefix for every session.
func NewPool(cfg config.MQTTConfig) *Pool {
	return newPool(cfg, newPahoClient)
}

func newPool(cfg config.MQTTConfig, factory clientFactory) *Pool {
	return &Pool{
		cfg:      cfg,
		factory:  factory,
		sessions: make(map[BrokerKey]*Session),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger used by the pool and every session it creates.
func (p *Pool) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
	for _, s := range p.sessions {
		s.SetLogger(logger)
	}
}

// Attach registers owner on the session for b, creating and starting it if
// needed, and returns the session. Registration and session lookup happen
// under the pool lock so a concurrent last-owner Detach cannot close the
// session in between.
func (p *Pool) Attach(ctx context.Context, b Broker, owner string, filters []string, handler MessageHandler) (*Session, error) {
	p.mu.Lock()
	s, created := p.getOrCreateLocked(b)
	added, err := s.register(owner, filters, handler)
	if err != nil {
		if created {
			delete(p.sessions, b.Key)
		}
		p.mu.Unlock()
		if created {
			_ = s.Close()
		}
		return nil, err
	}
	p.mu.Unlock()

	if created {
		if err := s.Start(); err != nil {
			return nil, fmt.Errorf("starting session %s: %w", b.Key, err)
		}
	}
	if err := s.subscribeAdded(ctx, added); err != nil {
		return s, err
	}
	return s, nil
}

func (p *Pool) getOrCreateLocked(b Broker) (*Session, bool) {
	if s, ok := p.sessions[b.Key]; ok {
		return s, false
	}
	s := newSession(p.cfg, b, p.factory)
	s.SetLogger(p.logger)
	s.setOnIdle(func() { p.release(b.Key, s) })
	p.sessions[b.Key] = s
	p.logger.Info("mqtt session created", "broker", b.Key.String(), "client_id", s.ClientID())
	return s, true
}

// release closes s if it is still the pooled session for key and has no
// owners left.
func (p *Pool) release(key BrokerKey, s *Session) {
	p.mu.Lock()
	if p.sessions[key] != s || s.OwnerCount() > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.sessions, key)
	logger := p.logger
	p.mu.Unlock()

	logger.Info("mqtt session released", "broker", key.String())
	_ = s.Close()
}

// Get returns the pooled session for key, if any.
func (p *Pool) Get(key BrokerKey) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[key]
	return s, ok
}

// Keys returns the keys of every live session, sorted by String().
func (p *Pool) Keys() []BrokerKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]BrokerKey, 0, len(p.sessions))
	for k := range p.sessions {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b BrokerKey) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return keys
}

// Len returns the number of live sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// HealthCheck reports the first session that is not connected.
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		if err := s.HealthCheck(ctx); err != nil {
			return fmt.Errorf("broker %s: %w", s.Key(), err)
		}
	}
	return nil
}

// Close closes every session.
func (p *Pool) Close() error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[BrokerKey]*Session)
	p.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	return nil
}

// Endpoint returns a pub/sub view of one broker that goes through the pool.
func (p *Pool) Endpoint(b Broker) *Endpoint {
	return &Endpoint{pool: p, broker: b}
}

// Endpoint is a broker-scoped handle on a Pool. Attach goes through the
// pool so the session is created on demand and released when idle.
type Endpoint struct {
	pool   *Pool
	broker Broker
}

// Broker returns the endpoint's broker.
func (e *Endpoint) Broker() Broker { return e.broker }

// Attach registers owner on the endpoint's session.
func (e *Endpoint) Attach(ctx context.Context, owner string, filters []string, handler MessageHandler) error {
	_, err := e.pool.Attach(ctx, e.broker, owner, filters, handler)
	return err
}

// Detach removes owner from the endpoint's session, if it exists.
func (e *Endpoint) Detach(owner string) error {
	s, ok := e.pool.Get(e.broker.Key)
	if !ok {
		return nil
	}
	return s.Detach(owner)
}

// Publish publishes on the endpoint's session. The session must already
// exist, i.e. some owner must be attached.
func (e *Endpoint) Publish(ctx context.Context, topic string, payload []byte) error {
	s, ok := e.pool.Get(e.broker.Key)
	if !ok {
		return fmt.Errorf("%w: no session for %s", ErrNotConnected, e.broker.Key)
	}
	return s.Publish(ctx, topic, payload)
}
