package transport

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/mqtt"
)

// Endpoint is the pub/sub surface of one broker. *mqtt.Endpoint implements it.
type Endpoint interface {
	Attach(ctx context.Context, owner string, filters []string, handler mqtt.MessageHandler) error
	Detach(owner string) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

// brokerLink pairs a broker endpoint with the correlator for its replies
// and the device routes subscribed through it.
type brokerLink struct {
	endpoint Endpoint
	corr     *correlator.Correlator

	mu     sync.Mutex
	routes map[string]*route
}

// route is the single broker subscription of one device topic. Every
// inbound message is offered to the correlator once and, when it is not a
// reply, streamed to each transport open on the topic.
type route struct {
	topic string
	owner string
	corr  *correlator.Correlator

	mu         sync.RWMutex
	transports []*MQTT
}

func (r *route) handle(topic string, payload []byte) error {
	msg := correlator.Classify(topic, payload)
	if msg.Device != r.topic {
		return nil
	}
	if r.corr.Dispatch(msg) {
		return nil
	}

	r.mu.RLock()
	transports := slices.Clone(r.transports)
	r.mu.RUnlock()
	for _, t := range transports {
		t.deliver(msg)
	}
	return nil
}

// Hub hands out MQTT transports, one correlator per broker.
type Hub struct {
	endpointFor func(mqtt.Broker) Endpoint
	timeout     time.Duration

	mu     sync.Mutex
	links  map[mqtt.BrokerKey]*brokerLink
	logger Logger
}

// NewHub creates a hub over a session pool. timeout is the default reply
// deadline for commands that do not set their own.
func NewHub(pool *mqtt.Pool, timeout time.Duration) *Hub {
	return newHub(func(b mqtt.Broker) Endpoint { return pool.Endpoint(b) }, timeout)
}

func newHub(endpointFor func(mqtt.Broker) Endpoint, timeout time.Duration) *Hub {
	return &Hub{
		endpointFor: endpointFor,
		timeout:     timeout,
		links:       make(map[mqtt.BrokerKey]*brokerLink),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the hub and the correlators it creates.
func (h *Hub) SetLogger(logger Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	h.logger = logger
	for _, l := range h.links {
		l.corr.SetLogger(logger)
	}
}

func (h *Hub) link(b mqtt.Broker) *brokerLink {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.links[b.Key]; ok {
		return l
	}
	ep := h.endpointFor(b)
	corr := correlator.New(ep, h.timeout)
	corr.SetLogger(h.logger)
	l := &brokerLink{endpoint: ep, corr: corr, routes: make(map[string]*route)}
	h.links[b.Key] = l
	return l
}

// Endpoint returns the pub/sub endpoint for b, for callers that need raw
// subscriptions (discovery).
func (h *Hub) Endpoint(b mqtt.Broker) Endpoint {
	return h.link(b).endpoint
}

// Pending returns the number of commands awaiting a reply on b.
func (h *Hub) Pending(b mqtt.Broker) int {
	return h.link(b).corr.Pending()
}

// Open attaches a transport for the device with the given Tasmota topic.
// Transports opened for the same topic on the same broker share one
// subscription, so a reply resolves at most one command.
func (h *Hub) Open(ctx context.Context, b mqtt.Broker, topic string) (*MQTT, error) {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return nil, fmt.Errorf("%w: invalid topic %q", ErrInvalidConfig, topic)
	}
	l := h.link(b)

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.routes[topic]
	if !ok {
		r = &route{
			topic: topic,
			owner: "tasmota/" + topic + "/" + uuid.NewString()[:8],
			corr:  l.corr,
		}
		if err := l.endpoint.Attach(ctx, r.owner, mqtt.Topics{}.DeviceFilters(topic), r.handle); err != nil {
			_ = l.endpoint.Detach(r.owner)
			return nil, fmt.Errorf("%w: attaching %s: %w", ErrConnection, topic, err)
		}
		l.routes[topic] = r
	}

	t := &MQTT{topic: topic, owner: r.owner, link: l, route: r}
	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
	return t, nil
}

// release drops t from its route and detaches the route once no transport
// uses it.
func (l *brokerLink) release(t *MQTT) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := t.route
	r.mu.Lock()
	if i := slices.Index(r.transports, t); i >= 0 {
		r.transports = slices.Delete(r.transports, i, i+1)
	}
	idle := len(r.transports) == 0
	r.mu.Unlock()

	if !idle || l.routes[r.topic] != r {
		return nil
	}
	delete(l.routes, r.topic)
	return l.endpoint.Detach(r.owner)
}

// MQTT is the transport of one device on a shared broker session.
type MQTT struct {
	topic string
	owner string
	link  *brokerLink
	route *route

	mu     sync.RWMutex
	stream func(correlator.Message)
	closed atomic.Bool
}

// Topic returns the device's Tasmota topic.
func (t *MQTT) Topic() string { return t.topic }

// Send publishes cmd and waits for its reply.
func (t *MQTT) Send(ctx context.Context, cmd command.Command) (correlator.Reply, error) {
	if t.closed.Load() {
		return correlator.Reply{}, ErrClosed
	}
	return t.link.corr.Send(ctx, t.topic, cmd)
}

// Stream sets the handler for every inbound message that did not resolve a
// pending command. It runs on the session's delivery goroutine.
func (t *MQTT) Stream(handler func(correlator.Message)) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.mu.Lock()
	t.stream = handler
	t.mu.Unlock()
	return nil
}

// Close releases the transport. The broker subscription is dropped with the
// last transport of the topic. Commands already in flight still resolve or
// time out on their own.
func (t *MQTT) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	t.stream = nil
	t.mu.Unlock()
	return t.link.release(t)
}

func (t *MQTT) deliver(msg correlator.Message) {
	t.mu.RLock()
	stream := t.stream
	t.mu.RUnlock()
	if stream != nil {
		stream(msg)
	}
}
