package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/mqtt"
)

// DefaultGroupTopic is the group topic every Tasmota device listens on
// unless reconfigured.
const DefaultGroupTopic = "tasmotas"

// maxUpdatesPerDevice bounds what is kept for one chatty device during a window.
const maxUpdatesPerDevice = 16

// Logger is the logging surface used by discovery.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Subscriber is the broker surface discovery needs. *mqtt.Endpoint and
// transport.Endpoint implement it.
type Subscriber interface {
	Attach(ctx context.Context, owner string, filters []string, handler mqtt.MessageHandler) error
	Detach(owner string) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

// DeviceFactory builds the handle for a discovered device topic.
type DeviceFactory func(ctx context.Context, topic string) (*device.Device, error)

// Result is one discovered device.
type Result struct {
	Topic  string
	Device *device.Device
	State  device.State
}

// sighting is what the window collected for one device topic.
type sighting struct {
	topic   string
	updates []device.Update
}

// Engine runs discovery windows against one broker.
type Engine struct {
	sub        Subscriber
	factory    DeviceFactory
	groupTopic string
	logger     Logger
}

// NewEngine creates a discovery engine. An empty groupTopic selects
// DefaultGroupTopic.
func NewEngine(sub Subscriber, factory DeviceFactory, groupTopic string) *Engine {
	if groupTopic == "" {
		groupTopic = DefaultGroupTopic
	}
	return &Engine{sub: sub, factory: factory, groupTopic: groupTopic, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// Discover listens for timeout and returns one result per device topic
// seen in that window, in the order the devices were first seen. Messages
// repeated by a device update its result rather than adding another.
// Devices whose handle cannot be built are logged and left out.
//
// Discover returns early with ctx's error when ctx is done first.
func (e *Engine) Discover(ctx context.Context, timeout time.Duration) ([]Result, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	owner := "discovery-" + uuid.NewString()[:8]
	col := &collector{seen: make(map[string]*sighting)}

	filters := mqtt.Topics{}.DiscoveryFilters()
	if err := e.sub.Attach(ctx, owner, filters, col.handle); err != nil {
		_ = e.sub.Detach(owner)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	e.logger.Info("discovery started", "timeout", timeout, "group_topic", e.groupTopic)

	window, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Retained LWTs arrive without it, so a failed trigger only narrows the result.
	trigger := mqtt.Topics{}.Command(e.groupTopic, "Status")
	if err := e.sub.Publish(window, trigger, []byte("0")); err != nil {
		e.logger.Warn("discovery trigger not sent", "topic", trigger, "error", err)
	}

	<-window.Done()
	sightings := col.close()
	if err := e.sub.Detach(owner); err != nil {
		e.logger.Warn("detaching discovery subscription", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(sightings))
	for _, s := range sightings {
		dev, err := e.factory(ctx, s.topic)
		if err != nil {
			e.logger.Warn("skipping discovered device", "topic", s.topic, "error", err)
			continue
		}
		for _, u := range s.updates {
			dev.Apply(u)
		}
		results = append(results, Result{Topic: s.topic, Device: dev, State: dev.State()})
	}

	e.logger.Info("discovery complete", "seen", len(sightings), "discovered", len(results))
	return results, nil
}

// collector accumulates sightings until closed. It runs on the session's
// delivery goroutine.
type collector struct {
	mu     sync.Mutex
	closed bool
	order  []*sighting
	seen   map[string]*sighting
}

func (c *collector) handle(topic string, payload []byte) error {
	msg := correlator.Classify(topic, payload)
	if msg.Device == "" {
		return nil
	}
	u, hasState := device.DecodeMessage(msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	s, ok := c.seen[msg.Device]
	if !ok {
		s = &sighting{topic: msg.Device}
		c.seen[msg.Device] = s
		c.order = append(c.order, s)
	}
	switch {
	case !hasState:
	case len(s.updates) < maxUpdatesPerDevice:
		s.updates = append(s.updates, u)
	default:
		s.updates[len(s.updates)-1].Merge(u)
	}
	return nil
}

// close stops collection and returns the sightings in first-seen order.
func (c *collector) close() []*sighting {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.order
}
