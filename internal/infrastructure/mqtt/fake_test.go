package mqtt

import (
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// fakeToken is an already-completed paho token.
type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// fakeClient stands in for paho. Connection events are driven by the test
// calling the session's handlers; every client call is appended to a
// shared event log so tests can assert ordering.
type fakeClient struct {
	opts *pahomqtt.ClientOptions
	log  *eventLog

	mu           sync.Mutex
	subs         map[string]pahomqtt.MessageHandler
	published    []fakeMessage
	subscribeErr error
	disconnected bool
}

func (c *fakeClient) Connect() pahomqtt.Token { return doneToken(nil) }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	c.log.add("disconnect")
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	c.published = append(c.published, fakeMessage{topic: topic, payload: payload.([]byte)})
	c.mu.Unlock()
	c.log.add("pub:" + topic)
	return doneToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	err := c.subscribeErr
	if err == nil {
		c.subs[topic] = cb
	}
	c.mu.Unlock()
	c.log.add("sub:" + topic)
	return doneToken(err)
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()
	for _, t := range topics {
		c.log.add("unsub:" + t)
	}
	return doneToken(nil)
}

func (c *fakeClient) IsConnected() bool { return true }

// deliver routes a message to every matching subscription, as paho does.
func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	var cbs []pahomqtt.MessageHandler
	for filter, cb := range c.subs {
		if topicMatches(filter, topic) {
			cbs = append(cbs, cb)
		}
	}
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(nil, fakeMessage{topic: topic, payload: []byte(payload)})
	}
}

// dropSubscriptions forgets every broker-side subscription, as a clean
// session reconnect does.
func (c *fakeClient) dropSubscriptions() {
	c.mu.Lock()
	c.subs = make(map[string]pahomqtt.MessageHandler)
	c.mu.Unlock()
}

func (c *fakeClient) publishedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.published))
	for _, m := range c.published {
		out = append(out, m.topic)
	}
	return out
}

func topicMatches(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(prefix string) int {
	n := 0
	for _, e := range l.snapshot() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// fakeFactory records every client it creates.
type fakeFactory struct {
	log     *eventLog
	mu      sync.Mutex
	clients []*fakeClient
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{log: &eventLog{}}
}

func (f *fakeFactory) new(opts *pahomqtt.ClientOptions) pahoClient {
	c := &fakeClient{
		opts: opts,
		log:  f.log,
		subs: make(map[string]pahomqtt.MessageHandler),
	}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func newTestSession() (*Session, *fakeClient, *eventLog) {
	f := newFakeFactory()
	s := newSession(testConfig(), DefaultBroker(testConfig()), f.new)
	return s, f.clients[0], f.log
}
