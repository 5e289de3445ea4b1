package mqtt

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
)

// State is the connection state of a Session.
type State int32

const (
	// StateDisconnected is the state before Start, after Close, and after a
	// connection loss until paho begins its next attempt.
	StateDisconnected State = iota
	// StateReconnecting means a connection attempt is in progress.
	StateReconnecting
	// StateConnected means the broker link is up and every attached topic
	// has been subscribed.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Logger defines the logging interface used by the session.
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

// MessageHandler processes one inbound message. Handlers run on paho's
// delivery goroutine and must not block; a returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// pahoClient is the subset of pahomqtt.Client the session drives.
type pahoClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
	IsConnected() bool
}

type clientFactory func(opts *pahomqtt.ClientOptions) pahoClient

func newPahoClient(opts *pahomqtt.ClientOptions) pahoClient {
	return pahomqtt.NewClient(opts)
}

// route is one broker subscription and the owners interested in it.
type route struct {
	owners map[string]MessageHandler
}

// Session is one physical broker connection shared by every device that
// resolves to the same BrokerKey.
//
// Connection handling is a three-state machine (Disconnected, Reconnecting,
// Connected) driven by paho's connect, connection-lost and reconnecting
// callbacks; paho owns the retry backoff. On every entry into Connected the
// session re-subscribes the whole topic map first, then flips to Connected,
// then fires the reconnected listeners. Publish waits for Connected, so a
// command queued during an outage is sent only after resubscription.
type Session struct {
	broker   Broker
	clientID string
	qos      byte
	client   pahoClient

	// mu guards everything below it. Never held across network waits.
	mu            sync.Mutex
	state         State
	ready         chan struct{} // closed while Connected
	done          chan struct{} // closed by Close
	started       bool
	closed        bool
	everConnected bool
	topics        map[string]*route
	owners        map[string][]string
	onReconnected []func()
	onState       []func(State)
	onIdle        func()
	logger        Logger

	// subMu orders resubscription against subscribe/unsubscribe calls made
	// by Attach and Detach. It is held across subscribe round trips, never
	// while handlers run.
	subMu sync.Mutex
}

// NewSession creates a session for the broker. It does not connect; call
// Start or Connect.
func NewSession(cfg config.MQTTConfig, b Broker) *Session {
	return newSession(cfg, b, newPahoClient)
}

func newSession(cfg config.MQTTConfig, b Broker, factory clientFactory) *Session {
	s := &Session{
		broker:   b,
		clientID: newClientID(cfg.Broker.ClientID),
		qos:      byte(cfg.QoS),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		topics:   make(map[string]*route),
		owners:   make(map[string][]string),
		logger:   noopLogger{},
	}

	opts := buildClientOptions(cfg, b, s.clientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		s.handleReconnecting()
	})

	s.client = factory(opts)
	return s
}

// SetLogger sets the logger for connection events and handler failures.
func (s *Session) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

func (s *Session) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// Key returns the broker key of this session.
func (s *Session) Key() BrokerKey { return s.broker.Key }

// ClientID returns the MQTT client ID used by this session.
func (s *Session) ClientID() string { return s.clientID }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is in StateConnected.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Start begins connecting in the background. Paho keeps retrying with its
// own backoff until the session is closed. Calling Start again is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	listeners := s.setStateLocked(StateReconnecting)
	s.mu.Unlock()
	s.notifyState(listeners, StateReconnecting)

	token := s.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.log().Warn("mqtt connect ended", "broker", s.broker.Key.String(), "error", err)
		}
	}()
	return nil
}

// Connect starts the session and waits until it is connected or ctx ends.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	if err := s.WaitConnected(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, s.broker.Key, err)
	}
	return nil
}

// WaitConnected blocks until the session is connected, ctx ends or the
// session is closed.
func (s *Session) WaitConnected(ctx context.Context) error {
	s.mu.Lock()
	closed, ready, done := s.closed, s.ready, s.done
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	select {
	case <-ready:
		return nil
	case <-done:
		return ErrSessionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotConnected, ctx.Err())
	}
}

// HealthCheck verifies the session is connected.
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// OnReconnected registers a callback fired each time the session comes
// back after a connection loss, once every topic has been re-subscribed.
// It is not fired for the first connection.
func (s *Session) OnReconnected(fn func()) {
	s.mu.Lock()
	s.onReconnected = append(s.onReconnected, fn)
	s.mu.Unlock()
}

// OnStateChange registers a callback fired on every state transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = append(s.onState, fn)
	s.mu.Unlock()
}

// setOnIdle installs the callback fired when the last owner detaches.
func (s *Session) setOnIdle(fn func()) {
	s.mu.Lock()
	s.onIdle = fn
	s.mu.Unlock()
}

// Close disconnects from the broker. Pending WaitConnected and Publish
// calls return ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	close(s.done)
	listeners := s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	if started {
		s.client.Disconnect(defaultDisconnectQuiesce)
	}
	s.notifyState(listeners, StateDisconnected)
	return nil
}

// handleConnect runs on every successful (re)connection.
func (s *Session) handleConnect() {
	s.subMu.Lock()

	for _, filter := range s.Filters() {
		if err := s.subscribe(context.Background(), filter); err != nil {
			s.log().Error("mqtt resubscribe failed", "filter", filter, "error", err)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.subMu.Unlock()
		return
	}
	reconnected := s.everConnected
	s.everConnected = true
	stateListeners := s.setStateLocked(StateConnected)
	var reconnectListeners []func()
	if reconnected {
		reconnectListeners = append(reconnectListeners, s.onReconnected...)
	}
	logger := s.logger
	s.mu.Unlock()
	s.subMu.Unlock()

	logger.Info("mqtt connected", "broker", s.broker.Key.String(), "client_id", s.clientID, "reconnect", reconnected)
	s.notifyState(stateListeners, StateConnected)
	for _, fn := range reconnectListeners {
		s.safeCall("reconnected", fn)
	}
}

func (s *Session) handleConnectionLost(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	listeners := s.setStateLocked(StateDisconnected)
	logger := s.logger
	s.mu.Unlock()

	logger.Warn("mqtt connection lost", "broker", s.broker.Key.String(), "error", err)
	s.notifyState(listeners, StateDisconnected)
}

func (s *Session) handleReconnecting() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	listeners := s.setStateLocked(StateReconnecting)
	s.mu.Unlock()
	s.notifyState(listeners, StateReconnecting)
}

// setStateLocked moves to next and returns the listeners to notify, or nil
// when the state did not change. Caller holds s.mu.
func (s *Session) setStateLocked(next State) []func(State) {
	if s.state == next {
		return nil
	}
	if s.state == StateConnected {
		s.ready = make(chan struct{})
	}
	if next == StateConnected {
		close(s.ready)
	}
	s.state = next
	return slices.Clone(s.onState)
}

func (s *Session) notifyState(listeners []func(State), st State) {
	for _, fn := range listeners {
		s.safeCall("state change", func() { fn(st) })
	}
}

func (s *Session) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error("mqtt "+what+" callback panic recovered", "panic", r)
		}
	}()
	fn()
}

// waitToken waits for a paho token, bounded by ctx and timeout.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
