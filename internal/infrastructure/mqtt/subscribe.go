package mqtt

import (
	"context"
	"errors"
	"fmt"
	"slices"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Attach registers owner's interest in filters. Messages matching any of
// them are passed to handler.
//
// If the session is connected, new filters are subscribed before Attach
// returns. Otherwise they are queued and subscribed on the next connect,
// ahead of the Connected transition. Attaching the same owner again adds
// filters and replaces its handler.
//
// A subscribe failure is returned but the registration is kept, so the
// filter is retried on the next reconnect; call Detach to give up.
func (s *Session) Attach(ctx context.Context, owner string, filters []string, handler MessageHandler) error {
	added, err := s.register(owner, filters, handler)
	if err != nil {
		return err
	}
	return s.subscribeAdded(ctx, added)
}

// register records the owner in the topic map and returns the filters that
// had no owner before. No network I/O.
func (s *Session) register(owner string, filters []string, handler MessageHandler) ([]string, error) {
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: no filters", ErrInvalidTopic)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	for _, f := range filters {
		if err := ValidateFilter(f); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	var added []string
	owned := s.owners[owner]
	for _, f := range owned {
		s.topics[f].owners[owner] = handler
	}
	for _, f := range filters {
		r, ok := s.topics[f]
		if !ok {
			r = &route{owners: make(map[string]MessageHandler)}
			s.topics[f] = r
			added = append(added, f)
		}
		r.owners[owner] = handler
		if !slices.Contains(owned, f) {
			owned = append(owned, f)
		}
	}
	s.owners[owner] = owned
	return added, nil
}

func (s *Session) subscribeAdded(ctx context.Context, added []string) error {
	if len(added) == 0 {
		return nil
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	if !s.IsConnected() {
		s.log().Debug("mqtt subscription queued until connected", "filters", added)
		return nil
	}
	for _, f := range added {
		if err := s.subscribe(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// Detach removes every registration of owner and unsubscribes filters no
// other owner needs. When the last owner leaves, the idle callback fires
// (the Pool uses it to tear the session down).
func (s *Session) Detach(owner string) error {
	s.subMu.Lock()

	s.mu.Lock()
	filters, ok := s.owners[owner]
	if !ok {
		s.mu.Unlock()
		s.subMu.Unlock()
		return nil
	}
	delete(s.owners, owner)

	var removed []string
	for _, f := range filters {
		r, ok := s.topics[f]
		if !ok {
			continue
		}
		delete(r.owners, owner)
		if len(r.owners) == 0 {
			delete(s.topics, f)
			removed = append(removed, f)
		}
	}
	connected := s.state == StateConnected
	idle := len(s.owners) == 0
	onIdle := s.onIdle
	s.mu.Unlock()

	var err error
	if connected && len(removed) > 0 {
		token := s.client.Unsubscribe(removed...)
		if werr := waitToken(context.Background(), token, defaultSubscribeTimeout); werr != nil {
			err = fmt.Errorf("%w: %w", ErrUnsubscribeFailed, werr)
		}
	}
	s.subMu.Unlock()

	if idle && onIdle != nil {
		onIdle()
	}
	return err
}

// subscribe issues one broker subscription. Caller holds s.subMu.
func (s *Session) subscribe(ctx context.Context, filter string) error {
	token := s.client.Subscribe(filter, s.qos, s.dispatcher(filter))
	if err := waitToken(ctx, token, defaultSubscribeTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

// dispatcher returns the paho callback for filter. Owners are looked up per
// message so handlers attached later are reached without resubscribing.
func (s *Session) dispatcher(filter string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		for _, h := range s.handlersFor(filter) {
			s.invoke(h, msg.Topic(), msg.Payload())
		}
	}
}

func (s *Session) handlersFor(filter string) []MessageHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.topics[filter]
	if !ok {
		return nil
	}
	owners := make([]string, 0, len(r.owners))
	for o := range r.owners {
		owners = append(owners, o)
	}
	slices.Sort(owners)
	handlers := make([]MessageHandler, 0, len(owners))
	for _, o := range owners {
		handlers = append(handlers, r.owners[o])
	}
	return handlers
}

// invoke runs one handler with panic recovery.
func (s *Session) invoke(h MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error("MQTT handler panic recovered",
				"topic", topic,
				"panic", r,
			)
		}
	}()

	if err := h(topic, payload); err != nil && !errors.Is(err, context.Canceled) {
		s.log().Warn("MQTT handler returned error",
			"topic", topic,
			"error", err,
		)
	}
}

// Filters returns every subscribed filter, sorted.
func (s *Session) Filters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	filters := make([]string, 0, len(s.topics))
	for f := range s.topics {
		filters = append(filters, f)
	}
	slices.Sort(filters)
	return filters
}

// SubscriptionCount returns the number of distinct broker subscriptions.
func (s *Session) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topics)
}

// HasSubscription reports whether filter is in the topic map (exact match).
func (s *Session) HasSubscription(filter string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.topics[filter]
	return ok
}

// OwnerCount returns the number of attached owners.
func (s *Session) OwnerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owners)
}
