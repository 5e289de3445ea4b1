package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a non-retained message at the session QoS.
//
// If the session is not connected, Publish waits for the next Connected
// transition, which happens only after every attached topic has been
// re-subscribed. The wait is bounded by ctx; on expiry the error wraps both
// ErrNotConnected and ctx.Err().
//
// Example:
//
//	topic := mqtt.Topics{}.Command("tasmota_kitchen", "Power1")
//	err := session.Publish(ctx, topic, []byte("ON"))
func (s *Session) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if err := s.WaitConnected(ctx); err != nil {
		return err
	}

	token := s.client.Publish(topic, s.qos, false, payload)
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishString is a convenience wrapper around Publish.
func (s *Session) PublishString(ctx context.Context, topic, payload string) error {
	return s.Publish(ctx, topic, []byte(payload))
}
