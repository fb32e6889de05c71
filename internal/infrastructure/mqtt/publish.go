package mqtt

import (
	"fmt"
	"strings"
)

// Publish sends a payload to the broker.
//
// Retained publishes are mirrored into the tracker on success. A
// non-retained publish to a tracked topic drops the entry: the tracked
// record describes the bridge's latest intent for that topic, and a
// non-retained overwrite supersedes it.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if qos > 2 {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload %d bytes exceeds limit", ErrPublishFailed, len(payload))
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: cannot publish to %s", ErrNotConnected, topic)
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublishFailed, topic, token.Error())
	}

	if retained {
		c.retained.Record(topic, payload, qos)
	} else {
		c.retained.Remove(topic)
	}
	return nil
}

// PublishString is a convenience wrapper for string payloads.
func (c *Client) PublishString(topic, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// ClearRetained erases a retained message from the broker by publishing an
// empty retained payload, and drops the tracker entry.
func (c *Client) ClearRetained(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: cannot clear retained on %s", ErrNotConnected, topic)
	}

	token := c.client.Publish(topic, 0, true, []byte{})
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		return fmt.Errorf("%w: clearing %s: %v", ErrPublishFailed, topic, token.Error())
	}

	c.retained.Remove(topic)
	c.logger.Debug("retained message cleared", "topic", topic)
	return nil
}
