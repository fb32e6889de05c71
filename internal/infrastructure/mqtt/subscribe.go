package mqtt

import (
	"fmt"
	"sort"
	"strings"
)

// subscription is a tracked broker subscription, kept so the full set can
// be restored after a session loss.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Subscribe registers a topic subscription with the broker and records it
// for restoration after reconnects.
//
// The registry is consulted first: subscribing to an already tracked topic
// returns (false, nil) without a broker round-trip. A new topic is sent to
// the broker and tracked on success.
//
// Returns:
//   - bool: true if a new subscription was established
//   - error: ErrNotConnected, ErrInvalidTopic, ErrInvalidQoS,
//     ErrInvalidHandler, or ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) (bool, error) {
	if strings.TrimSpace(topic) == "" {
		return false, fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if qos > 2 {
		return false, fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if handler == nil {
		return false, fmt.Errorf("%w: nil handler for %s", ErrInvalidHandler, topic)
	}
	if !c.IsConnected() {
		return false, fmt.Errorf("%w: cannot subscribe to %s", ErrNotConnected, topic)
	}

	c.subMu.Lock()
	if _, exists := c.subscriptions[topic]; exists {
		c.subMu.Unlock()
		c.logger.Debug("subscription already tracked", "topic", topic)
		return false, nil
	}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrSubscribeFailed, topic, token.Error())
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	c.logger.Debug("subscribed", "topic", topic, "qos", qos)
	return true, nil
}

// Unsubscribe removes a topic subscription. Unsubscribing from an
// untracked topic is a no-op and does not contact the broker.
func (c *Client) Unsubscribe(topic string) error {
	c.subMu.Lock()
	_, exists := c.subscriptions[topic]
	c.subMu.Unlock()
	if !exists {
		return nil
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: cannot unsubscribe from %s", ErrNotConnected, topic)
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsubscribeFailed, topic, token.Error())
	}

	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()

	c.logger.Debug("unsubscribed", "topic", topic)
	return nil
}

// ResubscribeAll re-issues every tracked subscription to the broker,
// regardless of what the broker believes it already holds. Used after a
// reconnect, where a clean session may have dropped server-side state.
// Failures are logged and skipped so one bad topic cannot block the rest.
//
// Returns the number of subscriptions successfully restored.
func (c *Client) ResubscribeAll() int {
	c.subMu.Lock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	c.subMu.Unlock()

	restored := 0
	for _, s := range subs {
		token := c.client.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler))
		if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
			c.logger.Warn("resubscribe failed", "topic", s.topic, "error", token.Error())
			continue
		}
		restored++
	}
	return restored
}

// subscribeDefaults establishes the bridge's baseline subscription set on
// a first connect: the device directory, the refresh request topic, and
// the per-device wildcards for status, details and message events.
// Per-zone control topics are added lazily as devices are discovered.
func (c *Client) subscribeDefaults() {
	defaults := []string{
		c.topics.Devices(),
		c.topics.DeviceRefresh(),
		c.topics.AllDeviceStatuses(),
		c.topics.AllDeviceDetails(),
		c.topics.AllDeviceMessages(),
	}
	qos := byte(c.cfg.QoS)
	for _, topic := range defaults {
		if _, err := c.Subscribe(topic, qos, c.routeMessage); err != nil {
			c.logger.Error("default subscription failed", "topic", topic, "error", err)
		}
	}
}

// SubscribeDeviceZones subscribes the control topics for a device's
// stations. Already tracked topics are skipped by the registry, so this
// is safe to call on every device update.
func (c *Client) SubscribeDeviceZones(deviceID string, stations []int) {
	qos := byte(c.cfg.QoS)
	for _, station := range stations {
		topic := c.topics.DeviceZoneSet(deviceID, station)
		added, err := c.Subscribe(topic, qos, c.routeMessage)
		if err != nil {
			c.logger.Warn("zone subscription failed", "topic", topic, "error", err)
			continue
		}
		if added {
			c.logger.Debug("zone control subscribed", "device_id", deviceID, "station", station)
		}
	}
}

// HasSubscription reports whether a topic is tracked.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subscriptions)
}

// SubscribedTopics returns the tracked topics, sorted.
func (c *Client) SubscribedTopics() []string {
	c.subMu.Lock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	c.subMu.Unlock()
	sort.Strings(topics)
	return topics
}
