package mqtt

import (
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RetainedMessage records a retained payload the bridge has published.
type RetainedMessage struct {
	Payload   []byte
	QoS       byte
	Timestamp time.Time
}

// RetainedTracker mirrors the set of retained messages this bridge has
// published, keyed by topic. The broker is the source of truth for retained
// state; the tracker exists so the bridge can later clear exactly what it
// put there, without a broker query protocol.
//
// Entries never expire. A topic leaves the tracker when the bridge clears
// it or overwrites it with a non-retained publish.
type RetainedTracker struct {
	store *gocache.Cache
}

// NewRetainedTracker creates an empty tracker.
func NewRetainedTracker() *RetainedTracker {
	return &RetainedTracker{
		store: gocache.New(gocache.NoExpiration, 0),
	}
}

// Record notes a retained publish. The payload is copied so later caller
// mutations cannot corrupt the record.
func (t *RetainedTracker) Record(topic string, payload []byte, qos byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	t.store.Set(topic, RetainedMessage{
		Payload:   buf,
		QoS:       qos,
		Timestamp: time.Now().UTC(),
	}, gocache.NoExpiration)
}

// Remove forgets a topic. Removing an untracked topic is a no-op.
func (t *RetainedTracker) Remove(topic string) {
	t.store.Delete(topic)
}

// Get returns the tracked message for a topic.
func (t *RetainedTracker) Get(topic string) (RetainedMessage, bool) {
	v, ok := t.store.Get(topic)
	if !ok {
		return RetainedMessage{}, false
	}
	return v.(RetainedMessage), true
}

// Has reports whether a topic is tracked.
func (t *RetainedTracker) Has(topic string) bool {
	_, ok := t.store.Get(topic)
	return ok
}

// Topics returns all tracked topics, sorted for deterministic iteration.
func (t *RetainedTracker) Topics() []string {
	items := t.store.Items()
	topics := make([]string, 0, len(items))
	for topic := range items {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// TopicsForDevice returns the tracked topics under a single device's
// subtree, sorted. Used when a device disappears and its retained
// footprint must be cleared.
func (t *RetainedTracker) TopicsForDevice(deviceID string) []string {
	prefix := TopicPrefix + "/device/" + deviceID + "/"
	var topics []string
	for topic := range t.store.Items() {
		if strings.HasPrefix(topic, prefix) {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Len returns the number of tracked topics.
func (t *RetainedTracker) Len() int {
	return t.store.ItemCount()
}
