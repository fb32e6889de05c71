package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/config"
)

// fakeToken satisfies pahomqtt.Token with an immediate result.
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMessage satisfies pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient satisfies pahomqtt.Client, recording calls so tests can
// assert on broker traffic without a broker.
type fakeClient struct {
	mu sync.Mutex

	connected bool

	connectErr   error
	subscribeErr error
	publishErr   error
	unsubErr     error

	connectCalls int

	subscribeCalls []string
	unsubCalls     []string
	publishCalls   []publishCall
	disconnects    int
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeClient) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr == nil {
		f.connected = true
	}
	return &fakeToken{err: f.connectErr}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return &fakeToken{err: f.publishErr}
	}
	var buf []byte
	switch p := payload.(type) {
	case []byte:
		buf = append([]byte(nil), p...)
	case string:
		buf = []byte(p)
	}
	f.publishCalls = append(f.publishCalls, publishCall{topic: topic, qos: qos, retained: retained, payload: buf})
	return &fakeToken{}
}

func (f *fakeClient) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	f.subscribeCalls = append(f.subscribeCalls, topic)
	return &fakeToken{}
}

func (f *fakeClient) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	for topic := range filters {
		f.Subscribe(topic, filters[topic], cb)
	}
	return &fakeToken{}
}

func (f *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsubErr != nil {
		return &fakeToken{err: f.unsubErr}
	}
	f.unsubCalls = append(f.unsubCalls, topics...)
	return &fakeToken{}
}

func (f *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakeClient) subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribeCalls...)
}

func (f *fakeClient) published() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.publishCalls...)
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:         config.MQTTBrokerConfig{Host: "localhost", Port: 1883},
		QoS:            0,
		Keepalive:      10,
		ConnectTimeout: 1,
		CleanSession:   true,
		Reconnect:      config.MQTTReconnectConfig{Period: 5, MaxRetries: 10},
		Will:           config.MQTTWillConfig{QoS: 0, Retain: true},
	}
}

// newTestClient wires a Client around a fake paho client in the connected
// state, with an unthrottled limiter so tests control pacing explicitly.
func newTestClient(fake *fakeClient) *Client {
	fake.connected = true
	return &Client{
		cfg:           testMQTTConfig(),
		client:        fake,
		logger:        noopLogger{},
		state:         stateConnected,
		limiter:       rate.NewLimiter(rate.Inf, 1),
		subscriptions: make(map[string]subscription),
		retained:      NewRetainedTracker(),
	}
}

// newDisconnectedClient wires a Client around a fake in the disconnected
// state, ready for Connect tests.
func newDisconnectedClient(fake *fakeClient, limiter *rate.Limiter) *Client {
	return &Client{
		cfg:           testMQTTConfig(),
		client:        fake,
		logger:        noopLogger{},
		state:         stateDisconnected,
		limiter:       limiter,
		subscriptions: make(map[string]subscription),
		retained:      NewRetainedTracker(),
	}
}
