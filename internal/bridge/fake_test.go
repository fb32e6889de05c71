package bridge

import (
	"context"
	"sync"

	"github.com/nerrad567/bhyve-bridge/internal/command"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/config"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/mqtt"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type brokerPublish struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeBroker satisfies Broker, mirroring the real client's retained
// tracking so publisher tests observe the same bookkeeping.
type fakeBroker struct {
	mu sync.Mutex

	connected  bool
	connectErr error

	publishes    []brokerPublish
	publishErr   error
	failTopics   map[string]error
	cleared      []string
	zoneSubs     map[string][]int
	router       mqtt.MessageHandler
	onConnect    func()
	onDisconnect func(error)
	retained     *mqtt.RetainedTracker
	closed       bool
	connectCalls int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		connected: true,
		zoneSubs:  make(map[string][]int),
		retained:  mqtt.NewRetainedTracker(),
	}
}

func (f *fakeBroker) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	if err, ok := f.failTopics[topic]; ok {
		return err
	}
	f.publishes = append(f.publishes, brokerPublish{topic: topic, payload: append([]byte(nil), payload...), retained: retained})
	if retained {
		f.retained.Record(topic, payload, qos)
	} else {
		f.retained.Remove(topic)
	}
	return nil
}

func (f *fakeBroker) ClearRetained(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, topic)
	f.retained.Remove(topic)
	return nil
}

func (f *fakeBroker) SubscribeDeviceZones(deviceID string, stations []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zoneSubs[deviceID] = append([]int(nil), stations...)
}

func (f *fakeBroker) Retained() *mqtt.RetainedTracker { return f.retained }

func (f *fakeBroker) SetRouter(h mqtt.MessageHandler) { f.router = h }
func (f *fakeBroker) SetOnConnect(fn func())          { f.onConnect = fn }
func (f *fakeBroker) SetOnDisconnect(fn func(error))  { f.onDisconnect = fn }

func (f *fakeBroker) HealthCheck(ctx context.Context) error {
	if !f.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return nil
}

func (f *fakeBroker) published() []brokerPublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]brokerPublish(nil), f.publishes...)
}

// fakeSink satisfies CommandSink for upstream tests.
type fakeSink struct {
	mu        sync.Mutex
	commands  []command.ChangeMode
	refreshes int
	err       error
}

func (s *fakeSink) SendCommand(_ context.Context, ev command.ChangeMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.commands = append(s.commands, ev)
	return nil
}

func (s *fakeSink) RequestRefresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.refreshes++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			Broker:         config.MQTTBrokerConfig{Host: "localhost", Port: 1883},
			QoS:            0,
			Keepalive:      10,
			ConnectTimeout: 1,
			Reconnect:      config.MQTTReconnectConfig{Period: 1, MaxRetries: 3},
			Will:           config.MQTTWillConfig{QoS: 0, Retain: true},
		},
	}
}

func newTestBridge() (*Bridge, *fakeBroker) {
	broker := newFakeBroker()
	b := NewWithBroker(testConfig(), nopLogger{}, metrics.New(), broker)
	return b, broker
}
