package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/bhyve-bridge/internal/command"
	"github.com/nerrad567/bhyve-bridge/internal/device"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/config"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/mqtt"
)

// ZoneCommand is a validated zone control request together with its
// change_mode translation, delivered through the EventZoneCommand
// subject.
type ZoneCommand struct {
	DeviceID string
	Station  int
	Command  command.Command
	Event    command.ChangeMode
}

// ValidationError describes a rejected zone control payload, delivered
// through the EventValidationError subject.
type ValidationError struct {
	Topic   string
	Payload []byte
	Err     error
}

// DeviceEvent carries a routed per-device payload, delivered through the
// EventDeviceStatus, EventDeviceDetails and EventDeviceMessage subjects.
type DeviceEvent struct {
	DeviceID string
	Payload  map[string]any
}

// WateringEvent reports a watering lifecycle transition, delivered
// through the EventWateringStarted and EventWateringCompleted subjects.
type WateringEvent struct {
	DeviceID string
	Watering device.WateringStatus
}

// ModeChange reports a device's new run mode, delivered through the
// EventModeChanged subject.
type ModeChange struct {
	DeviceID string
	Mode     string
}

// Broker is the slice of the MQTT client the bridge drives. Satisfied by
// *mqtt.Client.
type Broker interface {
	Connect() error
	Close() error
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
	ClearRetained(topic string) error
	SubscribeDeviceZones(deviceID string, stations []int)
	Retained() *mqtt.RetainedTracker
	SetRouter(mqtt.MessageHandler)
	SetOnConnect(func())
	SetOnDisconnect(func(error))
	HealthCheck(ctx context.Context) error
}

// Bridge connects the broker-facing MQTT surface to the cloud-facing
// event handler.
//
// Inbound broker messages flow through the router into the device store
// and out through the per-kind handler slots; the supervision loop in
// Run keeps the broker session alive within the configured retry budget.
type Bridge struct {
	cfg     *config.Config
	log     Logger
	metrics *metrics.Metrics

	broker Broker
	store  *device.Store
	topics mqtt.Topics

	events registry

	// lost wakes the supervision loop when an established session drops.
	lost chan struct{}

	connectedOnceMu sync.Mutex
	connectedOnce   bool

	closeOnce sync.Once
}

// Logger is the logging surface the bridge needs. The infrastructure
// logging package satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New assembles a bridge around an MQTT client built from configuration.
func New(cfg *config.Config, log Logger, m *metrics.Metrics) *Bridge {
	client := mqtt.NewClient(cfg.MQTT)
	client.SetLogger(log)
	return NewWithBroker(cfg, log, m, client)
}

// NewWithBroker assembles a bridge around an existing broker client.
func NewWithBroker(cfg *config.Config, log Logger, m *metrics.Metrics, broker Broker) *Bridge {
	b := &Bridge{
		cfg:     cfg,
		log:     log,
		metrics: m,
		broker:  broker,
		store:   device.NewStore(),
		lost:    make(chan struct{}, 1),
	}

	broker.SetRouter(b.route)
	broker.SetOnConnect(b.handleConnected)
	broker.SetOnDisconnect(b.handleDisconnected)

	return b
}

// Store exposes the device state store.
func (b *Bridge) Store() *device.Store {
	return b.store
}

// Run drives the broker session until the context is cancelled or the
// retry budget is exhausted.
//
// Connection attempts are paced at the configured reconnect period.
// Throttled and failed attempts are retried; an exhausted retry budget is
// terminal and returned to the caller. On context cancellation the
// session is shut down gracefully and Run returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Close()

	period := b.cfg.MQTT.GetReconnectPeriod()
	for {
		bo := backoff.WithContext(backoff.NewConstantBackOff(period), ctx)
		if err := backoff.Retry(b.connectOnce, bo); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-b.lost:
			b.log.Info("session lost, supervising reconnect")
		}
	}
}

// connectOnce classifies a single connection attempt for the retry loop.
func (b *Bridge) connectOnce() error {
	if b.broker.IsConnected() {
		return nil
	}
	err := b.broker.Connect()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mqtt.ErrRetriesExhausted), errors.Is(err, mqtt.ErrShuttingDown):
		return backoff.Permanent(err)
	default:
		// Throttled and failed attempts wait out the period and retry.
		return err
	}
}

// handleConnected runs after every established session.
func (b *Bridge) handleConnected() {
	b.connectedOnceMu.Lock()
	reconnect := b.connectedOnce
	b.connectedOnce = true
	b.connectedOnceMu.Unlock()

	if reconnect {
		b.metrics.Reconnects.Inc()
		b.log.Info("broker session re-established")
	} else {
		b.log.Info("broker session established")
	}

	// Re-announce the directory so late subscribers converge.
	if b.store.Count() > 0 {
		if err := b.PublishDevicesList(); err != nil {
			b.log.Warn("device list publish after connect failed", "error", err)
		}
	}
}

func (b *Bridge) handleDisconnected(err error) {
	b.log.Debug("session loss signalled to supervisor", "error", err)
	select {
	case b.lost <- struct{}{}:
	default:
	}
}

// Close shuts the broker session down gracefully. Idempotent.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.broker.Close()
	})
	return err
}

// HealthCheck reports whether the broker session is alive.
func (b *Bridge) HealthCheck(ctx context.Context) error {
	return b.broker.HealthCheck(ctx)
}
