package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/config"
)

// MessageHandler processes an inbound MQTT message.
type MessageHandler func(topic string, payload []byte)

// Logger is the minimal logging surface the client needs. The
// infrastructure logging package satisfies it.
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

// connState tracks the client's connection lifecycle.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateDisconnecting
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisconnecting:
		return "disconnecting"
	}
	return "unknown"
}

// Client supervises a single broker session for the bridge.
//
// It owns connection pacing and the consecutive failure budget, tracks
// subscriptions for restoration after a session loss, and mirrors retained
// publishes so they can be cleared later. Connect is expected to be driven
// by one supervision goroutine; message handlers run on paho's router
// goroutine.
type Client struct {
	cfg    config.MQTTConfig
	client pahomqtt.Client
	topics Topics
	logger Logger

	stateMu    sync.Mutex
	state      connState
	closed     bool
	retryCount int

	// limiter enforces the minimum interval between connection attempts.
	limiter *rate.Limiter

	subMu         sync.Mutex
	subscriptions map[string]subscription

	retained *RetainedTracker

	callbackMu   sync.RWMutex
	router       MessageHandler
	onConnect    func()
	onDisconnect func(error)
}

// NewClient creates a client from bridge configuration. No connection is
// attempted until Connect.
func NewClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:           cfg,
		logger:        noopLogger{},
		state:         stateDisconnected,
		limiter:       rate.NewLimiter(rate.Every(cfg.GetReconnectPeriod()), 1),
		subscriptions: make(map[string]subscription),
		retained:      NewRetainedTracker(),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	c.client = pahomqtt.NewClient(opts)

	return c
}

// SetLogger replaces the client's logger. Call before Connect.
func (c *Client) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetRouter installs the handler that receives every message from the
// default and zone subscriptions. Call before Connect.
func (c *Client) SetRouter(h MessageHandler) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.router = h
}

// SetOnConnect installs a callback fired after each successful (re)connect,
// once subscriptions are restored and availability is announced.
func (c *Client) SetOnConnect(fn func()) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onConnect = fn
}

// SetOnDisconnect installs a callback fired when an established session is
// lost. It is not fired on graceful Close.
func (c *Client) SetOnDisconnect(fn func(error)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onDisconnect = fn
}

// Connect attempts to establish a broker session.
//
// Attempts are throttled to one per reconnect period; a throttled call
// returns ErrReconnectThrottled without consuming a retry. Consecutive
// failures are counted, and once the budget is spent every further call
// returns ErrRetriesExhausted until a connection succeeds. A successful
// attempt resets the count.
func (c *Client) Connect() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return ErrShuttingDown
	}
	if c.state == stateConnected || c.state == stateConnecting {
		c.stateMu.Unlock()
		return nil
	}
	if c.cfg.Reconnect.MaxRetries > 0 && c.retryCount >= c.cfg.Reconnect.MaxRetries {
		c.stateMu.Unlock()
		return fmt.Errorf("%w: %d consecutive failures", ErrRetriesExhausted, c.retryCount)
	}
	if !c.limiter.Allow() {
		c.stateMu.Unlock()
		return fmt.Errorf("%w: attempt within %s of previous", ErrReconnectThrottled, c.cfg.GetReconnectPeriod())
	}
	c.state = stateConnecting
	c.stateMu.Unlock()

	c.logger.Info("connecting to broker",
		"host", c.cfg.Broker.Host,
		"port", c.cfg.Broker.Port,
		"attempt", c.attemptNumber())

	token := c.client.Connect()
	if !token.WaitTimeout(connectWait(c.cfg)) || token.Error() != nil {
		c.stateMu.Lock()
		c.state = stateDisconnected
		c.retryCount++
		count := c.retryCount
		exhausted := c.cfg.Reconnect.MaxRetries > 0 && count >= c.cfg.Reconnect.MaxRetries
		c.stateMu.Unlock()

		err := token.Error()
		if err == nil {
			err = fmt.Errorf("timed out after %s", connectWait(c.cfg))
		}
		c.logger.Warn("connection attempt failed", "error", err, "failures", count)

		if exhausted {
			return fmt.Errorf("%w: %d consecutive failures, last: %v", ErrRetriesExhausted, count, err)
		}
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	// handleConnect runs on paho's callback goroutine and completes the
	// transition: state, subscriptions, availability announcements.
	return nil
}

// handleConnect completes a successful (re)connect.
func (c *Client) handleConnect() {
	c.stateMu.Lock()
	c.state = stateConnected
	c.retryCount = 0
	c.stateMu.Unlock()

	c.logger.Info("connected to broker", "host", c.cfg.Broker.Host, "port", c.cfg.Broker.Port)

	c.subMu.Lock()
	empty := len(c.subscriptions) == 0
	c.subMu.Unlock()

	if empty {
		c.subscribeDefaults()
	} else {
		restored := c.ResubscribeAll()
		c.logger.Info("subscriptions restored", "count", restored)
	}

	c.announceAvailability()

	c.callbackMu.RLock()
	fn := c.onConnect
	c.callbackMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// handleConnectionLost reacts to an unexpected session loss.
func (c *Client) handleConnectionLost(err error) {
	c.stateMu.Lock()
	if c.state != stateDisconnecting {
		c.state = stateDisconnected
	}
	c.stateMu.Unlock()

	c.logger.Warn("broker connection lost", "error", err)

	c.callbackMu.RLock()
	fn := c.onDisconnect
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// announceAvailability publishes the liveness timestamp and the retained
// availability flag after a connect.
func (c *Client) announceAvailability() {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	if err := c.Publish(c.topics.Alive(), []byte(ts), 0, false); err != nil {
		c.logger.Warn("alive publish failed", "error", err)
	}
	if err := c.Publish(c.topics.Online(), []byte("true"), byte(c.cfg.Will.QoS), c.cfg.Will.Retain); err != nil {
		c.logger.Warn("online publish failed", "error", err)
	}
}

// Close gracefully shuts the client down.
//
// If a session is active it publishes the retained availability flag as
// "false" before disconnecting, so subscribers see a deliberate offline
// rather than a will-triggered one. Close is idempotent and safe to call
// before any connection was established. After Close, Connect returns
// ErrShuttingDown.
func (c *Client) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	wasConnected := c.state == stateConnected
	c.state = stateDisconnecting
	c.stateMu.Unlock()

	if wasConnected && c.client.IsConnected() {
		token := c.client.Publish(c.topics.Online(), byte(c.cfg.Will.QoS), c.cfg.Will.Retain, []byte("false"))
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			c.logger.Warn("offline publish on close failed", "error", token.Error())
		}
		c.client.Disconnect(disconnectQuiesce)
	}

	c.stateMu.Lock()
	c.state = stateDisconnected
	c.stateMu.Unlock()

	c.logger.Info("mqtt client closed")
	return nil
}

// IsConnected reports whether a broker session is active.
func (c *Client) IsConnected() bool {
	c.stateMu.Lock()
	connected := c.state == stateConnected
	c.stateMu.Unlock()
	return connected && c.client.IsConnected()
}

// ConnectionState returns the lifecycle state as a string, for status
// reporting.
func (c *Client) ConnectionState() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state.String()
}

// RetryCount returns the current consecutive failure count.
func (c *Client) RetryCount() int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.retryCount
}

func (c *Client) attemptNumber() int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.retryCount + 1
}

// Retained exposes the retained-message tracker.
func (c *Client) Retained() *RetainedTracker {
	return c.retained
}

// HealthCheck verifies the broker session is alive. It respects context
// cancellation so health probes never hang.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// wrapHandler adapts a bridge handler to paho's signature, isolating
// handler panics so one bad message cannot kill the router goroutine.
func (c *Client) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("message handler panicked",
					"topic", msg.Topic(),
					"panic", r)
			}
		}()
		h(msg.Topic(), msg.Payload())
	}
}

// routeMessage is the handler bound to every bridge subscription. It
// forwards to the installed router, dropping messages that arrive before
// one is installed.
func (c *Client) routeMessage(topic string, payload []byte) {
	c.callbackMu.RLock()
	router := c.router
	c.callbackMu.RUnlock()
	if router == nil {
		c.logger.Warn("message received with no router installed", "topic", topic)
		return
	}
	router(topic, payload)
}
