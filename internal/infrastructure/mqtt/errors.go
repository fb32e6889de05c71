package mqtt

import "errors"

// Sentinel errors for MQTT operations. Callers match with errors.Is to
// distinguish transient conditions (throttled, not connected) from terminal
// ones (retries exhausted).
var (
	// ErrNotConnected indicates an operation requires an active broker
	// session but the client is not connected.
	ErrNotConnected = errors.New("mqtt client not connected")

	// ErrConnectionFailed indicates a connection attempt was made and
	// rejected or timed out. Transient; the caller may retry.
	ErrConnectionFailed = errors.New("mqtt connection failed")

	// ErrReconnectThrottled indicates a connection attempt was refused
	// because the minimum interval since the previous attempt has not
	// elapsed. No attempt was made and no retry was consumed.
	ErrReconnectThrottled = errors.New("mqtt reconnect throttled")

	// ErrRetriesExhausted indicates the consecutive failure budget is
	// spent. Terminal; the caller should surface it rather than retry.
	ErrRetriesExhausted = errors.New("mqtt connection retries exhausted")

	// ErrShuttingDown indicates the client has been closed and refuses
	// further connection attempts.
	ErrShuttingDown = errors.New("mqtt client shutting down")

	// ErrPublishFailed indicates a publish was not accepted by the broker.
	ErrPublishFailed = errors.New("mqtt publish failed")

	// ErrSubscribeFailed indicates a subscription was not accepted.
	ErrSubscribeFailed = errors.New("mqtt subscribe failed")

	// ErrUnsubscribeFailed indicates an unsubscribe was not accepted.
	ErrUnsubscribeFailed = errors.New("mqtt unsubscribe failed")

	// ErrInvalidTopic indicates a topic is empty or malformed.
	ErrInvalidTopic = errors.New("invalid mqtt topic")

	// ErrInvalidQoS indicates a QoS level outside 0..2.
	ErrInvalidQoS = errors.New("invalid mqtt qos level")

	// ErrInvalidHandler indicates a nil message handler.
	ErrInvalidHandler = errors.New("invalid mqtt message handler")
)
