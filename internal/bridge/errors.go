package bridge

import "errors"

var (
	// ErrUnknownStation indicates a zone command for a station the
	// device does not have.
	ErrUnknownStation = errors.New("unknown station for device")

	// ErrUpstreamUnavailable indicates the command sink rejected a
	// forward, either directly or through the circuit breaker.
	ErrUpstreamUnavailable = errors.New("upstream command sink unavailable")
)
