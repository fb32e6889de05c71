package command

import "errors"

// Sentinel errors for command validation. The router matches these to
// count and report rejected commands without forwarding anything upstream.
var (
	// ErrMalformedPayload indicates the payload is not a JSON object of
	// the expected shape, or carries fields the schema does not allow.
	ErrMalformedPayload = errors.New("malformed command payload")

	// ErrInvalidState indicates a missing state field or a value other
	// than ON/OFF in any letter case.
	ErrInvalidState = errors.New("invalid command state")

	// ErrMissingTime indicates an ON command without a watering time.
	ErrMissingTime = errors.New("watering time required for ON")

	// ErrInvalidTime indicates a watering time outside 1..999 minutes.
	ErrInvalidTime = errors.New("watering time out of range")
)
