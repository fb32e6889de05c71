package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// minMinutes and maxMinutes bound the watering time in minutes.
	minMinutes = 1
	maxMinutes = 999
)

// rawCommand mirrors the accepted payload shape. Pointers distinguish
// absent fields from zero values.
type rawCommand struct {
	State *string  `json:"state"`
	Time  *float64 `json:"time"`
}

// Parse validates a zone control payload and returns the normalized
// command.
//
// Rules:
//   - The payload must be a JSON object with no fields beyond state
//     and time.
//   - state is required and must be ON or OFF in any letter case.
//   - time must be a number between 1 and 999 minutes when present.
//   - An ON command must carry a time. An OFF command may carry one,
//     which is validated and then ignored.
//
// Returns:
//   - Command: The validated command with state upper-cased
//   - error: ErrMalformedPayload, ErrInvalidState, ErrMissingTime, or
//     ErrInvalidTime
func Parse(payload []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var raw rawCommand
	if err := dec.Decode(&raw); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return Command{}, fmt.Errorf("%w: trailing data after command object", ErrMalformedPayload)
	}

	if raw.State == nil {
		return Command{}, fmt.Errorf("%w: state field required", ErrInvalidState)
	}

	var state State
	switch strings.ToUpper(*raw.State) {
	case string(StateOn):
		state = StateOn
	case string(StateOff):
		state = StateOff
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidState, *raw.State)
	}

	cmd := Command{State: state}
	if raw.Time != nil {
		if *raw.Time < minMinutes || *raw.Time > maxMinutes {
			return Command{}, fmt.Errorf("%w: %v minutes (allowed %d..%d)",
				ErrInvalidTime, *raw.Time, minMinutes, maxMinutes)
		}
		cmd.Minutes = *raw.Time
		cmd.HasTime = true
	}

	if state == StateOn && !cmd.HasTime {
		return Command{}, fmt.Errorf("%w: got %s", ErrMissingTime, *raw.State)
	}

	return cmd, nil
}
