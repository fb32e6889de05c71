package command

import "time"

// State is a normalized zone command state.
type State string

const (
	// StateOn starts a manual watering run.
	StateOn State = "ON"
	// StateOff stops watering.
	StateOff State = "OFF"
)

// Command is a validated zone control request.
type Command struct {
	// State is normalized to upper case.
	State State
	// Minutes is the requested watering time. Meaningful only when
	// HasTime is true; always set for ON commands.
	Minutes float64
	// HasTime reports whether the payload carried a time field.
	HasTime bool
}

// On reports whether the command starts watering.
func (c Command) On() bool {
	return c.State == StateOn
}

// StationRun names a station and its run time within a change_mode event.
type StationRun struct {
	Station int     `json:"station"`
	RunTime float64 `json:"run_time"`
}

// ChangeMode is the event envelope forwarded to the cloud side to start
// or stop manual watering.
type ChangeMode struct {
	Event     string       `json:"event"`
	Mode      string       `json:"mode"`
	DeviceID  string       `json:"device_id"`
	Timestamp string       `json:"timestamp"`
	Stations  []StationRun `json:"stations"`
}

// timestampLayout matches the cloud API's expected format, with
// millisecond precision pinned to zero.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// NewChangeMode builds the change_mode event for a validated command.
//
// An ON command yields a single-entry station list carrying the run time;
// an OFF command yields an empty list, which the cloud side interprets as
// "stop watering".
func NewChangeMode(deviceID string, station int, cmd Command, now time.Time) ChangeMode {
	ev := ChangeMode{
		Event:     "change_mode",
		Mode:      "manual",
		DeviceID:  deviceID,
		Timestamp: now.UTC().Format(timestampLayout),
		Stations:  []StationRun{},
	}
	if cmd.On() {
		ev.Stations = []StationRun{{Station: station, RunTime: cmd.Minutes}}
	}
	return ev
}
