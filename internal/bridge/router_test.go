package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/bhyve-bridge/internal/command"
)

// =============================================================================
// State Update Routing
// =============================================================================

func TestRouteStatusMergesStore(t *testing.T) {
	b, _ := newTestBridge()

	b.route("bhyve/device/abc/status", []byte(`{"run_mode":"auto"}`))
	b.route("bhyve/device/abc/status", []byte(`{"battery_level":80}`))

	d, ok := b.Store().Get("abc")
	if !ok {
		t.Fatal("device not created from status update")
	}
	if d.Status["run_mode"] != "auto" || d.Status["battery_level"] != float64(80) {
		t.Errorf("merged status = %v", d.Status)
	}
}

func TestRouteDetailsSubscribesZones(t *testing.T) {
	b, broker := newTestBridge()

	b.route("bhyve/device/abc/details", []byte(`{
		"name": "Front Yard",
		"zones": [
			{"station": 1, "name": "Lawn"},
			{"station": 2, "name": "Beds"}
		]
	}`))

	d, _ := b.Store().Get("abc")
	if d.Details["name"] != "Front Yard" {
		t.Errorf("details = %v", d.Details)
	}

	subs := broker.zoneSubs["abc"]
	if len(subs) != 2 || subs[0] != 1 || subs[1] != 2 {
		t.Errorf("zone subscriptions = %v, want [1 2]", subs)
	}
}

func TestRouteMalformedPayloadsAreDropped(t *testing.T) {
	b, _ := newTestBridge()

	// None of these may panic or create state.
	b.route("bhyve/device/abc/status", []byte(`not json`))
	b.route("bhyve/device/abc/details", []byte(`[1,2,3]`))
	b.route("bhyve/device/abc/message", []byte(`{`))
	b.route("bhyve/devices", []byte(`{"not":"a list"}`))

	if got := b.Store().Count(); got != 0 {
		t.Errorf("malformed payloads created %d devices", got)
	}

	// The router keeps working afterwards.
	b.route("bhyve/device/abc/status", []byte(`{"run_mode":"auto"}`))
	if _, ok := b.Store().Get("abc"); !ok {
		t.Error("router stopped processing after malformed payloads")
	}
}

// =============================================================================
// Event Emission
// =============================================================================

func TestRoutedTrafficEmitsEveryEventKind(t *testing.T) {
	b, _ := newTestBridge()

	fired := make(map[string]int)
	b.OnAll(func(subject string, _ any) { fired[subject]++ },
		EventDeviceStatus,
		EventDeviceDetails,
		EventDeviceMessage,
		EventDevicesList,
		EventWateringStarted,
		EventWateringCompleted,
		EventModeChanged,
	)

	b.route("bhyve/devices", []byte(`["abc"]`))
	b.route("bhyve/device/abc/status", []byte(`{"run_mode":"auto"}`))
	b.route("bhyve/device/abc/details", []byte(`{"name":"Front Yard"}`))
	b.route("bhyve/device/abc/message", []byte(`{
		"event": "watering_in_progress_notification",
		"current_station": 1,
		"run_time": 5
	}`))
	b.route("bhyve/device/abc/message", []byte(`{"event":"watering_complete"}`))
	b.route("bhyve/device/abc/message", []byte(`{"event":"change_mode","mode":"manual"}`))

	want := map[string]int{
		EventDevicesList:       1,
		EventDeviceStatus:      1,
		EventDeviceDetails:     1,
		EventDeviceMessage:     3,
		EventWateringStarted:   1,
		EventWateringCompleted: 1,
		EventModeChanged:       1,
	}
	for subject, n := range want {
		if fired[subject] != n {
			t.Errorf("%s fired %d times, want %d", subject, fired[subject], n)
		}
	}
}

func TestDeviceMessageEmittedForUnknownDiscriminant(t *testing.T) {
	b, _ := newTestBridge()

	var got *DeviceEvent
	b.On(EventDeviceMessage, func(_ string, data any) {
		got = data.(*DeviceEvent)
	})

	b.route("bhyve/device/abc/message", []byte(`{"event":"rain_delay","delay":24}`))

	if got == nil {
		t.Fatal("realtime event with unknown discriminant not surfaced")
	}
	if got.DeviceID != "abc" || got.Payload["event"] != "rain_delay" {
		t.Errorf("device message event = %+v", got)
	}
}

// =============================================================================
// Realtime Events
// =============================================================================

func TestRouteRealtimeWateringLifecycle(t *testing.T) {
	b, _ := newTestBridge()
	b.route("bhyve/device/abc/status", []byte(`{"run_mode":"auto"}`))

	b.route("bhyve/device/abc/message", []byte(`{
		"event": "watering_in_progress_notification",
		"current_station": 2,
		"run_time": 5
	}`))
	if !b.Store().IsWatering("abc") {
		t.Fatal("watering event did not mark device as watering")
	}
	if station, _ := b.Store().WateringStation("abc"); station != 2 {
		t.Errorf("WateringStation() = %d, want 2", station)
	}

	b.route("bhyve/device/abc/message", []byte(`{"event":"watering_complete"}`))
	if b.Store().IsWatering("abc") {
		t.Error("watering_complete did not clear watering state")
	}
	if mode, _ := b.Store().Mode("abc"); mode != "auto" {
		t.Errorf("run mode disturbed by watering lifecycle: %q", mode)
	}
}

func TestWateringNotificationKeepsReportedTiming(t *testing.T) {
	b, _ := newTestBridge()

	var started *WateringEvent
	b.On(EventWateringStarted, func(_ string, data any) {
		started = data.(*WateringEvent)
	})

	b.route("bhyve/device/abc/message", []byte(`{
		"event": "watering_in_progress_notification",
		"current_station": 3,
		"run_time": 10,
		"total_run_time_sec": 600,
		"started_watering_station_at": "2024-06-01T12:00:00.000Z"
	}`))

	wantStart := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d, _ := b.Store().Get("abc")
	if d.Watering == nil {
		t.Fatal("watering notification not stored")
	}
	if d.Watering.TotalRunTimeSec != 600 {
		t.Errorf("TotalRunTimeSec = %v, want 600", d.Watering.TotalRunTimeSec)
	}
	if !d.Watering.StartedAt.Equal(wantStart) {
		t.Errorf("StartedAt = %v, want the notification's %v", d.Watering.StartedAt, wantStart)
	}

	if started == nil {
		t.Fatal("watering start not emitted")
	}
	if started.Watering.TotalRunTimeSec != 600 || !started.Watering.StartedAt.Equal(wantStart) {
		t.Errorf("emitted watering = %+v", started.Watering)
	}
}

func TestWateringNotificationWithoutTimestampDefaults(t *testing.T) {
	b, _ := newTestBridge()

	b.route("bhyve/device/abc/message", []byte(`{
		"event": "watering_in_progress_notification",
		"current_station": 1,
		"run_time": 5
	}`))

	d, _ := b.Store().Get("abc")
	if d.Watering == nil || d.Watering.StartedAt.IsZero() {
		t.Error("start time not defaulted when the notification carries none")
	}
}

func TestRouteRealtimeChangeMode(t *testing.T) {
	b, _ := newTestBridge()

	var change *ModeChange
	b.On(EventModeChanged, func(_ string, data any) {
		change = data.(*ModeChange)
	})

	b.route("bhyve/device/abc/message", []byte(`{"event":"change_mode","mode":"manual"}`))
	if mode, _ := b.Store().Mode("abc"); mode != "manual" {
		t.Errorf("Mode() = %q, want manual", mode)
	}
	if change == nil || change.Mode != "manual" {
		t.Errorf("mode change event = %+v", change)
	}
}

func TestRouteRealtimeUnknownEventIgnored(t *testing.T) {
	b, _ := newTestBridge()
	b.route("bhyve/device/abc/status", []byte(`{"run_mode":"auto"}`))

	b.route("bhyve/device/abc/message", []byte(`{"event":"rain_delay","delay":24}`))

	d, _ := b.Store().Get("abc")
	if d.Watering != nil {
		t.Error("unknown event mutated watering state")
	}
	if mode, _ := b.Store().Mode("abc"); mode != "auto" {
		t.Errorf("unknown event mutated mode: %q", mode)
	}
}

// =============================================================================
// Zone Commands
// =============================================================================

func TestZoneCommandForwarded(t *testing.T) {
	b, _ := newTestBridge()

	var got *ZoneCommand
	b.On(EventZoneCommand, func(_ string, data any) {
		got = data.(*ZoneCommand)
	})

	b.route("bhyve/device/abc/zone/2/set", []byte(`{"state":"on","time":5}`))

	if got == nil {
		t.Fatal("valid zone command not forwarded")
	}
	if got.DeviceID != "abc" || got.Station != 2 {
		t.Errorf("forwarded command = %+v", got)
	}
	if got.Command.State != command.StateOn || got.Command.Minutes != 5 {
		t.Errorf("parsed command = %+v", got.Command)
	}
	if len(got.Event.Stations) != 1 || got.Event.Stations[0].Station != 2 || got.Event.Stations[0].RunTime != 5 {
		t.Errorf("change_mode stations = %+v", got.Event.Stations)
	}
}

func TestZoneCommandOffHasEmptyStations(t *testing.T) {
	b, _ := newTestBridge()

	var got *ZoneCommand
	b.On(EventZoneCommand, func(_ string, data any) {
		got = data.(*ZoneCommand)
	})

	b.route("bhyve/device/abc/zone/2/set", []byte(`{"state":"off"}`))

	if got == nil {
		t.Fatal("OFF command not forwarded")
	}
	if len(got.Event.Stations) != 0 {
		t.Errorf("OFF change_mode stations = %+v, want empty", got.Event.Stations)
	}
}

func TestZoneCommandInvalidNotForwarded(t *testing.T) {
	b, _ := newTestBridge()

	var forwarded bool
	var validationErr *ValidationError
	b.OnAll(func(subject string, data any) {
		switch subject {
		case EventZoneCommand:
			forwarded = true
		case EventValidationError:
			validationErr = data.(*ValidationError)
		}
	}, EventZoneCommand, EventValidationError)

	b.route("bhyve/device/abc/zone/2/set", []byte(`{"state":"MAYBE"}`))

	if forwarded {
		t.Error("invalid command was forwarded")
	}
	if validationErr == nil {
		t.Fatal("no validation error emitted")
	}
	if !errors.Is(validationErr.Err, command.ErrInvalidState) {
		t.Errorf("validation error = %v", validationErr.Err)
	}
}

func TestZoneCommandUnknownStationRejected(t *testing.T) {
	b, _ := newTestBridge()
	b.route("bhyve/device/abc/details", []byte(`{
		"zones": [{"station": 1, "name": "Lawn"}]
	}`))

	var validationErr *ValidationError
	b.On(EventValidationError, func(_ string, data any) {
		validationErr = data.(*ValidationError)
	})

	b.route("bhyve/device/abc/zone/9/set", []byte(`{"state":"on","time":5}`))

	if validationErr == nil {
		t.Fatal("command for unknown station accepted")
	}
	if !errors.Is(validationErr.Err, ErrUnknownStation) {
		t.Errorf("validation error = %v", validationErr.Err)
	}
}

// =============================================================================
// Device Directory
// =============================================================================

func TestDevicesListNeverRemovesState(t *testing.T) {
	b, broker := newTestBridge()

	b.route("bhyve/device/keep/status", []byte(`{"run_mode":"auto"}`))
	b.route("bhyve/device/gone/details", []byte(`{"name":"Shed"}`))
	if err := b.PublishDeviceSnapshot("gone", map[string]any{"name": "Shed"}); err != nil {
		t.Fatal(err)
	}

	var listed []string
	b.On(EventDevicesList, func(_ string, data any) {
		listed = data.([]string)
	})

	b.route("bhyve/devices", []byte(`["keep"]`))

	if len(listed) != 1 || listed[0] != "keep" {
		t.Errorf("devices list event = %v, want [keep]", listed)
	}
	// Delisting is observational only. Removal is an explicit
	// CleanupDevice request.
	if _, ok := b.Store().Get("gone"); !ok {
		t.Error("directory update removed a device from the store")
	}
	if !broker.retained.Has("bhyve/device/gone/details") {
		t.Error("directory update cleared another device's retained footprint")
	}
}

// =============================================================================
// Refresh and Handler Slots
// =============================================================================

func TestDeviceRefreshEmitted(t *testing.T) {
	b, _ := newTestBridge()

	var refreshed bool
	b.On(EventDeviceRefresh, func(string, any) { refreshed = true })

	b.route("bhyve/device/refresh", nil)
	if !refreshed {
		t.Error("refresh request not emitted")
	}
}

func TestHandlerSlotPerKindLastWins(t *testing.T) {
	b, _ := newTestBridge()

	var first, second, other bool
	b.On(EventDeviceRefresh, func(string, any) { first = true })
	b.On(EventDeviceRefresh, func(string, any) { second = true })
	b.On(EventDeviceStatus, func(string, any) { other = true })

	b.route("bhyve/device/refresh", nil)

	if first {
		t.Error("replaced handler still received events")
	}
	if !second {
		t.Error("current handler did not receive events")
	}
	// Slots are per kind. A registration for one kind never displaces
	// another kind's handler.
	b.route("bhyve/device/abc/status", []byte(`{"run_mode":"auto"}`))
	if !other {
		t.Error("handler for a different kind was displaced")
	}
}

func TestOnNilClearsSlot(t *testing.T) {
	b, _ := newTestBridge()

	var fired bool
	b.On(EventDeviceRefresh, func(string, any) { fired = true })
	b.On(EventDeviceRefresh, nil)

	b.route("bhyve/device/refresh", nil)
	if fired {
		t.Error("cleared slot still received events")
	}
}

func TestRouteWithoutHandlerDoesNotPanic(t *testing.T) {
	b, _ := newTestBridge()
	b.route("bhyve/device/refresh", nil)
	b.route("bhyve/device/abc/zone/1/set", []byte(`{"state":"off"}`))
	b.route("bhyve/devices", []byte(`["abc"]`))
}
