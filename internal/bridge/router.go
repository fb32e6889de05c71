package bridge

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/bhyve-bridge/internal/command"
	"github.com/nerrad567/bhyve-bridge/internal/device"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/mqtt"
)

// Realtime event discriminants recognised on device message topics.
const (
	eventWateringInProgress = "watering_in_progress_notification"
	eventWateringComplete   = "watering_complete"
	eventChangeMode         = "change_mode"
)

// route dispatches one inbound broker message. It never panics and never
// lets one malformed message affect the next: bad payloads are counted,
// logged and dropped.
func (b *Bridge) route(topic string, payload []byte) {
	switch topic {
	case b.topics.Devices():
		b.handleDevicesList(payload)
		return
	case b.topics.DeviceRefresh():
		b.metrics.MessagesRouted.WithLabelValues("device_refresh").Inc()
		b.emit(EventDeviceRefresh, nil)
		return
	}

	if deviceID, station, err := mqtt.ParseZoneSet(topic); err == nil {
		b.handleZoneCommand(topic, deviceID, station, payload)
		return
	}

	if deviceID, kind, ok := mqtt.ParseDeviceTopic(topic); ok {
		switch kind {
		case "status":
			b.handleStatus(deviceID, payload)
		case "details":
			b.handleDetails(deviceID, payload)
		case "message":
			b.handleRealtime(deviceID, payload)
		}
		return
	}

	b.metrics.MessagesRouted.WithLabelValues("unhandled").Inc()
	b.log.Debug("unhandled topic", "topic", topic)
}

// handleDevicesList decodes the device directory and hands it to the
// devices_list slot. The list never removes state on its own; device
// removal is an explicit CleanupDevice request.
func (b *Bridge) handleDevicesList(payload []byte) {
	var ids []string
	if err := json.Unmarshal(payload, &ids); err != nil {
		b.metrics.MessagesDropped.Inc()
		b.log.Warn("malformed device list", "error", err)
		return
	}
	b.metrics.MessagesRouted.WithLabelValues("devices_list").Inc()
	b.emit(EventDevicesList, ids)
}

func (b *Bridge) handleStatus(deviceID string, payload []byte) {
	var status map[string]any
	if err := json.Unmarshal(payload, &status); err != nil {
		b.metrics.MessagesDropped.Inc()
		b.log.Warn("malformed status payload", "device_id", deviceID, "error", err)
		return
	}
	b.metrics.MessagesRouted.WithLabelValues("status").Inc()
	b.store.MergeStatus(deviceID, status)
	b.emit(EventDeviceStatus, &DeviceEvent{DeviceID: deviceID, Payload: status})
}

// handleDetails replaces the device's details and lazily subscribes the
// control topics for every zone the details describe.
func (b *Bridge) handleDetails(deviceID string, payload []byte) {
	var details map[string]any
	if err := json.Unmarshal(payload, &details); err != nil {
		b.metrics.MessagesDropped.Inc()
		b.log.Warn("malformed details payload", "device_id", deviceID, "error", err)
		return
	}
	b.metrics.MessagesRouted.WithLabelValues("details").Inc()
	b.store.ReplaceDetails(deviceID, details)

	if d, ok := b.store.Get(deviceID); ok {
		if stations := d.Stations(); len(stations) > 0 {
			b.broker.SubscribeDeviceZones(deviceID, stations)
		}
	}
	b.emit(EventDeviceDetails, &DeviceEvent{DeviceID: deviceID, Payload: details})
}

// handleRealtime applies a realtime event to the device store. Events
// with unknown discriminants are ignored.
func (b *Bridge) handleRealtime(deviceID string, payload []byte) {
	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		b.metrics.MessagesDropped.Inc()
		b.log.Warn("malformed realtime event", "device_id", deviceID, "error", err)
		return
	}

	b.emit(EventDeviceMessage, &DeviceEvent{DeviceID: deviceID, Payload: event})

	name, _ := event["event"].(string)
	switch name {
	case eventWateringInProgress:
		ws := wateringFromEvent(event)
		b.store.SetWatering(deviceID, ws)
		b.metrics.MessagesRouted.WithLabelValues("message").Inc()
		b.log.Debug("watering started",
			"device_id", deviceID,
			"station", ws.CurrentStation,
			"run_time", ws.RunTime)
		if d, ok := b.store.Get(deviceID); ok && d.Watering != nil {
			b.emit(EventWateringStarted, &WateringEvent{DeviceID: deviceID, Watering: *d.Watering})
		}
	case eventWateringComplete:
		b.store.CompleteWatering(deviceID)
		b.metrics.MessagesRouted.WithLabelValues("message").Inc()
		b.log.Debug("watering complete", "device_id", deviceID)
		ev := &WateringEvent{DeviceID: deviceID}
		if d, ok := b.store.Get(deviceID); ok && d.Watering != nil {
			ev.Watering = *d.Watering
		}
		b.emit(EventWateringCompleted, ev)
	case eventChangeMode:
		mode, _ := event["mode"].(string)
		if mode != "" {
			b.store.SetMode(deviceID, mode)
			b.emit(EventModeChanged, &ModeChange{DeviceID: deviceID, Mode: mode})
		}
		b.metrics.MessagesRouted.WithLabelValues("message").Inc()
		b.log.Debug("mode changed", "device_id", deviceID, "mode", mode)
	default:
		b.metrics.MessagesRouted.WithLabelValues("unhandled").Inc()
		b.log.Debug("ignoring realtime event", "device_id", deviceID, "event", name)
	}
}

// wateringFromEvent extracts the watering fields a notification carries:
// station, run time in minutes, total seconds remaining, and the start
// timestamp when parseable.
func wateringFromEvent(event map[string]any) device.WateringStatus {
	ws := device.WateringStatus{}
	if station, ok := event["current_station"].(float64); ok {
		ws.CurrentStation = int(station)
	}
	if runTime, ok := event["run_time"].(float64); ok {
		ws.RunTime = runTime
	}
	if total, ok := event["total_run_time_sec"].(float64); ok {
		ws.TotalRunTimeSec = total
	}
	if started, ok := event["started_watering_station_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, started); err == nil {
			ws.StartedAt = ts.UTC()
		}
	}
	return ws
}

// handleZoneCommand validates a zone control payload and forwards the
// change_mode translation through the handler slot. Invalid commands are
// reported and never forwarded.
func (b *Bridge) handleZoneCommand(topic, deviceID string, station int, payload []byte) {
	cmd, err := command.Parse(payload)
	if err != nil {
		b.rejectCommand(topic, payload, err)
		return
	}

	// The station must belong to the device when its zones are known.
	if d, ok := b.store.Get(deviceID); ok {
		if stations := d.Stations(); len(stations) > 0 && !containsStation(stations, station) {
			b.rejectCommand(topic, payload, ErrUnknownStation)
			return
		}
	}

	b.metrics.MessagesRouted.WithLabelValues("zone_set").Inc()
	b.emit(EventZoneCommand, &ZoneCommand{
		DeviceID: deviceID,
		Station:  station,
		Command:  cmd,
		Event:    command.NewChangeMode(deviceID, station, cmd, time.Now()),
	})
}

func (b *Bridge) rejectCommand(topic string, payload []byte, err error) {
	b.metrics.ValidationErrors.Inc()
	b.log.Warn("zone command rejected", "topic", topic, "error", err)
	b.emit(EventValidationError, &ValidationError{
		Topic:   topic,
		Payload: payload,
		Err:     err,
	})
}

func containsStation(stations []int, station int) bool {
	for _, s := range stations {
		if s == station {
			return true
		}
	}
	return false
}
