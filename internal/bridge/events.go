package bridge

import "sync"

// Event subjects emitted through the bridge's per-kind handler slots.
const (
	// EventDeviceStatus carries a *DeviceEvent for every routed partial
	// status update.
	EventDeviceStatus = "device_status"

	// EventDeviceDetails carries a *DeviceEvent for every routed details
	// replacement.
	EventDeviceDetails = "device_details"

	// EventDeviceMessage carries a *DeviceEvent for every routed
	// realtime event, known discriminant or not.
	EventDeviceMessage = "device_message"

	// EventDevicesList carries the []string of device ids from the
	// directory topic.
	EventDevicesList = "devices_list"

	// EventWateringStarted carries a *WateringEvent when a watering run
	// begins.
	EventWateringStarted = "watering_started"

	// EventWateringCompleted carries a *WateringEvent when a run ends.
	EventWateringCompleted = "watering_completed"

	// EventModeChanged carries a *ModeChange when a device reports a
	// new run mode.
	EventModeChanged = "mode_changed"

	// EventZoneCommand carries a *ZoneCommand for a validated zone
	// control request.
	EventZoneCommand = "zone_command"

	// EventDeviceRefresh signals a request to re-fetch device state
	// from the cloud side. No data.
	EventDeviceRefresh = "device_refresh"

	// EventValidationError carries a *ValidationError for a rejected
	// zone control payload.
	EventValidationError = "validation_error"
)

// Handler receives bridge events for the subjects it was registered on.
type Handler func(subject string, data any)

// registry holds one handler slot per event kind. Registering for a kind
// replaces whatever handler held that slot before.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// On registers a handler for an event kind. The last registration for a
// kind wins; a nil handler clears the slot.
func (b *Bridge) On(subject string, h Handler) {
	b.events.mu.Lock()
	defer b.events.mu.Unlock()
	if b.events.handlers == nil {
		b.events.handlers = make(map[string]Handler)
	}
	if h == nil {
		delete(b.events.handlers, subject)
		return
	}
	b.events.handlers[subject] = h
}

// OnAll registers the same handler for every listed event kind.
func (b *Bridge) OnAll(h Handler, subjects ...string) {
	for _, subject := range subjects {
		b.On(subject, h)
	}
}

// emit delivers an event to the handler holding that kind's slot, if any.
func (b *Bridge) emit(subject string, data any) {
	b.events.mu.RLock()
	h := b.events.handlers[subject]
	b.events.mu.RUnlock()
	if h == nil {
		b.log.Debug("event dropped, no handler for kind", "subject", subject)
		return
	}
	h(subject, data)
}
