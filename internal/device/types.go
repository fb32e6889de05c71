package device

import (
	"time"
)

// Device is the bridge's view of a single irrigation controller.
//
// Details holds the full device object as last reported by the cloud side,
// replaced wholesale on every details update. Status holds the partial
// status object, shallow-merged so unrelated keys survive partial updates.
// Both are decoded JSON, so nested values are maps, slices, strings,
// float64 and bool.
type Device struct {
	ID        string
	Details   map[string]any
	Status    map[string]any
	Watering  *WateringStatus
	UpdatedAt time.Time
}

// Watering status values.
const (
	// WateringInProgress marks an active run.
	WateringInProgress = "watering_in_progress"
	// WateringIdle marks a finished run whose station and run-time
	// fields are kept for inspection.
	WateringIdle = "idle"
)

// WateringStatus describes the most recent watering run.
type WateringStatus struct {
	// Status is WateringInProgress or WateringIdle.
	Status string
	// CurrentStation is the zone being watered.
	CurrentStation int
	// RunTime is the commanded duration in minutes.
	RunTime float64
	// TotalRunTimeSec is the total seconds remaining as reported by the
	// watering notification.
	TotalRunTimeSec float64
	// StartedAt is the run's start timestamp, taken from the
	// notification when it carries one.
	StartedAt time.Time
}

// Zone is a named station extracted from device details.
type Zone struct {
	Station int
	Name    string
}

// Mode returns the device's run mode ("auto", "manual", "off") from its
// merged status, or "" when no mode has been reported.
func (d *Device) Mode() string {
	if d.Status == nil {
		return ""
	}
	mode, _ := d.Status["run_mode"].(string)
	return mode
}

// Zones extracts the station list from device details. Both shapes the
// cloud emits are handled: a list of zone objects, and a single zone
// object (seen on one-valve timers).
func (d *Device) Zones() []Zone {
	if d.Details == nil {
		return nil
	}
	switch raw := d.Details["zones"].(type) {
	case []any:
		zones := make([]Zone, 0, len(raw))
		for _, entry := range raw {
			if z, ok := zoneFromMap(entry); ok {
				zones = append(zones, z)
			}
		}
		return zones
	case map[string]any:
		if z, ok := zoneFromMap(raw); ok {
			return []Zone{z}
		}
	}
	return nil
}

// Stations returns the station numbers of all zones.
func (d *Device) Stations() []int {
	zones := d.Zones()
	stations := make([]int, 0, len(zones))
	for _, z := range zones {
		stations = append(stations, z.Station)
	}
	return stations
}

func zoneFromMap(entry any) (Zone, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Zone{}, false
	}
	station, ok := m["station"].(float64)
	if !ok {
		return Zone{}, false
	}
	name, _ := m["name"].(string)
	return Zone{Station: int(station), Name: name}, true
}

// DeepCopy returns an independent copy of the device, safe to hand to
// callers while the store keeps mutating the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := &Device{
		ID:        d.ID,
		Details:   deepCopyMap(d.Details),
		Status:    deepCopyMap(d.Status),
		UpdatedAt: d.UpdatedAt,
	}
	if d.Watering != nil {
		w := *d.Watering
		cp.Watering = &w
	}
	return cp
}

func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		// JSON scalars are immutable.
		return val
	}
}
