package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicPrefix is the base for all bridge topics.
//
// The full namespace:
//
//	bhyve/online                        availability (retained, LWT)
//	bhyve/alive                         liveness timestamp
//	bhyve/devices                       JSON array of device ids
//	bhyve/device/refresh                inbound refresh request
//	bhyve/device/{id}/status            partial status object
//	bhyve/device/{id}/details           full device object (retained)
//	bhyve/device/{id}/message           realtime event envelope
//	bhyve/device/{id}/zone/{n}          zone object
//	bhyve/device/{id}/zone/{n}/set      inbound zone control command
const TopicPrefix = "bhyve"

// Topics provides builders for bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("abc123")
//	// Returns: "bhyve/device/abc123/status"
type Topics struct{}

// Online returns the availability topic carrying "true"/"false".
//
// Example: bhyve/online
func (Topics) Online() string {
	return fmt.Sprintf("%s/online", TopicPrefix)
}

// Alive returns the liveness timestamp topic.
//
// Example: bhyve/alive
func (Topics) Alive() string {
	return fmt.Sprintf("%s/alive", TopicPrefix)
}

// Devices returns the device directory topic.
//
// Example: bhyve/devices
func (Topics) Devices() string {
	return fmt.Sprintf("%s/devices", TopicPrefix)
}

// DeviceRefresh returns the inbound device refresh request topic.
//
// Example: bhyve/device/refresh
func (Topics) DeviceRefresh() string {
	return fmt.Sprintf("%s/device/refresh", TopicPrefix)
}

// DeviceStatus returns the partial status topic for a device.
//
// Example: bhyve/device/abc123/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, deviceID)
}

// DeviceDetails returns the full device object topic.
//
// Example: bhyve/device/abc123/details
func (Topics) DeviceDetails(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/details", TopicPrefix, deviceID)
}

// DeviceMessage returns the realtime event topic for a device.
//
// Example: bhyve/device/abc123/message
func (Topics) DeviceMessage(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/message", TopicPrefix, deviceID)
}

// DeviceZone returns the zone object topic for a device station.
//
// Example: bhyve/device/abc123/zone/2
func (Topics) DeviceZone(deviceID string, station int) string {
	return fmt.Sprintf("%s/device/%s/zone/%d", TopicPrefix, deviceID, station)
}

// DeviceZoneSet returns the inbound control topic for a device station.
//
// Example: bhyve/device/abc123/zone/2/set
func (Topics) DeviceZoneSet(deviceID string, station int) string {
	return fmt.Sprintf("%s/device/%s/zone/%d/set", TopicPrefix, deviceID, station)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceStatuses returns a pattern matching all device status updates.
//
// Pattern: bhyve/device/+/status
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/device/+/status", TopicPrefix)
}

// AllDeviceDetails returns a pattern matching all device detail updates.
//
// Pattern: bhyve/device/+/details
func (Topics) AllDeviceDetails() string {
	return fmt.Sprintf("%s/device/+/details", TopicPrefix)
}

// AllDeviceMessages returns a pattern matching all realtime device events.
//
// Pattern: bhyve/device/+/message
func (Topics) AllDeviceMessages() string {
	return fmt.Sprintf("%s/device/+/message", TopicPrefix)
}

// =============================================================================
// Topic Parsing
// =============================================================================

// ParseZoneSet extracts the device identifier and station number from a zone
// control topic of the exact shape bhyve/device/{id}/zone/{n}/set.
//
// Returns:
//   - deviceID: The opaque device identifier
//   - station: The zone/station number (never negative)
//   - error: ErrInvalidTopic if the shape or station number is malformed
func ParseZoneSet(topic string) (deviceID string, station int, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 6 || parts[0] != TopicPrefix || parts[1] != "device" || parts[3] != "zone" || parts[5] != "set" {
		return "", 0, fmt.Errorf("%w: not a zone set topic: %q", ErrInvalidTopic, topic)
	}

	deviceID = parts[2]
	if strings.TrimSpace(deviceID) == "" {
		return "", 0, fmt.Errorf("%w: empty device id in %q", ErrInvalidTopic, topic)
	}

	station, convErr := strconv.Atoi(parts[4])
	if convErr != nil || station < 0 {
		return "", 0, fmt.Errorf("%w: invalid station number %q", ErrInvalidTopic, parts[4])
	}

	return deviceID, station, nil
}

// ParseDeviceTopic extracts the device identifier and the trailing segment
// (status, details or message) from a per-device topic. It returns ok=false
// for any other shape, including the refresh topic.
func ParseDeviceTopic(topic string) (deviceID, kind string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "device" {
		return "", "", false
	}
	switch parts[3] {
	case "status", "details", "message":
		return parts[2], parts[3], true
	}
	return "", "", false
}
