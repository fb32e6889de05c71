package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/bhyve-bridge/internal/device"
)

// PublishDevicesList publishes the device directory, a JSON array of
// known device ids. Not retained; the directory is a live announcement,
// not broker-persisted state.
func (b *Bridge) PublishDevicesList() error {
	ids := b.store.IDs()
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding device list: %w", err)
	}
	if err := b.publish(b.topics.Devices(), payload, false); err != nil {
		return err
	}
	b.log.Debug("device list published", "count", len(ids))
	return nil
}

// PublishDeviceSnapshot publishes the full picture of one device: its
// details (retained, so late subscribers get the device object), its
// status and one topic per zone (both non-retained). The device is stored
// before publishing, so the bridge's own wildcard subscriptions
// reflecting the messages back do not change state.
//
// Each sub-publish is attempted independently; a failure does not stop
// the others, and the composite succeeds only when every publish did.
func (b *Bridge) PublishDeviceSnapshot(deviceID string, details map[string]any) error {
	b.store.ReplaceDetails(deviceID, details)

	d, ok := b.store.Get(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", device.ErrDeviceNotFound, deviceID)
	}

	var errs []error

	if payload, err := json.Marshal(d.Details); err != nil {
		errs = append(errs, fmt.Errorf("encoding details for %s: %w", deviceID, err))
	} else if err := b.publish(b.topics.DeviceDetails(deviceID), payload, true); err != nil {
		errs = append(errs, err)
	}

	if d.Status != nil {
		if payload, err := json.Marshal(d.Status); err != nil {
			errs = append(errs, fmt.Errorf("encoding status for %s: %w", deviceID, err))
		} else if err := b.publish(b.topics.DeviceStatus(deviceID), payload, false); err != nil {
			errs = append(errs, err)
		}
	}

	for _, zone := range d.Zones() {
		payload, err := json.Marshal(map[string]any{
			"station": zone.Station,
			"name":    zone.Name,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding zone %d for %s: %w", zone.Station, deviceID, err))
			continue
		}
		if err := b.publish(b.topics.DeviceZone(deviceID, zone.Station), payload, false); err != nil {
			errs = append(errs, err)
		}
	}

	if stations := d.Stations(); len(stations) > 0 {
		b.broker.SubscribeDeviceZones(deviceID, stations)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("device snapshot for %s: %w", deviceID, err)
	}
	b.log.Debug("device snapshot published", "device_id", deviceID, "zones", len(d.Zones()))
	return nil
}

// PublishStatus publishes a partial status object for a device,
// non-retained. The update is merged into the store before publishing.
func (b *Bridge) PublishStatus(deviceID string, status map[string]any) error {
	b.store.MergeStatus(deviceID, status)

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encoding status for %s: %w", deviceID, err)
	}
	return b.publish(b.topics.DeviceStatus(deviceID), payload, false)
}

// PublishRealtimeEvent publishes a realtime event envelope on the
// device's message topic, non-retained.
func (b *Bridge) PublishRealtimeEvent(deviceID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding realtime event for %s: %w", deviceID, err)
	}
	return b.publish(b.topics.DeviceMessage(deviceID), payload, false)
}

// CleanupDevice removes a device from the store and erases every retained
// message under its subtree from the broker. Retained messages belonging
// to other devices are untouched. Invoked on an explicit removal request,
// never from routed traffic.
func (b *Bridge) CleanupDevice(deviceID string) error {
	var firstErr error
	for _, topic := range b.broker.Retained().TopicsForDevice(deviceID) {
		if err := b.broker.ClearRetained(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.store.Remove(deviceID); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr == nil {
		b.log.Info("device cleaned up", "device_id", deviceID)
	}
	return firstErr
}

// publish sends a payload at the configured QoS, counting the result.
func (b *Bridge) publish(topic string, payload []byte, retained bool) error {
	err := b.broker.Publish(topic, payload, byte(b.cfg.MQTT.QoS), retained)
	if err != nil {
		b.metrics.Publishes.WithLabelValues("error").Inc()
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	b.metrics.Publishes.WithLabelValues("ok").Inc()
	return nil
}
