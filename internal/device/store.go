package device

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is a concurrency-safe registry of known devices.
//
// Mutations create the device entry on first sight, mirroring how devices
// are discovered: whichever update arrives first (status, details, or a
// realtime event) establishes the entry.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewStore creates an empty device store.
func NewStore() *Store {
	return &Store{
		devices: make(map[string]*Device),
	}
}

// upsert returns the live entry for a device, creating it if needed.
// Caller must hold the write lock.
func (s *Store) upsert(deviceID string) *Device {
	d, ok := s.devices[deviceID]
	if !ok {
		d = &Device{ID: deviceID}
		s.devices[deviceID] = d
	}
	return d
}

// MergeStatus shallow-merges a partial status object into the device's
// status. Keys absent from the update keep their previous values, so a
// battery report does not erase the run mode and vice versa.
func (s *Store) MergeStatus(deviceID string, status map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.upsert(deviceID)
	if d.Status == nil {
		d.Status = make(map[string]any, len(status))
	}
	for k, v := range status {
		d.Status[k] = deepCopyValue(v)
	}
	d.UpdatedAt = time.Now().UTC()
}

// ReplaceDetails replaces the whole device record with the new details
// object. Previously merged status keys and any watering state are wiped,
// even when the new payload omits them; only what the payload itself
// carries survives. A status object embedded in the details becomes the
// record's status, and later partial merges update it in place.
func (s *Store) ReplaceDetails(deviceID string, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.upsert(deviceID)
	d.Details = deepCopyMap(details)
	d.Watering = nil
	if st, ok := d.Details["status"].(map[string]any); ok {
		// Aliased on purpose: merges into Status stay visible through
		// Details["status"], matching the single-object record shape.
		d.Status = st
	} else {
		d.Status = nil
	}
	d.UpdatedAt = time.Now().UTC()
}

// SetWatering records an in-progress watering run. Run mode and the rest
// of the status are untouched. The status field is forced to in-progress,
// and a zero start timestamp is filled with the current time.
func (s *Store) SetWatering(deviceID string, ws WateringStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.upsert(deviceID)
	ws.Status = WateringInProgress
	if ws.StartedAt.IsZero() {
		ws.StartedAt = time.Now().UTC()
	}
	d.Watering = &ws
	d.UpdatedAt = time.Now().UTC()
}

// CompleteWatering marks the current run finished. Only the status flag
// flips to idle; the station and run-time fields of the last run are
// kept, and the run mode is untouched. Completing on a device with no
// run recorded is a no-op.
func (s *Store) CompleteWatering(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok || d.Watering == nil {
		return
	}
	d.Watering.Status = WateringIdle
	d.UpdatedAt = time.Now().UTC()
}

// SetMode records the device's run mode in its status.
func (s *Store) SetMode(deviceID, mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.upsert(deviceID)
	if d.Status == nil {
		d.Status = make(map[string]any, 1)
	}
	d.Status["run_mode"] = mode
	d.UpdatedAt = time.Now().UTC()
}

// Remove forgets a device.
//
// Returns:
//   - error: ErrDeviceNotFound if the device is unknown
func (s *Store) Remove(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[deviceID]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	delete(s.devices, deviceID)
	return nil
}

// Get returns a deep copy of a device.
func (s *Store) Get(deviceID string) (*Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return nil, false
	}
	return d.DeepCopy(), true
}

// GetAll returns deep copies of every known device, keyed by id.
func (s *Store) GetAll() map[string]*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]*Device, len(s.devices))
	for id, d := range s.devices {
		all[id] = d.DeepCopy()
	}
	return all
}

// IDs returns the known device ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of known devices.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// IsWatering reports whether the device has a run in progress.
func (s *Store) IsWatering(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	return ok && d.Watering != nil && d.Watering.Status == WateringInProgress
}

// WateringStation returns the station currently being watered. Stale
// fields from a completed run are not reported.
func (s *Store) WateringStation(deviceID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok || d.Watering == nil || d.Watering.Status != WateringInProgress {
		return 0, false
	}
	return d.Watering.CurrentStation, true
}

// Mode returns the device's run mode, if one has been reported.
func (s *Store) Mode(deviceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return "", false
	}
	mode := d.Mode()
	return mode, mode != ""
}
