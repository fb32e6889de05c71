package device

import "errors"

// ErrDeviceNotFound indicates an operation referenced a device the store
// has never seen.
var ErrDeviceNotFound = errors.New("device not found")
