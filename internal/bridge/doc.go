// Package bridge wires the MQTT surface, the device store, the command
// validator and the cloud-facing event handler into one unit.
//
// Inbound broker messages are dispatched by topic shape: per-device
// topics update the store, the device directory is surfaced as an
// observation, and zone control topics are validated before forwarding.
// Every routed update is also emitted through a per-kind handler slot so
// a cloud-facing collaborator can subscribe to exactly the kinds it
// consumes. Outbound, the publisher methods push device snapshots
// (details retained, the rest live) and clean up a device's retained
// footprint on an explicit removal request.
//
// Run owns the session lifecycle: it paces connection attempts at the
// configured reconnect period, wakes on session loss, and stops either
// on context cancellation or when the retry budget is exhausted.
package bridge
