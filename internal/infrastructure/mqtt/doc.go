// Package mqtt wraps the Eclipse Paho client with the bridge's broker
// session semantics.
//
// The client supervises a single session: connection attempts are paced by
// a rate limiter, consecutive failures are counted against a configurable
// budget, and paho's automatic reconnection is disabled so the bridge's
// supervision loop is the only driver of retries.
//
// Two pieces of session-scoped bookkeeping live here:
//
//   - A subscription registry records every topic the bridge subscribes
//     to, deduplicates repeat requests, and restores the full set after a
//     reconnect with a clean session.
//   - A retained-message tracker mirrors every retained payload the bridge
//     publishes, so device subtrees can be cleared precisely when devices
//     disappear.
//
// Topic construction and parsing for the bhyve/ namespace is centralised
// in topics.go.
package mqtt
