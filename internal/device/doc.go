// Package device maintains the bridge's in-memory view of irrigation
// controllers.
//
// The store is the single authority for device state between broker
// messages and cloud events. Partial status objects are shallow-merged so
// unrelated keys survive; a details update replaces the whole record,
// wiping previously merged status and watering state the new payload does
// not carry; watering lifecycle transitions touch only the watering
// fields. All reads return deep copies, so callers can never observe or
// cause a concurrent mutation.
package device
