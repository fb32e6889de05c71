// Package command validates zone control payloads and translates them
// into the change_mode events the cloud side understands.
//
// Validation is strict: the payload must be a JSON object with a state
// field (ON or OFF, any letter case), an optional numeric time in
// minutes, and nothing else. An ON command without a time is rejected;
// an OFF command may carry a time, which is validated but otherwise
// ignored. Nothing invalid is ever forwarded upstream.
package command
