// Package duration implements cancelable one-shot timers keyed by name.
//
// A simulated device arms several independent timers: the periodic inform
// timer, one timer per running diagnostic and the delayed session after a
// Download. Each is identified by a string key.
//
// # Timer Replacement
//
// Scheduling a key that already has a timer replaces it. The replaced
// callback never runs.
//
// # Cancellation
//
// Every Schedule returns a Handle. Cancel on a handle reports whether it
// prevented the callback; once a callback has started, Cancel returns false.
// A handle only affects its own timer, never a later replacement under the
// same key.
//
// # Shutdown
//
// Close cancels every pending timer and rejects further scheduling.
package duration
