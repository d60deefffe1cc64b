// Package livefeed mirrors a user's journey into chat channels.
//
// The Synchronizer is the only writer of a user's journey. Every operation
// runs under the user's lock: status deliveries from the webhook, manual
// trips, edits, delays, undo and the refresh that follows enrichment. Within
// the lock a delivery is applied to the journey, persisted, queued for
// enrichment and then reconciled against the message chain of every channel
// the user publishes to.
//
// Message chain invariants:
//   - at most one message per trip and channel
//   - only the newest message of a channel shows the full journey; older
//     messages show the journey up to their own trip and link onwards
//
// Failures in one channel are logged and do not affect other channels.
package livefeed
