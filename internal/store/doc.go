// Package store provides SQLite-backed persistence for users, live-feed
// subscriptions, trips, live-feed messages, short links and the ÖBB
// station table.
//
// # Trips
//
// A trip row keeps the last upstream status delivery (raw_status) and the
// user's edits (status_patch) separately. The effective status is always
// MergePatch(raw_status, status_patch); upserts replace only raw_status and
// the denormalized station columns, never the patch.
//
// # Messages
//
// At most one message exists per (user, journey, channel), enforced by a
// UNIQUE constraint. The autoincrement id orders messages by creation so the
// synchronizer can find messages posted after a given one.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
