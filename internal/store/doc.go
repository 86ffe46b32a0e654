// Package store provides a SQLite-backed timeline host.
//
// The store models the parts of a timeline application the reconciliation
// engine touches:
//   - Projects with key/value settings
//   - Timelines with a start frame, per-kind track counts and metadata
//   - Media pool entries with native frame rate
//   - Items placed on tracks, each carrying a free-form tag
//   - Markers keyed by absolute frame
//
// # Host Semantics
//
// The store enforces the constraints a real host imposes:
//   - At most one marker per frame; a second AddMarker is rejected
//   - timelineFrameRate accepts standard rates only and is frozen once the
//     project has a timeline
//   - Item durations are derived from the source range and the ratio of
//     timeline to media frame rate
//
// All listings are ordered deterministically (start frame, then id) so that
// snapshots are reproducible.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
