// Package reconcile drives an external timeline host towards an assembled
// TargetProject while preserving manual edits.
//
// ARCHITECTURE:
//
// Explicit Session:
// All host interaction goes through a Session value that owns the host
// handle and walks a fixed state machine:
//
//	Disconnected -> Connected -> ProjectResolved -> TimelineResolved
//	  -> Planned -> Applied -> Persisted
//	  -> Planned -> DryRunReported
//
// Calling an operation out of order returns an INVALID_STATE error. There
// is no ambient connection; Reconcile is a convenience that runs the whole
// sequence.
//
// Differential Planning:
// Plan compares the target UIDs (T), the UIDs of tagged items present on
// the timeline (C) and the UIDs recorded as managed by the previous run
// (M):
//   - additions = T - C
//   - removals  = (C ∩ M) - T
//   - updates   = items in C ∩ T whose start or duration drifted by more
//     than half a frame
//
// Items and markers without a beatspine tag are foreign. They are never
// removed and their presence is a conflict that blocks Apply unless forced
// or confirmed.
//
// Failure Semantics:
// A rejected settings write is fatal. A single item that fails to place is
// reported and the session continues; the persisted sync state then lists
// only what actually succeeded.
//
// Concurrency:
// A Session is not safe for concurrent use. Concurrent sessions against
// one timeline are excluded by an advisory lock record kept in the
// timeline's metadata.
package reconcile
