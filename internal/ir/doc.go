// Package ir provides the canonical data model shared by every beatspine
// package.
//
// This package contains type definitions, canonical serialization and
// identity hashing only. All other internal packages import ir; ir imports
// nothing internal.
//
// Key design constraints:
//   - Items, clusters and placements are immutable values once produced
//   - Slot indices are 0-based and dense; pins are 1-based at the edges
//   - Timeline positions are integer frames, never floats, so that digests
//     and drift comparisons are reproducible
//   - All JSON tags use camelCase to match the persisted sync-state record
package ir
