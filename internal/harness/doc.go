// Package harness provides end-to-end conformance testing for beatspine.
//
// A scenario compiles a project configuration, assembles a target from an
// inline photo list, and then drives one or more reconciliation runs
// against an in-memory timeline host. Manual edits can be applied between
// runs to exercise drift correction, conflict handling and conservative
// removal.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: second_run_is_noop
//	description: "What this scenario validates"
//	config: |
//	  name:     "Demo"
//	  tempo:    120
//	  manifest: "inline"
//	  audio: {path: "/song.wav", duration: 4}
//	photos:
//	  - {path: /p/a.jpg, taken: "2024-01-01T10:00:00Z", comment: "beat:3"}
//	runs:
//	  - expect: {outcome: applied, added: 2}
//	  - edits:
//	      - {type: shift, path: /p/a.jpg, frames: 15}
//	    expect: {outcome: applied, updated: 1}
//	assertions:
//	  - {type: placement, item: /p/a.jpg, slot: 3}
//	  - {type: timeline_items, count: 2}
//
// # Edit Types
//
//   - shift: moves the item of a photo by frames
//   - place_item: adds an item with an optional tag at a relative frame
//   - place_marker: adds a marker at a relative frame
//   - lock: writes another session's lock record
//
// # Assertion Types
//
//   - placement: an item sits at a 1-based slot
//   - unplaced: an item was not placed
//   - build_error: assembly failed with an ir error code
//   - timeline_items: item count on the final timeline, optionally
//     restricted to tagged or untagged items
//   - markers: marker count on the final timeline
//   - synced: the persisted sync state matches the target digest
//
// # Deterministic Testing
//
// Every run uses a fixed clock and sequential session tokens, so the final
// timeline and run reports are reproducible for golden comparison.
package harness
