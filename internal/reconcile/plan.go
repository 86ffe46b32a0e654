package reconcile

import (
	"maps"
	"math"
	"slices"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
)

// DriftTolerance is the largest start or duration deviation, in frames,
// that does not trigger an update.
const DriftTolerance = 0.5

// Snapshot is the observed state of an existing timeline.
type Snapshot struct {
	StartFrame int64

	// Managed maps UIDs to the tagged items carrying them. When a UID is
	// tagged on more than one item, the first one listed wins.
	Managed map[string]host.Item

	// Duplicates are the other items tagged with a UID in Managed, such
	// as a managed clip copied in the editor.
	Duplicates []Removal

	// Foreign holds untagged items and items whose tag does not parse.
	Foreign []host.Item

	// BeatMarkers maps beat indices to tagged beat markers.
	BeatMarkers map[int]host.Marker

	// StaleMarkers are tagged beat markers shadowed by another marker for
	// the same beat.
	StaleMarkers []host.Marker

	// ForeignMarkers are markers without a beat tag.
	ForeignMarkers []host.Marker

	// State is the persisted sync state, nil when absent or unreadable.
	State *ir.SyncState

	// Lock is the lock record found on the timeline, if any.
	Lock *LockRecord
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Managed:     make(map[string]host.Item),
		BeatMarkers: make(map[int]host.Marker),
	}
}

// Removal is a previously managed item no longer in the target, or an
// extra copy of a managed item.
type Removal struct {
	UID       string    `json:"uid"`
	Item      host.Item `json:"item"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// Update is a managed item whose position drifted from the target.
type Update struct {
	UID    string           `json:"uid"`
	Item   host.Item        `json:"item"`
	Target ir.TargetElement `json:"target"`
}

// MarkerUpdate replaces a beat marker that moved or was relabelled.
type MarkerUpdate struct {
	From host.Marker     `json:"from"`
	To   ir.TargetMarker `json:"to"`
}

// MarkerPlan is the beat-marker diff, keyed by beat index.
type MarkerPlan struct {
	Add    []ir.TargetMarker `json:"add"`
	Remove []host.Marker     `json:"remove"`
	Update []MarkerUpdate    `json:"update"`
}

// Len returns the number of marker operations.
func (m MarkerPlan) Len() int {
	return len(m.Add) + len(m.Remove) + len(m.Update)
}

// SettingChange is a project setting that differs from what the engine
// requires.
type SettingChange struct {
	Key  string `json:"key"`
	From string `json:"from"`
	To   string `json:"to"`
}

// ChangeSet is the minimal set of operations that moves the host to the
// target. It is derived on every run and never persisted.
type ChangeSet struct {
	Additions []ir.TargetElement `json:"additions"`
	Removals  []Removal          `json:"removals"`
	Updates   []Update           `json:"updates"`
	Markers   MarkerPlan         `json:"markers"`
	Settings  []SettingChange    `json:"settings"`

	// Untracked lists tagged items that are neither targeted nor recorded
	// as managed. They are left alone and dropped from the managed set.
	Untracked []string `json:"untracked,omitempty"`
}

// Empty reports whether applying the change set would do nothing.
func (c *ChangeSet) Empty() bool {
	return len(c.Additions) == 0 &&
		len(c.Removals) == 0 &&
		len(c.Updates) == 0 &&
		c.Markers.Len() == 0 &&
		len(c.Settings) == 0
}

// Diff computes the item and marker change set between target and snap.
// It is a pure function of its inputs; settings are planned separately.
func Diff(target *ir.TargetProject, snap *Snapshot) ChangeSet {
	var cs ChangeSet
	targetByUID := target.ElementsByUID()
	previouslyManaged := snap.State.ManagedSet()

	for _, e := range target.Elements {
		if _, present := snap.Managed[e.UID]; !present {
			cs.Additions = append(cs.Additions, e)
		}
	}

	for _, uid := range slices.Sorted(maps.Keys(snap.Managed)) {
		it := snap.Managed[uid]
		e, targeted := targetByUID[uid]
		switch {
		case targeted:
			if drifted(it, e, snap.StartFrame) {
				cs.Updates = append(cs.Updates, Update{UID: uid, Item: it, Target: e})
			}
		case previouslyManaged[uid]:
			cs.Removals = append(cs.Removals, Removal{UID: uid, Item: it})
		default:
			cs.Untracked = append(cs.Untracked, uid)
		}
	}

	// Extra copies of targeted or managed UIDs go; each UID keeps one item.
	for _, d := range snap.Duplicates {
		if _, targeted := targetByUID[d.UID]; targeted || previouslyManaged[d.UID] {
			d.Duplicate = true
			cs.Removals = append(cs.Removals, d)
		}
	}

	cs.Markers = diffMarkers(target.Markers, snap)
	return cs
}

func drifted(it host.Item, e ir.TargetElement, startFrame int64) bool {
	start := it.StartFrame - startFrame
	return math.Abs(float64(start-e.StartFrame)) > DriftTolerance ||
		math.Abs(float64(it.DurationFrames-e.DurationFrames)) > DriftTolerance
}

// diffMarkers matches markers by beat index, not by frame, so that a moved
// beat is detected as drift rather than as an add plus a remove.
func diffMarkers(target []ir.TargetMarker, snap *Snapshot) MarkerPlan {
	var plan MarkerPlan
	wanted := make(map[int]bool, len(target))
	for _, m := range target {
		wanted[m.Beat] = true
	}

	for _, beat := range slices.Sorted(maps.Keys(snap.BeatMarkers)) {
		if !wanted[beat] {
			plan.Remove = append(plan.Remove, snap.BeatMarkers[beat])
		}
	}
	plan.Remove = append(plan.Remove, snap.StaleMarkers...)

	for _, m := range target {
		cur, ok := snap.BeatMarkers[m.Beat]
		switch {
		case !ok:
			plan.Add = append(plan.Add, m)
		case math.Abs(float64(cur.Frame-snap.StartFrame-m.Frame)) > DriftTolerance,
			cur.Label != m.Label,
			cur.Note != m.Note:
			plan.Update = append(plan.Update, MarkerUpdate{From: cur, To: m})
		}
	}
	return plan
}

// ConflictKind classifies a conflict.
type ConflictKind string

const (
	ConflictUnmanagedItem ConflictKind = "unmanaged_item"
	ConflictManualMarker  ConflictKind = "manual_marker"
)

// Conflict is a foreign entity found on a managed timeline.
type Conflict struct {
	Kind  ConflictKind `json:"kind"`
	Name  string       `json:"name"`
	Track host.Track   `json:"track"`
	Frame int64        `json:"frame"`
}

// ConflictReport partitions foreign entities from the managed set.
type ConflictReport struct {
	Items   []Conflict `json:"items"`
	Markers []Conflict `json:"markers"`
}

// Empty reports whether no conflicts were found.
func (r ConflictReport) Empty() bool {
	return len(r.Items) == 0 && len(r.Markers) == 0
}

// Len returns the total number of conflicts.
func (r ConflictReport) Len() int {
	return len(r.Items) + len(r.Markers)
}

// DetectConflicts reports every untagged item and marker in snap.
func DetectConflicts(snap *Snapshot) ConflictReport {
	var r ConflictReport
	for _, it := range snap.Foreign {
		r.Items = append(r.Items, Conflict{
			Kind:  ConflictUnmanagedItem,
			Name:  it.Name,
			Track: it.Track,
			Frame: it.StartFrame,
		})
	}
	for _, m := range snap.ForeignMarkers {
		r.Markers = append(r.Markers, Conflict{
			Kind:  ConflictManualMarker,
			Name:  m.Label,
			Frame: m.Frame,
		})
	}
	return r
}
