package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
)

func managedItem(uid string, start, dur int64) host.Item {
	return host.Item{
		ID:             "item-" + uid,
		Name:           uid,
		Track:          host.Track{Kind: host.TrackVideo, Index: 1},
		StartFrame:     start,
		DurationFrames: dur,
	}
}

func TestDiff_EmptyTimeline(t *testing.T) {
	target := baseTarget(t)
	cs := Diff(target, emptySnapshot())

	assert.Equal(t, target.Elements, cs.Additions)
	assert.Empty(t, cs.Removals)
	assert.Empty(t, cs.Updates)
	assert.Equal(t, target.Markers, cs.Markers.Add)
}

func TestDiff_Partition(t *testing.T) {
	target := newTarget(t,
		[]ir.TargetElement{video("a", 0), video("b", 15), video("c", 30)},
		nil,
	)
	snap := emptySnapshot()
	snap.StartFrame = 100
	snap.Managed["a"] = managedItem("a", 100, 15) // in place
	snap.Managed["b"] = managedItem("b", 116, 15) // drifted one frame
	snap.Managed["old"] = managedItem("old", 200, 15)
	snap.Managed["alien"] = managedItem("alien", 300, 15)
	snap.State = &ir.SyncState{ManagedUIDs: []string{"a", "b", "old"}}

	cs := Diff(target, snap)

	require.Len(t, cs.Additions, 1)
	assert.Equal(t, "c", cs.Additions[0].UID)
	require.Len(t, cs.Removals, 1)
	assert.Equal(t, "old", cs.Removals[0].UID)
	require.Len(t, cs.Updates, 1)
	assert.Equal(t, "b", cs.Updates[0].UID)
	assert.Equal(t, int64(15), cs.Updates[0].Target.StartFrame)
	assert.Equal(t, []string{"alien"}, cs.Untracked)
}

func TestDiff_WithoutStateRemovesNothing(t *testing.T) {
	target := newTarget(t, []ir.TargetElement{video("a", 0)}, nil)
	snap := emptySnapshot()
	snap.Managed["gone"] = managedItem("gone", 0, 15)

	cs := Diff(target, snap)
	assert.Empty(t, cs.Removals)
	assert.Equal(t, []string{"gone"}, cs.Untracked)
}

func TestDiff_Duplicates(t *testing.T) {
	target := newTarget(t, []ir.TargetElement{video("a", 0)}, nil)
	snap := emptySnapshot()
	snap.Managed["a"] = managedItem("a", 0, 15)
	snap.Managed["old"] = managedItem("old", 30, 15)
	snap.Managed["alien"] = managedItem("alien", 60, 15)
	snap.Duplicates = []Removal{
		{UID: "a", Item: managedItem("a", 90, 15)},
		{UID: "old", Item: managedItem("old", 105, 15)},
		{UID: "alien", Item: managedItem("alien", 120, 15)},
	}
	snap.State = &ir.SyncState{ManagedUIDs: []string{"a", "old"}}

	cs := Diff(target, snap)

	require.Len(t, cs.Removals, 3)
	assert.Equal(t, Removal{UID: "old", Item: snap.Managed["old"]}, cs.Removals[0])
	assert.Equal(t, "a", cs.Removals[1].UID)
	assert.True(t, cs.Removals[1].Duplicate)
	assert.Equal(t, int64(90), cs.Removals[1].Item.StartFrame)
	assert.Equal(t, "old", cs.Removals[2].UID)
	assert.True(t, cs.Removals[2].Duplicate)
	assert.Equal(t, []string{"alien"}, cs.Untracked)
	assert.False(t, cs.Empty())
}

func TestDiff_DurationDrift(t *testing.T) {
	target := newTarget(t, []ir.TargetElement{video("a", 0)}, nil)
	snap := emptySnapshot()
	snap.Managed["a"] = managedItem("a", 0, 16)

	cs := Diff(target, snap)
	require.Len(t, cs.Updates, 1)
}

func TestDiff_Markers(t *testing.T) {
	target := newTarget(t, nil, []ir.TargetMarker{marker(0), marker(1), marker(2)})
	m0 := marker(0)
	m1 := marker(1)

	snap := emptySnapshot()
	snap.StartFrame = 1000
	snap.BeatMarkers[0] = host.Marker{Frame: 1000, Label: m0.Label, Note: m0.Note, Tag: host.BeatTag(0)}
	snap.BeatMarkers[1] = host.Marker{Frame: 1016, Label: m1.Label, Note: m1.Note, Tag: host.BeatTag(1)}
	snap.BeatMarkers[7] = host.Marker{Frame: 1105, Label: "Beat 8", Tag: host.BeatTag(7)}
	stale := host.Marker{Frame: 1050, Label: "Beat 1", Tag: host.BeatTag(0)}
	snap.StaleMarkers = []host.Marker{stale}

	plan := diffMarkers(target.Markers, snap)

	assert.Equal(t, []ir.TargetMarker{marker(2)}, plan.Add)
	require.Len(t, plan.Update, 1)
	assert.Equal(t, 1, plan.Update[0].To.Beat)
	assert.Equal(t, []host.Marker{snap.BeatMarkers[7], stale}, plan.Remove)
	assert.Equal(t, 4, plan.Len())
}

func TestDiff_MarkerRelabel(t *testing.T) {
	target := newTarget(t, nil, []ir.TargetMarker{marker(0)})
	snap := emptySnapshot()
	snap.BeatMarkers[0] = host.Marker{Frame: 0, Label: "Beat 1", Note: "Photos: earlier", Tag: host.BeatTag(0)}

	plan := diffMarkers(target.Markers, snap)
	require.Len(t, plan.Update, 1)
	assert.Empty(t, plan.Add)
	assert.Empty(t, plan.Remove)
}

func TestChangeSet_Empty(t *testing.T) {
	var cs ChangeSet
	assert.True(t, cs.Empty())

	cs.Settings = []SettingChange{{Key: "timelineFrameRate", From: "24", To: "30"}}
	assert.False(t, cs.Empty())

	cs = ChangeSet{Untracked: []string{"x"}}
	assert.True(t, cs.Empty(), "untracked items are never acted on")
}

func TestDetectConflicts(t *testing.T) {
	snap := emptySnapshot()
	snap.Foreign = []host.Item{{Name: "title", Track: host.Track{Kind: host.TrackVideo, Index: 2}, StartFrame: 40}}
	snap.ForeignMarkers = []host.Marker{{Frame: 12, Label: "check"}}

	r := DetectConflicts(snap)
	assert.Equal(t, 2, r.Len())
	assert.False(t, r.Empty())
	assert.Equal(t, Conflict{
		Kind:  ConflictUnmanagedItem,
		Name:  "title",
		Track: host.Track{Kind: host.TrackVideo, Index: 2},
		Frame: 40,
	}, r.Items[0])
	assert.Equal(t, Conflict{Kind: ConflictManualMarker, Name: "check", Frame: 12}, r.Markers[0])

	assert.True(t, DetectConflicts(emptySnapshot()).Empty())
}
