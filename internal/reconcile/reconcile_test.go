package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/testutil"
)

func TestReconcile_FullCreate(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)

	rep, err := env.reconcile(t, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.True(t, rep.ProjectCreated)
	assert.True(t, rep.TimelineCreated)
	assert.True(t, rep.FullCreate)
	assert.Equal(t, "session-1", rep.SessionToken)
	assert.Equal(t, []string{"audio", "uid-1", "uid-2", "uid-3"}, rep.Added)
	assert.Equal(t, []string{"timelineFrameRate", "timelineFrameRateMismatchBehavior", "videoMonitorFormat"}, rep.SettingsWritten)

	items := env.fake.Items(testProject, testTimeline)
	require.Len(t, items, 4)
	assert.Equal(t, host.Track{Kind: host.TrackAudio, Index: 1}, items[0].Track)
	assert.Equal(t, testStart, items[0].StartFrame)
	assert.Equal(t, int64(300), items[0].DurationFrames)
	for i, uid := range []string{"uid-1", "uid-2", "uid-3"} {
		it := items[i+1]
		assert.Equal(t, host.ItemTag(uid), it.Tag)
		assert.Equal(t, host.Track{Kind: host.TrackVideo, Index: 1}, it.Track)
		assert.Equal(t, testStart+int64(i)*15, it.StartFrame)
		assert.Equal(t, int64(15), it.DurationFrames)
	}

	markers := env.fake.MarkerList(testProject, testTimeline)
	require.Len(t, markers, 3)
	for i, m := range markers {
		assert.Equal(t, testStart+int64(i)*15, m.Frame)
		assert.Equal(t, host.BeatTag(i), m.Tag)
		assert.Equal(t, "Yellow", m.Color)
		assert.Equal(t, "Photos: 2024-01-01", m.Note)
	}

	assert.Equal(t, "30", env.fake.SettingValue(testProject, "timelineFrameRate"))
	assert.Equal(t, "fcp7", env.fake.SettingValue(testProject, "timelineFrameRateMismatchBehavior"))
	assert.Equal(t, "HD 1080p 30", env.fake.SettingValue(testProject, "videoMonitorFormat"))

	st := env.syncState(t)
	assert.Equal(t, []string{"audio", "uid-1", "uid-2", "uid-3"}, st.ManagedUIDs)
	assert.Equal(t, 3, st.ItemCount)
	assert.Equal(t, 4, st.TimelineItemCount)
	assert.Equal(t, target.Digest, st.TargetDigest)
	assert.Equal(t, ir.FormatVersion, st.FormatVersion)
	assert.Equal(t, "session-1", st.SessionToken)

	assert.Equal(t, "true", env.fake.MetadataValue(testProject, testTimeline, KeyManagedMarker))
	assert.Empty(t, env.fake.MetadataValue(testProject, testTimeline, KeySyncLock))
	assert.Equal(t, testTimeline, env.fake.CurrentTimeline(testProject))
}

func TestReconcile_SecondRunIsNoOp(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)
	env.seed(t, target)

	rep, err := env.reconcile(t, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpToDate, rep.Outcome)
	assert.True(t, rep.Changes.Empty())
	assert.Empty(t, env.fake.MutationLog())
	assert.Equal(t, target.Digest, rep.State.TargetDigest)
}

func TestReconcile_RemovesOnlyPreviouslyManaged(t *testing.T) {
	env := newEnv()
	env.seed(t, baseTarget(t))

	broll := host.Track{Kind: host.TrackVideo, Index: 2}
	env.fake.PlaceItem(testProject, testTimeline, broll, "b-roll.mov", "", testStart, 90)
	env.fake.PlaceItem(testProject, testTimeline, broll, "stranger.jpg", host.ItemTag("stranger"), testStart+100, 15)

	smaller := newTarget(t,
		[]ir.TargetElement{audio(), video("uid-1", 0), video("uid-2", 15)},
		[]ir.TargetMarker{marker(0), marker(1), marker(2)},
	)
	rep, err := env.reconcile(t, smaller, withForce)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.Equal(t, []string{"uid-3"}, rep.Removed)
	assert.Equal(t, []string{"stranger"}, rep.Changes.Untracked)
	require.Len(t, rep.Conflicts.Items, 1)
	assert.Equal(t, "b-roll.mov", rep.Conflicts.Items[0].Name)

	names := make(map[string]bool)
	for _, it := range env.fake.Items(testProject, testTimeline) {
		names[it.Name] = true
	}
	assert.True(t, names["b-roll.mov"], "foreign item must survive")
	assert.True(t, names["stranger.jpg"], "untracked tagged item must survive")
	assert.False(t, names["/p/uid-3.jpg"])

	st := env.syncState(t)
	assert.Equal(t, []string{"audio", "uid-1", "uid-2"}, st.ManagedUIDs)
	assert.Equal(t, smaller.Digest, st.TargetDigest)
}

func TestReconcile_RemovesCopiedManagedItems(t *testing.T) {
	env := newEnv()
	env.seed(t, baseTarget(t))

	// A managed clip copied in the editor carries the same tag.
	v1 := host.Track{Kind: host.TrackVideo, Index: 1}
	env.fake.PlaceItem(testProject, testTimeline, v1, "/p/uid-3.jpg", host.ItemTag("uid-3"), testStart+200, 15)

	smaller := newTarget(t,
		[]ir.TargetElement{audio(), video("uid-1", 0), video("uid-2", 15)},
		[]ir.TargetMarker{marker(0), marker(1), marker(2)},
	)
	rep, err := env.reconcile(t, smaller)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.Equal(t, []string{"uid-3", "uid-3"}, rep.Removed)
	assert.True(t, rep.Conflicts.Empty())
	for _, it := range env.fake.Items(testProject, testTimeline) {
		assert.NotEqual(t, host.ItemTag("uid-3"), it.Tag)
	}
	assert.Equal(t, []string{"audio", "uid-1", "uid-2"}, env.syncState(t).ManagedUIDs)

	rep, err = env.reconcile(t, smaller)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpToDate, rep.Outcome)
}

func TestReconcile_CopyOfTargetedItemIsRemoved(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)
	env.seed(t, target)

	v1 := host.Track{Kind: host.TrackVideo, Index: 1}
	env.fake.PlaceItem(testProject, testTimeline, v1, "/p/uid-1.jpg", host.ItemTag("uid-1"), testStart+200, 15)

	rep, err := env.reconcile(t, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, rep.Outcome)
	require.Len(t, rep.Changes.Removals, 1)
	assert.True(t, rep.Changes.Removals[0].Duplicate)
	assert.Equal(t, testStart, env.item(t, "uid-1").StartFrame)

	copies := 0
	for _, it := range env.fake.Items(testProject, testTimeline) {
		if it.Tag == host.ItemTag("uid-1") {
			copies++
		}
	}
	assert.Equal(t, 1, copies)

	st := env.syncState(t)
	assert.Contains(t, st.ManagedUIDs, "uid-1")
	assert.Equal(t, target.Digest, st.TargetDigest)
}

func TestReconcile_CorrectsDrift(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)
	env.seed(t, target)
	env.fake.ShiftItem(testProject, testTimeline, "/p/uid-2.jpg", 5)

	rep, err := env.reconcile(t, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.Equal(t, []string{"uid-2"}, rep.Updated)
	assert.Equal(t, testStart+15, env.item(t, "uid-2").StartFrame)
	assert.Equal(t, target.Digest, env.syncState(t).TargetDigest)
}

func TestReconcile_UnsupportedMoveIsSkipped(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)
	env.seed(t, target)
	env.fake.ShiftItem(testProject, testTimeline, "/p/uid-2.jpg", 5)

	basic := host.DialFunc(func(context.Context) (host.Host, error) {
		return testutil.BasicHost(env.fake), nil
	})
	opts := env.opts
	opts.Timeout = -1
	rep, err := Reconcile(t.Context(), target, testTimeline, basic, opts)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, rep.Outcome)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "uid-2", rep.Skipped[0].UID)
	assert.Equal(t, "update", rep.Skipped[0].Op)
	assert.Equal(t, testStart+20, env.item(t, "uid-2").StartFrame)

	st := env.syncState(t)
	assert.Contains(t, st.ManagedUIDs, "uid-2")
	assert.Empty(t, st.TargetDigest)
}

func TestReconcile_Conflicts(t *testing.T) {
	changed := func(t *testing.T) *ir.TargetProject {
		return newTarget(t,
			[]ir.TargetElement{audio(), video("uid-1", 0), video("uid-2", 15), video("uid-3", 45)},
			[]ir.TargetMarker{marker(0), marker(1), marker(2)},
		)
	}
	setup := func(t *testing.T) *testEnv {
		env := newEnv()
		env.seed(t, baseTarget(t))
		env.fake.PlaceItem(testProject, testTimeline, host.Track{Kind: host.TrackVideo, Index: 1}, "title.png", "", testStart+200, 30)
		env.fake.PlaceMarker(testProject, testTimeline, host.Marker{Frame: testStart + 100, Label: "fix color"})
		return env
	}

	t.Run("blocked without confirmer", func(t *testing.T) {
		env := setup(t)
		rep, err := env.reconcile(t, changed(t))
		require.NoError(t, err)
		assert.Equal(t, OutcomeBlocked, rep.Outcome)
		assert.Equal(t, 2, rep.Conflicts.Len())
		assert.Empty(t, env.fake.MutationLog())
	})

	t.Run("declined", func(t *testing.T) {
		env := setup(t)
		var seen ConflictReport
		rep, err := env.reconcile(t, changed(t), func(o *Options) {
			o.Confirmer = ConfirmFunc(func(_ context.Context, c ConflictReport) (bool, error) {
				seen = c
				return false, nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAborted, rep.Outcome)
		require.Len(t, seen.Items, 1)
		assert.Equal(t, "title.png", seen.Items[0].Name)
		require.Len(t, seen.Markers, 1)
		assert.Equal(t, "fix color", seen.Markers[0].Name)
		assert.Empty(t, env.fake.MutationLog())
	})

	t.Run("confirmed", func(t *testing.T) {
		env := setup(t)
		rep, err := env.reconcile(t, changed(t), func(o *Options) {
			o.Confirmer = ConfirmFunc(func(context.Context, ConflictReport) (bool, error) { return true, nil })
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, rep.Outcome)
		assert.Equal(t, testStart+45, env.item(t, "uid-3").StartFrame)
	})

	t.Run("confirmer error", func(t *testing.T) {
		env := setup(t)
		boom := errors.New("no tty")
		rep, err := env.reconcile(t, changed(t), func(o *Options) {
			o.Confirmer = ConfirmFunc(func(context.Context, ConflictReport) (bool, error) { return false, boom })
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, OutcomeFailed, rep.Outcome)
	})

	t.Run("forced", func(t *testing.T) {
		env := setup(t)
		rep, err := env.reconcile(t, changed(t), withForce)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, rep.Outcome)

		var manual int
		for _, m := range env.fake.MarkerList(testProject, testTimeline) {
			if m.Label == "fix color" {
				manual++
			}
		}
		assert.Equal(t, 1, manual, "manual marker must survive")
	})

	t.Run("dry run reports force required", func(t *testing.T) {
		env := setup(t)
		rep, err := env.reconcile(t, changed(t), withDryRun)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDryRun, rep.Outcome)
		assert.True(t, rep.ForceRequired)
		assert.Empty(t, env.fake.MutationLog())
	})
}

func TestReconcile_DryRunFullCreate(t *testing.T) {
	env := newEnv()
	rep, err := env.reconcile(t, baseTarget(t), withDryRun)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDryRun, rep.Outcome)
	assert.True(t, rep.ProjectCreated)
	assert.True(t, rep.FullCreate)
	assert.False(t, rep.TimelineCreated)
	assert.Len(t, rep.Changes.Additions, 4)
	assert.Len(t, rep.Changes.Markers.Add, 3)
	assert.Len(t, rep.Changes.Settings, 3)
	assert.Empty(t, env.fake.MutationLog())
}

func TestReconcile_DryRunOnExistingTimeline(t *testing.T) {
	env := newEnv()
	env.seed(t, baseTarget(t))
	env.fake.ShiftItem(testProject, testTimeline, "/p/uid-1.jpg", 30)

	rep, err := env.reconcile(t, baseTarget(t), withDryRun)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRun, rep.Outcome)
	require.Len(t, rep.Changes.Updates, 1)
	assert.Equal(t, "uid-1", rep.Changes.Updates[0].UID)
	assert.Empty(t, env.fake.MutationLog())
}

func TestReconcile_Recreate(t *testing.T) {
	env := newEnv()
	env.seed(t, baseTarget(t))

	rep, err := env.reconcile(t, baseTarget(t), withRecreate)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.True(t, rep.ProjectRecreated)
	assert.True(t, rep.TimelineCreated)
	assert.True(t, hasMutation(env.fake.MutationLog(), "DeleteProject Demo"))
	assert.Len(t, env.fake.Items(testProject, testTimeline), 4)
}

func TestReconcile_SettingRejectedIsFatal(t *testing.T) {
	env := newEnv()
	env.fake.Fail["SetSetting:timelineFrameRate"] = errors.New("unsupported frame rate")

	rep, err := env.reconcile(t, baseTarget(t))
	require.Error(t, err)
	assert.True(t, IsSettingRejected(err))
	assert.Equal(t, OutcomeFailed, rep.Outcome)

	log := env.fake.MutationLog()
	assert.False(t, hasMutation(log, "CreateTimeline"))
	assert.False(t, hasMutation(log, "AddItem"))
}

func TestReconcile_ItemFailureIsPartial(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)
	env.fake.FailAdd["/p/uid-2.jpg"] = errors.New("media offline")

	rep, err := env.reconcile(t, target)
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, rep.Outcome)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "uid-2", rep.Failed[0].UID)
	assert.Equal(t, "add", rep.Failed[0].Op)

	st := env.syncState(t)
	assert.Equal(t, []string{"audio", "uid-1", "uid-3"}, st.ManagedUIDs)
	assert.Empty(t, st.TargetDigest)
	assert.Empty(t, env.fake.MetadataValue(testProject, testTimeline, KeySyncLock))

	// The next run picks up where the failed one left off.
	delete(env.fake.FailAdd, "/p/uid-2.jpg")
	rep, err = env.reconcile(t, target)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.Equal(t, []string{"uid-2"}, rep.Added)
	assert.Equal(t, target.Digest, env.syncState(t).TargetDigest)
}

func TestReconcile_UntaggedAddIsRemoved(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)
	env.fake.Fail["SetItemTag"] = errors.New("tag rejected")

	rep, err := env.reconcile(t, target)
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, rep.Outcome)
	require.Len(t, rep.Failed, 4)
	for _, f := range rep.Failed {
		assert.Equal(t, "tag", f.Op)
		assert.Nil(t, f.Item)
	}
	assert.Empty(t, env.fake.Items(testProject, testTimeline))

	// With tagging restored, nothing is left behind to conflict with.
	delete(env.fake.Fail, "SetItemTag")
	rep, err = env.reconcile(t, target)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.Len(t, rep.Added, 4)
	assert.True(t, rep.Conflicts.Empty())
	assert.Len(t, env.fake.Items(testProject, testTimeline), 4)
}

func TestReconcile_UntaggedAddWithoutRemoverIsReported(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)
	env.fake.Fail["SetItemTag"] = errors.New("tag rejected")

	basic := host.DialFunc(func(context.Context) (host.Host, error) {
		return testutil.BasicHost(env.fake), nil
	})
	opts := env.opts
	opts.Timeout = -1
	rep, err := Reconcile(t.Context(), target, testTimeline, basic, opts)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, rep.Outcome)
	assert.Empty(t, rep.Failed)
	require.Len(t, rep.Skipped, 4)
	items := env.fake.Items(testProject, testTimeline)
	require.Len(t, items, 4)

	left := make(map[string]bool)
	for _, it := range items {
		left[it.ID] = true
	}
	for _, sk := range rep.Skipped {
		assert.Equal(t, "tag", sk.Op)
		require.NotNil(t, sk.Item)
		assert.True(t, left[sk.Item.ID], "reported handle %s must name a clip on the timeline", sk.Item.ID)
	}
}

func TestReconcile_ImportFailureFailsItem(t *testing.T) {
	env := newEnv()
	env.fake.Fail["ImportMedia:/p/uid-3.jpg"] = errors.New("unreadable")

	rep, err := env.reconcile(t, baseTarget(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, rep.Outcome)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "uid-3", rep.Failed[0].UID)
	assert.Contains(t, rep.Failed[0].Reason, "not imported")
}

func TestReconcile_Lock(t *testing.T) {
	changed := func(t *testing.T) *ir.TargetProject {
		return newTarget(t,
			[]ir.TargetElement{audio(), video("uid-1", 0), video("uid-2", 30), video("uid-4", 45)},
			[]ir.TargetMarker{marker(0), marker(1), marker(2)},
		)
	}
	lockAt := func(t *testing.T, env *testEnv, at time.Time) string {
		raw, err := encodeLock(LockRecord{Token: "other", AcquiredAt: at})
		require.NoError(t, err)
		env.fake.PutMetadata(testProject, testTimeline, KeySyncLock, raw)
		return raw
	}

	t.Run("live lock blocks", func(t *testing.T) {
		env := newEnv()
		env.seed(t, baseTarget(t))
		raw := lockAt(t, env, testEpoch.Add(-time.Minute))

		rep, err := env.reconcile(t, changed(t))
		require.Error(t, err)
		assert.True(t, IsSessionLocked(err))
		assert.Equal(t, OutcomeFailed, rep.Outcome)
		require.NotNil(t, rep.Lock)
		assert.Equal(t, "other", rep.Lock.Token)
		assert.Equal(t, raw, env.fake.MetadataValue(testProject, testTimeline, KeySyncLock))
		assert.False(t, hasMutation(env.fake.MutationLog(), "AddItem"))
	})

	t.Run("expired lock is taken over", func(t *testing.T) {
		env := newEnv()
		env.seed(t, baseTarget(t))
		lockAt(t, env, testEpoch.Add(-DefaultLockTTL-time.Second))

		rep, err := env.reconcile(t, changed(t))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, rep.Outcome)
		assert.Empty(t, env.fake.MetadataValue(testProject, testTimeline, KeySyncLock))
	})

	t.Run("force overrides live lock", func(t *testing.T) {
		env := newEnv()
		env.seed(t, baseTarget(t))
		lockAt(t, env, testEpoch.Add(-time.Minute))

		rep, err := env.reconcile(t, changed(t), withForce)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, rep.Outcome)
	})

	t.Run("unreadable lock is ignored", func(t *testing.T) {
		env := newEnv()
		env.seed(t, baseTarget(t))
		env.fake.PutMetadata(testProject, testTimeline, KeySyncLock, "garbage")

		rep, err := env.reconcile(t, changed(t))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, rep.Outcome)
	})

	t.Run("lock taken after planning blocks", func(t *testing.T) {
		env := newEnv()
		env.seed(t, baseTarget(t))
		ctx := t.Context()

		s := NewSession(env.fake, env.opts)
		require.NoError(t, s.Connect(ctx))
		require.NoError(t, s.ResolveProject(ctx, testProject, false))
		require.NoError(t, s.ResolveTimeline(ctx, testTimeline))
		_, err := s.Plan(ctx, changed(t))
		require.NoError(t, err)

		raw := lockAt(t, env, testEpoch)
		err = s.Apply(ctx)
		require.Error(t, err)
		assert.True(t, IsSessionLocked(err))
		require.NotNil(t, s.Report().Lock)
		assert.Equal(t, "other", s.Report().Lock.Token)
		assert.Equal(t, raw, env.fake.MetadataValue(testProject, testTimeline, KeySyncLock))
		assert.False(t, hasMutation(env.fake.MutationLog(), "AddItem"))
	})

	t.Run("released after host failure", func(t *testing.T) {
		env := newEnv()
		env.seed(t, baseTarget(t))
		env.fake.Fail["ListMedia"] = errors.New("pool unavailable")

		_, err := env.reconcile(t, changed(t))
		require.Error(t, err)
		assert.True(t, IsHostFailure(err))
		assert.Empty(t, env.fake.MetadataValue(testProject, testTimeline, KeySyncLock))
	})
}

func TestReconcile_HostUnavailable(t *testing.T) {
	env := newEnv()
	env.fake.Unreachable = true

	rep, err := env.reconcile(t, baseTarget(t))
	require.Error(t, err)
	assert.True(t, IsHostUnavailable(err))
	assert.Equal(t, OutcomeFailed, rep.Outcome)
}

func TestReconcile_HostTimeout(t *testing.T) {
	env := newEnv()
	env.fake.Delay = 200 * time.Millisecond

	_, err := env.reconcile(t, baseTarget(t), func(o *Options) { o.Timeout = 10 * time.Millisecond })
	require.Error(t, err)
	assert.True(t, IsHostFailure(err))
	assert.ErrorIs(t, err, host.ErrTimeout)
}

func TestReconcile_MarkerDrift(t *testing.T) {
	env := newEnv()
	env.seed(t, baseTarget(t))

	moved := marker(1)
	moved.Frame = 20
	relabelled := marker(0)
	relabelled.Note = "Photos: 2024-01-01 \u2192 2024-01-03"
	target := newTarget(t,
		[]ir.TargetElement{audio(), video("uid-1", 0), video("uid-2", 15), video("uid-3", 30)},
		[]ir.TargetMarker{relabelled, moved},
	)

	rep, err := env.reconcile(t, target)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.Equal(t, MarkerStats{Removed: 1, Updated: 2}, rep.Markers)

	markers := env.fake.MarkerList(testProject, testTimeline)
	require.Len(t, markers, 2)
	assert.Equal(t, testStart, markers[0].Frame)
	assert.Equal(t, relabelled.Note, markers[0].Note)
	assert.Equal(t, testStart+20, markers[1].Frame)
	assert.Equal(t, host.BeatTag(1), markers[1].Tag)
}

func TestReconcile_ScalesSourceRangeForMediaRate(t *testing.T) {
	env := newEnv()
	env.fake.MediaFPS["/p/uid-1.jpg"] = 60

	_, err := env.reconcile(t, baseTarget(t))
	require.NoError(t, err)

	it := env.item(t, "uid-1")
	assert.InDelta(t, 30.0, it.SourceOut-it.SourceIn, 1e-9)
	assert.Equal(t, int64(15), it.DurationFrames)
}

func TestReconcile_UnreadableStateRecovers(t *testing.T) {
	env := newEnv()
	target := baseTarget(t)
	env.seed(t, target)
	env.fake.PutMetadata(testProject, testTimeline, KeySyncState, "{not json")

	rep, err := env.reconcile(t, target)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.Empty(t, rep.Removed)
	assert.Empty(t, rep.Added)
	assert.Equal(t, target.Digest, env.syncState(t).TargetDigest)
}

func TestReconcile_ModifiedStateIsIgnored(t *testing.T) {
	env := newEnv()
	env.seed(t, baseTarget(t))

	// Drop uid-3 from the managed set without updating the fingerprint.
	st := env.syncState(t)
	st.ManagedUIDs = []string{"audio", "uid-1", "uid-2"}
	raw, err := EncodeSyncState(*st)
	require.NoError(t, err)
	env.fake.PutMetadata(testProject, testTimeline, KeySyncState, raw)

	smaller := newTarget(t,
		[]ir.TargetElement{audio(), video("uid-1", 0), video("uid-2", 15)},
		[]ir.TargetMarker{marker(0), marker(1), marker(2)},
	)
	rep, err := env.reconcile(t, smaller)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, rep.Outcome)
	assert.Empty(t, rep.Removed)
	assert.Equal(t, []string{"uid-3"}, rep.Changes.Untracked)

	resealed := env.syncState(t)
	assert.NotEqual(t, st.Fingerprint, resealed.Fingerprint)
	assert.Equal(t, smaller.Digest, resealed.TargetDigest)
}

func TestSession_OutOfOrderCalls(t *testing.T) {
	env := newEnv()
	ctx := t.Context()
	s := NewSession(env.fake, env.opts)
	assert.Equal(t, StateDisconnected, s.State())

	_, err := s.Plan(ctx, baseTarget(t))
	assert.True(t, IsInvalidState(err))
	assert.True(t, IsInvalidState(s.Apply(ctx)))
	assert.True(t, IsInvalidState(s.Persist(ctx)))

	require.NoError(t, s.Connect(ctx))
	assert.True(t, IsInvalidState(s.Connect(ctx)))
	assert.True(t, IsInvalidState(s.ResolveTimeline(ctx, testTimeline)))

	require.NoError(t, s.ResolveProject(ctx, testProject, false))
	require.NoError(t, s.ResolveTimeline(ctx, testTimeline))
	_, err = s.Plan(ctx, baseTarget(t))
	require.NoError(t, err)
	assert.Equal(t, StatePlanned, s.State())
	assert.True(t, IsInvalidState(s.Persist(ctx)))

	require.NoError(t, s.Apply(ctx))
	require.NoError(t, s.Persist(ctx))
	assert.Equal(t, StatePersisted, s.State())
	assert.Equal(t, "persisted", s.State().String())
}

func TestSession_DryRunCannotApply(t *testing.T) {
	env := newEnv()
	ctx := t.Context()
	opts := env.opts
	opts.DryRun = true
	s := NewSession(env.fake, opts)

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.ResolveProject(ctx, testProject, false))
	require.NoError(t, s.ResolveTimeline(ctx, testTimeline))
	_, err := s.Plan(ctx, baseTarget(t))
	require.NoError(t, err)

	assert.True(t, IsInvalidState(s.Apply(ctx)))
	rep, err := s.ReportDryRun()
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRun, rep.Outcome)
	assert.Equal(t, StateDryRunReported, s.State())
}
