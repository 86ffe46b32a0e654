package reconcile

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/testutil"
)

const (
	testProject  = "Demo"
	testTimeline = "Timeline"
	testStart    = int64(108000)
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func video(uid string, start int64) ir.TargetElement {
	return ir.TargetElement{
		UID:            uid,
		Name:           uid,
		MediaPath:      "/p/" + uid + ".jpg",
		Kind:           ir.MediaVideo,
		Slot:           int(start / 15),
		StartFrame:     start,
		DurationFrames: 15,
	}
}

func audio() ir.TargetElement {
	return ir.TargetElement{
		UID:            "audio",
		Name:           "song",
		MediaPath:      "/song.wav",
		Kind:           ir.MediaAudio,
		Slot:           -1,
		DurationFrames: 300,
	}
}

func marker(beat int) ir.TargetMarker {
	return ir.TargetMarker{
		Beat:  beat,
		Frame: int64(beat) * 15,
		Label: "Beat " + strconv.Itoa(beat+1),
		Note:  "Photos: 2024-01-01",
	}
}

func newTarget(t *testing.T, elements []ir.TargetElement, markers []ir.TargetMarker) *ir.TargetProject {
	t.Helper()
	p := &ir.TargetProject{
		Name:            testProject,
		FrameRate:       30,
		DurationFrames:  300,
		AudioDurationMs: 10000,
		PlaceholderMode: ir.PlaceholderNone,
		Elements:        elements,
		Markers:         markers,
	}
	digest, err := ir.TargetDigest(p)
	require.NoError(t, err)
	p.Digest = digest
	return p
}

// baseTarget is one audio element plus three photos on consecutive beats.
func baseTarget(t *testing.T) *ir.TargetProject {
	return newTarget(t,
		[]ir.TargetElement{audio(), video("uid-1", 0), video("uid-2", 15), video("uid-3", 30)},
		[]ir.TargetMarker{marker(0), marker(1), marker(2)},
	)
}

type testEnv struct {
	fake  *testutil.FakeHost
	clock *testutil.FixedClock
	opts  Options
}

func newEnv() *testEnv {
	fake := testutil.NewFakeHost()
	fake.StartFrame = testStart
	clock := testutil.NewFixedClock(testEpoch)
	return &testEnv{
		fake:  fake,
		clock: clock,
		opts: Options{
			Tokens: testutil.NewSequenceTokens("session"),
			Now:    clock.Now,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	}
}

func (e *testEnv) reconcile(t *testing.T, target *ir.TargetProject, mod ...func(*Options)) (*Report, error) {
	t.Helper()
	opts := e.opts
	for _, m := range mod {
		m(&opts)
	}
	return Reconcile(t.Context(), target, testTimeline, e.fake, opts)
}

// seed runs a clean full create and clears the mutation log.
func (e *testEnv) seed(t *testing.T, target *ir.TargetProject) {
	t.Helper()
	rep, err := e.reconcile(t, target)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, rep.Outcome)
	e.fake.ResetMutations()
}

func (e *testEnv) syncState(t *testing.T) *ir.SyncState {
	t.Helper()
	st, err := DecodeSyncState(e.fake.MetadataValue(testProject, testTimeline, KeySyncState))
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

func (e *testEnv) item(t *testing.T, uid string) testutil.FakeItem {
	t.Helper()
	for _, it := range e.fake.Items(testProject, testTimeline) {
		if it.Tag == host.ItemTag(uid) {
			return it
		}
	}
	t.Fatalf("no item tagged %s", uid)
	return testutil.FakeItem{}
}

func hasMutation(log []string, prefix string) bool {
	for _, m := range log {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func withForce(o *Options)    { o.Force = true }
func withDryRun(o *Options)   { o.DryRun = true }
func withRecreate(o *Options) { o.Recreate = true }
