package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/beatspine/internal/assemble"
	"github.com/roach88/beatspine/internal/compiler"
	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/reconcile"
	"github.com/roach88/beatspine/internal/source"
	"github.com/roach88/beatspine/internal/testutil"
)

// Harness executes one scenario against a fresh in-memory host with a
// fixed clock and sequential session tokens.
type Harness struct {
	scenario *Scenario
	host     *testutil.FakeHost
	clock    *testutil.FixedClock
	tokens   *testutil.SequenceTokens
	logger   *slog.Logger
	result   *Result
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Compile the CUE configuration
//  2. Load the inline photos and assemble the target project
//  3. For each run, apply its edits and reconcile against the host
//  4. Evaluate assertions against placements and the final host state
//
// An error is returned only when the scenario itself is malformed; build
// and reconciliation failures are recorded in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cfg, err := compiler.Compile([]byte(scenario.Config), scenario.Name+".cue")
	if err != nil {
		return nil, fmt.Errorf("failed to compile config: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		host:     testutil.NewFakeHost(),
		clock:    testutil.NewFixedClock(time.Time{}),
		tokens:   testutil.NewSequenceTokens("session"),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		result:   NewResult(),
	}
	h.host.StartFrame = 3600 * int64(cfg.FrameRate)
	h.result.Config = cfg
	h.result.Host = h.host
	h.result.TimelineStart = h.host.StartFrame

	src := &source.ManifestSource{
		Manifest: &source.Manifest{Photos: scenario.Photos},
		Logger:   h.logger,
	}
	items, err := src.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}

	opts := cfg.AssembleOptions(assemble.Audio{Path: cfg.AudioPath, Duration: cfg.AudioDuration})
	opts.Logger = h.logger
	build, err := assemble.BuildProject(items, opts)
	if err != nil {
		var ie *ir.Error
		if !errors.As(err, &ie) {
			return nil, fmt.Errorf("failed to assemble project: %w", err)
		}
		h.result.BuildError = err
		if len(scenario.Runs) > 0 {
			h.result.AddError(fmt.Sprintf("build failed before runs: %v", err))
		}
	} else {
		h.result.Build = build
		for i, run := range scenario.Runs {
			if err := h.execute(ctx, i, run); err != nil {
				return nil, fmt.Errorf("runs[%d]: %w", i, err)
			}
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) execute(ctx context.Context, index int, run RunSpec) error {
	for j, e := range run.Edits {
		if err := h.edit(ctx, e); err != nil {
			return fmt.Errorf("edits[%d]: %w", j, err)
		}
	}

	opts := reconcile.Options{
		Force:    run.Force,
		DryRun:   run.DryRun,
		Recreate: run.Recreate,
		Timeout:  -1,
		Tokens:   h.tokens,
		Now:      h.clock.Now,
		Logger:   h.logger,
	}
	if run.Confirm != nil {
		answer := *run.Confirm
		opts.Confirmer = reconcile.ConfirmFunc(func(context.Context, reconcile.ConflictReport) (bool, error) {
			return answer, nil
		})
	}

	cfg := h.result.Config
	report, err := reconcile.Reconcile(ctx, h.result.Build.Project, cfg.Timeline, h.host, opts)
	rr := RunResult{Report: report, Err: err}
	h.result.Runs = append(h.result.Runs, rr)

	if run.Expect != nil {
		for _, msg := range checkRun(rr, run.Expect) {
			h.result.AddError(fmt.Sprintf("runs[%d]: %s", index, msg))
		}
	}
	return nil
}

func (h *Harness) edit(ctx context.Context, e Edit) error {
	cfg := h.result.Config
	if !timelineExists(ctx, h.result) {
		return fmt.Errorf("%s edit before the timeline exists", e.Type)
	}
	start := h.result.TimelineStart

	switch e.Type {
	case EditShift:
		h.host.ShiftItem(cfg.Name, cfg.Timeline, e.Path, e.Frames)
	case EditPlaceItem:
		track := host.Track{Kind: host.TrackVideo, Index: max(e.Track, 1)}
		h.host.PlaceItem(cfg.Name, cfg.Timeline, track, e.Name, e.Tag, start+e.Frame, e.Duration)
	case EditPlaceMarker:
		h.host.PlaceMarker(cfg.Name, cfg.Timeline, host.Marker{
			Frame: start + e.Frame,
			Label: e.Label,
			Tag:   e.Tag,
		})
	case EditLock:
		rec, err := json.Marshal(reconcile.LockRecord{Token: e.Token, AcquiredAt: h.clock.Now()})
		if err != nil {
			return err
		}
		h.host.PutMetadata(cfg.Name, cfg.Timeline, reconcile.KeySyncLock, string(rec))
	default:
		return fmt.Errorf("unknown edit type %q", e.Type)
	}
	return nil
}

// checkRun compares a run against its expectation and returns one message
// per mismatch.
func checkRun(rr RunResult, want *RunExpect) []string {
	var msgs []string
	if want.Error != "" {
		var re *reconcile.Error
		switch {
		case !errors.As(rr.Err, &re):
			msgs = append(msgs, fmt.Sprintf("expected error %s, got %v", want.Error, rr.Err))
		case string(re.Code) != want.Error:
			msgs = append(msgs, fmt.Sprintf("expected error %s, got %s", want.Error, re.Code))
		}
	} else if rr.Err != nil {
		msgs = append(msgs, fmt.Sprintf("unexpected error: %v", rr.Err))
	}

	r := rr.Report
	if r == nil {
		return append(msgs, "no report")
	}
	if want.Outcome != "" && r.Outcome != want.Outcome {
		msgs = append(msgs, fmt.Sprintf("expected outcome %s, got %s", want.Outcome, r.Outcome))
	}

	for _, c := range []struct {
		name string
		want *int
		got  int
	}{
		{"added", want.Added, len(r.Added)},
		{"removed", want.Removed, len(r.Removed)},
		{"updated", want.Updated, len(r.Updated)},
		{"skipped", want.Skipped, len(r.Skipped)},
		{"failed", want.Failed, len(r.Failed)},
		{"conflicts", want.Conflicts, r.Conflicts.Len()},
		{"markers", want.Markers, r.Changes.Markers.Len()},
	} {
		if c.want != nil && *c.want != c.got {
			msgs = append(msgs, fmt.Sprintf("expected %d %s, got %d", *c.want, c.name, c.got))
		}
	}
	return msgs
}
