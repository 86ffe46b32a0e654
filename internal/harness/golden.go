package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/reconcile"
)

// Snapshot renders a result as canonical JSON: placements, pin
// rejections, one summary per run and the final timeline with frames
// relative to its start.
func Snapshot(name string, result *Result) ([]byte, error) {
	snap := ir.Object{
		"scenario": ir.Str(name),
	}

	if result.BuildError != nil {
		var ie *ir.Error
		code := result.BuildError.Error()
		if errors.As(result.BuildError, &ie) {
			code = string(ie.Code)
		}
		snap["buildError"] = ir.Str(code)
	}

	if result.Build != nil {
		placements := ir.List{}
		for _, p := range result.Build.Project.Placements {
			placements = append(placements, ir.Object{
				"item":   ir.Str(p.ItemID),
				"slot":   ir.Int(p.Slot + 1),
				"pinned": ir.Bool(p.Pinned),
			})
		}
		snap["placements"] = placements

		rejections := ir.List{}
		for _, r := range result.Build.Rejections {
			rejections = append(rejections, ir.Object{
				"item":   ir.Str(r.ItemID),
				"slot":   ir.Int(r.RequestedSlot),
				"reason": ir.Str(string(r.Reason)),
			})
		}
		snap["rejections"] = rejections
	}

	runs := ir.List{}
	for _, rr := range result.Runs {
		runs = append(runs, runSnapshot(rr))
	}
	snap["runs"] = runs

	if timelineExists(context.Background(), result) {
		snap["timeline"] = timelineSnapshot(result)
	}

	return ir.MarshalCanonical(snap)
}

func runSnapshot(rr RunResult) ir.Object {
	obj := ir.Object{}
	if rr.Err != nil {
		var re *reconcile.Error
		code := rr.Err.Error()
		if errors.As(rr.Err, &re) {
			code = string(re.Code)
		}
		obj["error"] = ir.Str(code)
	}
	r := rr.Report
	if r == nil {
		return obj
	}
	obj["outcome"] = ir.Str(string(r.Outcome))
	obj["added"] = ir.Int(len(r.Added))
	obj["removed"] = ir.Int(len(r.Removed))
	obj["updated"] = ir.Int(len(r.Updated))
	obj["skipped"] = ir.Int(len(r.Skipped))
	obj["failed"] = ir.Int(len(r.Failed))
	obj["markerOps"] = ir.Int(r.Changes.Markers.Len())
	obj["conflicts"] = ir.Int(r.Conflicts.Len())
	return obj
}

func timelineSnapshot(result *Result) ir.Object {
	cfg := result.Config
	start := result.TimelineStart

	items := ir.List{}
	for _, it := range result.Host.Items(cfg.Name, cfg.Timeline) {
		items = append(items, ir.Object{
			"track":    ir.Str(string(it.Track.Kind)),
			"start":    ir.Int(it.StartFrame - start),
			"duration": ir.Int(it.DurationFrames),
			"name":     ir.Str(it.Name),
			"managed":  ir.Bool(it.Tag != ""),
		})
	}

	markers := ir.List{}
	for _, m := range result.Host.MarkerList(cfg.Name, cfg.Timeline) {
		markers = append(markers, ir.Object{
			"frame":   ir.Int(m.Frame - start),
			"label":   ir.Str(m.Label),
			"note":    ir.Str(m.Note),
			"managed": ir.Bool(m.Tag != ""),
		})
	}

	return ir.Object{"items": items, "markers": markers}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result for further checks, or an error if the scenario is
// malformed.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a result's snapshot against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
