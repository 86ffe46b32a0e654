package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/reconcile"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages. An empty slice means all assertions passed.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(ctx, result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func evaluate(ctx context.Context, result *Result, a Assertion) error {
	switch a.Type {
	case AssertPlacement:
		return assertPlacement(result, a)
	case AssertUnplaced:
		return assertUnplaced(result, a)
	case AssertBuildError:
		return assertBuildError(result, a)
	case AssertTimelineItems:
		return assertTimelineItems(ctx, result, a)
	case AssertMarkers:
		return assertMarkers(ctx, result, a)
	case AssertSynced:
		return assertSynced(ctx, result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func placementOf(result *Result, item string) (ir.Placement, bool) {
	if result.Build == nil {
		return ir.Placement{}, false
	}
	for _, p := range result.Build.Project.Placements {
		if p.ItemID == item {
			return p, true
		}
	}
	return ir.Placement{}, false
}

func assertPlacement(result *Result, a Assertion) error {
	p, ok := placementOf(result, a.Item)
	if !ok {
		return &AssertionError{
			Type:     AssertPlacement,
			Expected: fmt.Sprintf("%s at slot %d", a.Item, a.Slot),
			Actual:   "not placed",
		}
	}
	if p.Slot+1 != a.Slot {
		return &AssertionError{
			Type:     AssertPlacement,
			Expected: fmt.Sprintf("%s at slot %d", a.Item, a.Slot),
			Actual:   fmt.Sprintf("slot %d", p.Slot+1),
		}
	}
	return nil
}

func assertUnplaced(result *Result, a Assertion) error {
	if p, ok := placementOf(result, a.Item); ok {
		return &AssertionError{
			Type:     AssertUnplaced,
			Expected: a.Item + " not placed",
			Actual:   fmt.Sprintf("slot %d", p.Slot+1),
		}
	}
	return nil
}

func assertBuildError(result *Result, a Assertion) error {
	var ie *ir.Error
	if !errors.As(result.BuildError, &ie) {
		return &AssertionError{
			Type:     AssertBuildError,
			Expected: a.Code,
			Actual:   fmt.Sprintf("%v", result.BuildError),
		}
	}
	if string(ie.Code) != a.Code {
		return &AssertionError{Type: AssertBuildError, Expected: a.Code, Actual: string(ie.Code)}
	}
	return nil
}

func assertTimelineItems(ctx context.Context, result *Result, a Assertion) error {
	cfg := result.Config
	got := 0
	if timelineExists(ctx, result) {
		for _, it := range result.Host.Items(cfg.Name, cfg.Timeline) {
			if a.Tagged != nil && (it.Tag != "") != *a.Tagged {
				continue
			}
			got++
		}
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertTimelineItems,
			Expected: fmt.Sprintf("%d items", *a.Count),
			Actual:   fmt.Sprintf("%d items", got),
		}
	}
	return nil
}

func assertMarkers(ctx context.Context, result *Result, a Assertion) error {
	cfg := result.Config
	got := 0
	if timelineExists(ctx, result) {
		got = len(result.Host.MarkerList(cfg.Name, cfg.Timeline))
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertMarkers,
			Expected: fmt.Sprintf("%d markers", *a.Count),
			Actual:   fmt.Sprintf("%d markers", got),
		}
	}
	return nil
}

func assertSynced(ctx context.Context, result *Result) error {
	if !timelineExists(ctx, result) || result.Build == nil {
		return &AssertionError{Type: AssertSynced, Expected: "a synced timeline", Actual: "no timeline"}
	}
	cfg := result.Config
	raw := result.Host.MetadataValue(cfg.Name, cfg.Timeline, reconcile.KeySyncState)
	state, err := reconcile.DecodeSyncState(raw)
	if err != nil || state == nil {
		return &AssertionError{Type: AssertSynced, Expected: "a sync state", Actual: fmt.Sprintf("%q", raw)}
	}
	if state.TargetDigest != result.Build.Project.Digest {
		return &AssertionError{
			Type:     AssertSynced,
			Expected: "digest " + result.Build.Project.Digest,
			Actual:   "digest " + state.TargetDigest,
		}
	}
	return nil
}

func timelineExists(ctx context.Context, result *Result) bool {
	if result.Host == nil || result.Config == nil {
		return false
	}
	p, err := result.Host.FindProject(ctx, result.Config.Name)
	if err != nil {
		return false
	}
	_, err = result.Host.FindTimeline(ctx, p, result.Config.Timeline)
	return err == nil
}
