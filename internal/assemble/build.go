// Package assemble combines a beat grid, clustered placements and a
// soundtrack into the host-agnostic TargetProject consumed by reconcile.
package assemble

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/roach88/beatspine/internal/beatgrid"
	"github.com/roach88/beatspine/internal/cluster"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/placement"
)

// DefaultFrameRate is used when Options.FrameRate is zero.
const DefaultFrameRate = 60

// approxRangeFraction is the share of the date window attributed to a beat
// that has no photo of its own.
const approxRangeFraction = 0.1

// Audio describes the soundtrack element.
type Audio struct {
	Path     string
	UID      string
	Duration float64 // seconds
}

// Options configures BuildProject.
type Options struct {
	Name      string
	FrameRate int
	Tempo     float64
	Gap       float64 // lead-in seconds before the first beat

	StartOffset int
	EndOffset   int
	Policy      ir.GapPolicy

	// StartDate and EndDate restrict the items used. Zero values take the
	// first and last item timestamps.
	StartDate time.Time
	EndDate   time.Time

	// Pins overrides item pins by item ID. A zero value clears a pin.
	Pins map[string]int

	PlaceholderMode ir.PlaceholderMode
	Audio           Audio
	UID             placement.UIDFunc
	Logger          *slog.Logger
}

// Result carries the project plus the intermediate products that the CLI
// reports on.
type Result struct {
	Project    *ir.TargetProject
	Grid       *beatgrid.Grid
	Clusters   []ir.Cluster
	Rejections []placement.PinRejection
	Excluded   int // items outside the date window

	// UnmatchedPins are pin override keys that name no item, sorted.
	UnmatchedPins []string
}

// BuildProject runs the grid, clustering and assignment stages and turns
// the placements into timeline elements, beats and markers.
//
// Any error leaves no partial project.
func BuildProject(items []ir.Item, opts Options) (*Result, error) {
	if err := normalize(&opts); err != nil {
		return nil, err
	}
	log := opts.Logger

	grid, err := beatgrid.Generate(opts.Tempo, opts.Audio.Duration, opts.StartOffset, opts.EndOffset)
	if err != nil {
		return nil, err
	}
	log.Debug("generated beat grid",
		"beats", grid.Len(),
		"effective", grid.EffectiveCount(),
		"tempo", opts.Tempo)

	sorted, unmatched := sortItems(items, opts.Pins)
	for _, id := range unmatched {
		log.Warn("pin override matches no item", "item", id, "slot", opts.Pins[id])
	}
	start, end := window(sorted, opts.StartDate, opts.EndDate)

	var inWindow []ir.Item
	for _, it := range sorted {
		if it.Timestamp.Before(start) || it.Timestamp.After(end) {
			continue
		}
		inWindow = append(inWindow, it)
	}
	excluded := len(sorted) - len(inWindow)
	if excluded > 0 {
		log.Info("items outside date window excluded", "excluded", excluded)
	}
	if len(inWindow) == 0 && len(sorted) > 0 {
		log.Warn("no items within the date window",
			"start", start.Format(time.RFC3339),
			"end", end.Format(time.RFC3339))
	}

	clusters, err := cluster.Group(inWindow, opts.Policy)
	if err != nil {
		return nil, err
	}

	assigned, err := placement.Assign(clusters, grid, placement.Options{
		RangeStart: start,
		RangeEnd:   end,
		Clustered:  !opts.Policy.Disabled(),
		UID:        opts.UID,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	proj := &ir.TargetProject{
		Name:            opts.Name,
		FrameRate:       opts.FrameRate,
		DurationFrames:  beatgrid.SecondsToFrame(opts.Gap+opts.Audio.Duration, opts.FrameRate),
		AudioDurationMs: int64(math.Round(opts.Audio.Duration * 1000)),
		StartOffset:     opts.StartOffset,
		EndOffset:       opts.EndOffset,
		PlaceholderMode: opts.PlaceholderMode,
		Placements:      assigned.Placements,
	}

	proj.Elements, err = elements(grid, assigned.Placements, opts)
	if err != nil {
		return nil, err
	}
	proj.Beats = beats(grid, assigned.Placements, start, end, opts)
	proj.Markers = markers(grid, proj.Beats)

	proj.Digest, err = ir.TargetDigest(proj)
	if err != nil {
		return nil, err
	}

	log.Info("assembled project",
		"name", proj.Name,
		"photos", len(assigned.Placements),
		"clusters", len(clusters),
		"beats", grid.Len(),
		"empty_beats", assigned.Occupancy.FreeIn(grid.EffectiveStart(), grid.EffectiveEnd()))

	return &Result{
		Project:       proj,
		Grid:          grid,
		Clusters:      clusters,
		Rejections:    assigned.Rejections,
		Excluded:      excluded,
		UnmatchedPins: unmatched,
	}, nil
}

func normalize(opts *Options) error {
	if strings.TrimSpace(opts.Name) == "" {
		return ir.NewConfigError("project name is required")
	}
	if opts.FrameRate == 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.FrameRate < 0 {
		return ir.NewConfigError("frame rate must be positive, got %d", opts.FrameRate)
	}
	if opts.Gap < 0 || math.IsNaN(opts.Gap) {
		return ir.NewConfigError("gap must be non-negative, got %v", opts.Gap)
	}
	if opts.PlaceholderMode == "" {
		opts.PlaceholderMode = ir.PlaceholderNone
	}
	if !ir.ValidPlaceholderModes[opts.PlaceholderMode] {
		return ir.NewConfigError("unknown placeholder mode %q", opts.PlaceholderMode)
	}
	if opts.Audio.UID == "" {
		opts.Audio.UID = ir.UIDFromKey(opts.Audio.Path)
	}
	if opts.UID == nil {
		opts.UID = ir.ItemUID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// sortItems applies pin overrides and orders items by timestamp, breaking
// ties by ID. It also returns the override keys that matched no item.
func sortItems(items []ir.Item, pins map[string]int) ([]ir.Item, []string) {
	out := slices.Clone(items)
	matched := make(map[string]bool, len(pins))
	for i := range out {
		if p, ok := pins[out[i].ID]; ok {
			out[i].Pin = p
			matched[out[i].ID] = true
		}
	}
	var unmatched []string
	for id := range pins {
		if !matched[id] {
			unmatched = append(unmatched, id)
		}
	}
	slices.Sort(unmatched)
	slices.SortStableFunc(out, func(a, b ir.Item) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, unmatched
}

func window(sorted []ir.Item, start, end time.Time) (time.Time, time.Time) {
	if len(sorted) > 0 {
		if start.IsZero() {
			start = sorted[0].Timestamp
		}
		if end.IsZero() {
			end = sorted[len(sorted)-1].Timestamp
		}
	}
	return start, end
}

func elements(grid *beatgrid.Grid, placements []ir.Placement, opts Options) ([]ir.TargetElement, error) {
	fps := opts.FrameRate
	audioStart := beatgrid.SecondsToFrame(opts.Gap, fps)
	out := []ir.TargetElement{{
		UID:            opts.Audio.UID,
		Name:           stem(opts.Audio.Path),
		MediaPath:      opts.Audio.Path,
		Kind:           ir.MediaAudio,
		Slot:           -1,
		StartFrame:     audioStart,
		DurationFrames: beatgrid.SecondsToFrame(opts.Gap+opts.Audio.Duration, fps) - audioStart,
	}}

	seen := map[string]string{opts.Audio.UID: opts.Audio.Path}
	for _, p := range placements {
		if prev, dup := seen[p.UID]; dup {
			return nil, ir.NewConfigError("items %q and %q share uid %s", prev, p.ItemID, p.UID)
		}
		seen[p.UID] = p.ItemID

		// Frames come from absolute times so rounding never accumulates.
		startFrame := beatgrid.SecondsToFrame(opts.Gap+grid.Slots[p.Slot].Seconds, fps)
		endFrame := beatgrid.SecondsToFrame(opts.Gap+grid.SlotEnd(p.Slot), fps)
		out = append(out, ir.TargetElement{
			UID:            p.UID,
			Name:           stem(p.ItemID),
			MediaPath:      p.ItemID,
			Kind:           ir.MediaVideo,
			Slot:           p.Slot,
			StartFrame:     startFrame,
			DurationFrames: endFrame - startFrame,
		})
	}
	return out, nil
}

// beats annotates every slot with its frame and a date range: the span of
// the photos placed on it, or an approximation around its proportional
// position in the window.
func beats(grid *beatgrid.Grid, placements []ir.Placement, start, end time.Time, opts Options) []ir.Beat {
	bySlot := make(map[int][]time.Time)
	for _, p := range placements {
		bySlot[p.Slot] = append(bySlot[p.Slot], p.Timestamp)
	}

	span := end.Sub(start)
	width := time.Duration(float64(span) * approxRangeFraction)
	last := grid.Slots[len(grid.Slots)-1].Seconds

	out := make([]ir.Beat, grid.Len())
	for i, s := range grid.Slots {
		var r ir.DateRange
		if dates, ok := bySlot[i]; ok {
			r = ir.DateRange{Start: slices.MinFunc(dates, time.Time.Compare), End: slices.MaxFunc(dates, time.Time.Compare)}
		} else {
			pos := 0.0
			if last > 0 {
				pos = s.Seconds / last
			}
			center := start.Add(time.Duration(float64(span) * pos))
			r = ir.DateRange{Start: center.Add(-width / 2), End: center.Add(width / 2)}
		}
		out[i] = ir.Beat{
			Slot:      s,
			Frame:     beatgrid.SecondsToFrame(opts.Gap+s.Seconds, opts.FrameRate),
			DateRange: r,
		}
	}
	return out
}

// markers emits one marker per effective beat.
func markers(grid *beatgrid.Grid, beats []ir.Beat) []ir.TargetMarker {
	out := make([]ir.TargetMarker, 0, grid.EffectiveCount())
	for i := grid.EffectiveStart(); i < grid.EffectiveEnd(); i++ {
		b := beats[i]
		out = append(out, ir.TargetMarker{
			Beat:  i,
			Frame: b.Frame,
			Label: MarkerLabel(i),
			Note:  "Photos: " + b.DateRange.Format(),
		})
	}
	return out
}

// MarkerLabel is the 1-based display label of beat i.
func MarkerLabel(i int) string {
	return fmt.Sprintf("Beat %d", i+1)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
