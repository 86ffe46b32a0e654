package placement

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/beatspine/internal/beatgrid"
	"github.com/roach88/beatspine/internal/ir"
)

// RejectReason explains why a pin request was not honored.
type RejectReason string

const (
	RejectOutOfRange RejectReason = "out_of_range"
	RejectOccupied   RejectReason = "occupied"
)

// PinRejection is a recoverable diagnostic: the item was demoted to
// chronological placement.
type PinRejection struct {
	ItemID        string       `json:"itemId"`
	RequestedSlot int          `json:"requestedSlot"` // 1-based, as requested
	Reason        RejectReason `json:"reason"`
}

func (r PinRejection) String() string {
	switch r.Reason {
	case RejectOutOfRange:
		return fmt.Sprintf("beat %d outside effective range for %s", r.RequestedSlot, r.ItemID)
	default:
		return fmt.Sprintf("beat %d already occupied, %s will be redistributed", r.RequestedSlot, r.ItemID)
	}
}

// UIDFunc derives the stable identity of an item.
type UIDFunc func(ir.Item) string

// Options configures Assign.
type Options struct {
	// RangeStart and RangeEnd bound the fractional position of clusters.
	// Timestamps outside the window clamp to the first or last slot.
	RangeStart time.Time
	RangeEnd   time.Time

	// Clustered records cluster IDs on placements. When false every
	// placement carries ir.NoCluster.
	Clustered bool

	UID    UIDFunc      // defaults to ir.ItemUID
	Logger *slog.Logger // defaults to slog.Default()
}

// Result is the output of a successful assignment.
type Result struct {
	Placements []ir.Placement
	Occupancy  *Occupancy
	Rejections []PinRejection
}

// Assign places every item of every cluster on exactly one slot of grid.
//
// Returns a capacity error, with no placements, when the clusters cannot
// all fit in the effective range.
func Assign(clusters []ir.Cluster, grid *beatgrid.Grid, opts Options) (*Result, error) {
	if opts.UID == nil {
		opts.UID = ir.ItemUID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	lo, hi := grid.EffectiveStart(), grid.EffectiveEnd()
	effective := grid.EffectiveCount()
	if len(clusters) > effective {
		return nil, ir.NewCapacityError(len(clusters), effective)
	}

	a := &assigner{
		grid:     grid,
		opts:     opts,
		occ:      NewOccupancy(grid.Len()),
		anchored: make(map[int]bool),
	}

	for ci, c := range clusters {
		a.pinCluster(ci, c)
	}

	var pending []int
	for ci := range clusters {
		if !a.anchored[ci] {
			pending = append(pending, ci)
		}
	}
	// Multi-pin clusters can consume more than one slot each.
	if free := a.occ.FreeIn(lo, hi); len(pending) > free {
		return nil, ir.NewCapacityError(len(pending), free)
	}

	for _, ci := range pending {
		c := clusters[ci]
		preferred := lo + preferredOffset(c.Representative(), opts.RangeStart, opts.RangeEnd, effective)
		slot, ok := nearestFree(a.occ, preferred, lo, hi, 2*effective)
		if !ok {
			return nil, ir.NewCapacityError(len(pending), a.occ.FreeIn(lo, hi))
		}
		a.occ.Occupy(slot)
		for _, it := range c.Items {
			a.place(it, slot, false, ci)
		}
	}

	slices.SortStableFunc(a.placements, func(x, y ir.Placement) int {
		if c := cmp.Compare(x.Slot, y.Slot); c != 0 {
			return c
		}
		if c := x.Timestamp.Compare(y.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(x.ItemID, y.ItemID)
	})

	opts.Logger.Debug("assigned slots",
		"placements", len(a.placements),
		"clusters", len(clusters),
		"pinned", a.pinned,
		"rejected", len(a.rejections),
		"effective_slots", effective)

	return &Result{
		Placements: a.placements,
		Occupancy:  a.occ,
		Rejections: a.rejections,
	}, nil
}

type assigner struct {
	grid *beatgrid.Grid
	opts Options
	occ  *Occupancy

	anchored   map[int]bool
	placements []ir.Placement
	rejections []PinRejection
	pinned     int
}

// pinCluster runs the pin pass for one cluster. Each distinct pin is tried
// once, in order of first appearance. Remaining members of a cluster with at
// least one honored pin share its first pinned slot.
func (a *assigner) pinCluster(ci int, c ir.Cluster) {
	placed := make([]bool, len(c.Items))
	tried := make(map[int]bool)
	anchor := -1

	for _, it := range c.Items {
		if !it.Pinned() || tried[it.Pin] {
			continue
		}
		tried[it.Pin] = true
		slot := it.Pin - 1

		var reason RejectReason
		switch {
		case !a.grid.InRange(slot):
			reason = RejectOutOfRange
		case a.occ.Occupied(slot):
			reason = RejectOccupied
		}
		if reason != "" {
			for _, m := range c.Items {
				if m.Pin == it.Pin {
					a.reject(PinRejection{ItemID: m.ID, RequestedSlot: m.Pin, Reason: reason})
				}
			}
			continue
		}

		a.occ.Occupy(slot)
		if anchor < 0 {
			anchor = slot
		}
		for j, m := range c.Items {
			if m.Pin == it.Pin {
				a.place(m, slot, true, ci)
				placed[j] = true
				a.pinned++
			}
		}
	}

	if anchor < 0 {
		return
	}
	a.anchored[ci] = true
	for j, m := range c.Items {
		if !placed[j] {
			a.place(m, anchor, false, ci)
		}
	}
}

func (a *assigner) place(it ir.Item, slot int, pinned bool, ci int) {
	clusterID := ir.NoCluster
	if a.opts.Clustered {
		clusterID = ci
	}
	a.placements = append(a.placements, ir.Placement{
		ItemID:    it.ID,
		UID:       a.opts.UID(it),
		Slot:      slot,
		Timestamp: it.Timestamp,
		Pinned:    pinned,
		ClusterID: clusterID,
	})
}

func (a *assigner) reject(r PinRejection) {
	a.rejections = append(a.rejections, r)
	a.opts.Logger.Warn("pin rejected",
		"item", r.ItemID,
		"beat", r.RequestedSlot,
		"reason", string(r.Reason))
}

// Position maps t onto [0,1] within the window. A zero or negative window
// maps everything to 0.
func Position(t, start, end time.Time) float64 {
	span := end.Sub(start)
	if span <= 0 {
		return 0
	}
	p := float64(t.Sub(start)) / float64(span)
	return min(max(p, 0), 1)
}

// preferredOffset converts a timestamp to an offset into the effective range.
func preferredOffset(t, start, end time.Time, n int) int {
	return min(int(Position(t, start, end)*float64(n-1)), n-1)
}
