// Package cluster groups chronologically sorted items into assignment units
// according to a temporal gap policy.
//
// Clustering is a pure function: identical input order and policy always
// produce identical clusters. Items are never reordered within a cluster.
package cluster

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/beatspine/internal/ir"
)

// Unit lengths used for minimum-gap conversion. Month and year are the
// calendar averages (30.44 and 365.25 days) expressed in whole seconds.
var unitLength = map[ir.TimeUnit]time.Duration{
	ir.UnitSecond: time.Second,
	ir.UnitMinute: time.Minute,
	ir.UnitHour:   time.Hour,
	ir.UnitDay:    24 * time.Hour,
	ir.UnitWeek:   7 * 24 * time.Hour,
	ir.UnitMonth:  2630016 * time.Second,
	ir.UnitYear:   31557600 * time.Second,
}

// Group clusters items under policy. Items must already be sorted by
// timestamp. Cluster IDs are their positions in the returned slice.
func Group(items []ir.Item, policy ir.GapPolicy) ([]ir.Cluster, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if !policy.Disabled() && !ir.ValidTimeUnits[policy.Unit] {
		return nil, ir.NewConfigError("unknown time unit %q", policy.Unit)
	}

	var clusters []ir.Cluster
	switch {
	case policy.Disabled():
		clusters = singletons(items)
	case policy.Mode == ir.GapSamePeriod:
		clusters = bySamePeriod(items, policy.Unit)
	case policy.Mode == ir.GapMinimum:
		if policy.Amount < 0 {
			return nil, ir.NewConfigError("gap amount must be non-negative, got %d", policy.Amount)
		}
		clusters = byMinimumGap(items, policy.Amount, policy.Unit)
	default:
		return nil, ir.NewConfigError("unknown gap mode %q", policy.Mode)
	}

	for i := range clusters {
		clusters[i].ID = i
	}
	return clusters, nil
}

func singletons(items []ir.Item) []ir.Cluster {
	out := make([]ir.Cluster, len(items))
	for i, it := range items {
		out[i] = ir.Cluster{Items: []ir.Item{it}}
	}
	return out
}

// bySamePeriod groups items whose timestamps normalize to the same period
// start. Clusters are ordered by their earliest member.
func bySamePeriod(items []ir.Item, unit ir.TimeUnit) []ir.Cluster {
	index := make(map[time.Time]int)
	var out []ir.Cluster
	for _, it := range items {
		key := PeriodStart(it.Timestamp, unit)
		if i, ok := index[key]; ok {
			out[i].Items = append(out[i].Items, it)
			continue
		}
		index[key] = len(out)
		out = append(out, ir.Cluster{Items: []ir.Item{it}})
	}

	// Stable so that equal minima keep first-seen order.
	slices.SortStableFunc(out, func(a, b ir.Cluster) int {
		alo, _ := a.Span()
		blo, _ := b.Span()
		return alo.Compare(blo)
	})
	return out
}

// byMinimumGap walks the items and opens a new cluster whenever the gap to
// the previous item, in whole units, reaches amount.
func byMinimumGap(items []ir.Item, amount int, unit ir.TimeUnit) []ir.Cluster {
	var out []ir.Cluster
	current := []ir.Item{items[0]}
	for i := 1; i < len(items); i++ {
		if Delta(items[i-1].Timestamp, items[i].Timestamp, unit) >= int64(amount) {
			out = append(out, ir.Cluster{Items: current})
			current = []ir.Item{items[i]}
			continue
		}
		current = append(current, items[i])
	}
	return append(out, ir.Cluster{Items: current})
}

// Delta returns the absolute distance between a and b in whole units,
// using floor division.
func Delta(a, b time.Time, unit ir.TimeUnit) int64 {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return int64(d / unitLength[unit])
}

// PeriodStart normalizes t to the start of its period in t's location.
// Weeks start on Monday.
func PeriodStart(t time.Time, unit ir.TimeUnit) time.Time {
	loc := t.Location()
	switch unit {
	case ir.UnitSecond:
		return t.Truncate(time.Second)
	case ir.UnitMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	case ir.UnitHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	case ir.UnitDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case ir.UnitWeek:
		sinceMonday := (int(t.Weekday()) + 6) % 7
		return time.Date(t.Year(), t.Month(), t.Day()-sinceMonday, 0, 0, 0, 0, loc)
	case ir.UnitMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case ir.UnitYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	}
	panic(fmt.Sprintf("cluster: unknown time unit %q", unit))
}
