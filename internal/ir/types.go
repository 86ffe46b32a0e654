package ir

import (
	"slices"
	"time"
)

// NoCluster marks a placement produced with clustering disabled.
const NoCluster = -1

// Item is a timestamped source entity (a photo) awaiting placement.
type Item struct {
	ID        string    `json:"id"`            // Stable path or handle
	Timestamp time.Time `json:"timestamp"`     // Capture time
	Pin       int       `json:"pin,omitempty"` // 1-based slot request, 0 when unpinned
	Comment   string    `json:"comment,omitempty"`
}

// Pinned reports whether the item carries an explicit slot request.
func (it Item) Pinned() bool {
	return it.Pin > 0
}

// Cluster is an ordered, non-empty group of items treated as one
// assignment unit.
type Cluster struct {
	ID    int    `json:"id"`
	Items []Item `json:"items"`
}

// Representative returns the median member timestamp. For even-sized
// clusters the upper median is used.
func (c Cluster) Representative() time.Time {
	ts := make([]time.Time, len(c.Items))
	for i, it := range c.Items {
		ts[i] = it.Timestamp
	}
	slices.SortFunc(ts, func(a, b time.Time) int { return a.Compare(b) })
	return ts[len(ts)/2]
}

// Span returns the earliest and latest member timestamps.
func (c Cluster) Span() (time.Time, time.Time) {
	lo, hi := c.Items[0].Timestamp, c.Items[0].Timestamp
	for _, it := range c.Items[1:] {
		if it.Timestamp.Before(lo) {
			lo = it.Timestamp
		}
		if it.Timestamp.After(hi) {
			hi = it.Timestamp
		}
	}
	return lo, hi
}

// Slot is one discrete time position (a beat) in the grid.
type Slot struct {
	Index   int     `json:"index"`
	Seconds float64 `json:"seconds"`
}

// Placement binds one item to one slot.
type Placement struct {
	ItemID    string    `json:"itemId"`
	UID       string    `json:"uid"`
	Slot      int       `json:"slot"`
	Timestamp time.Time `json:"timestamp"`
	Pinned    bool      `json:"pinned"`
	ClusterID int       `json:"clusterId"`
}

// MediaKind distinguishes video (photo) elements from audio elements.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// PlaceholderMode records how empty slots are filled downstream.
type PlaceholderMode string

const (
	PlaceholderNone     PlaceholderMode = "none"
	PlaceholderTitle    PlaceholderMode = "title"
	PlaceholderCaptions PlaceholderMode = "captions"
	PlaceholderImage    PlaceholderMode = "image"
	PlaceholderMissing  PlaceholderMode = "missing"
)

// ValidPlaceholderModes defines the accepted placeholder modes.
var ValidPlaceholderModes = map[PlaceholderMode]bool{
	PlaceholderNone:     true,
	PlaceholderTitle:    true,
	PlaceholderCaptions: true,
	PlaceholderImage:    true,
	PlaceholderMissing:  true,
}

// TargetElement is an entity that should be present on the host timeline.
// Frames are relative to the timeline start.
type TargetElement struct {
	UID            string    `json:"uid"`
	Name           string    `json:"name"`
	MediaPath      string    `json:"mediaPath"`
	Kind           MediaKind `json:"kind"`
	Slot           int       `json:"slot"` // -1 for audio
	StartFrame     int64     `json:"startFrame"`
	DurationFrames int64     `json:"durationFrames"`
}

// EndFrame returns the exclusive end frame of the element.
func (e TargetElement) EndFrame() int64 {
	return e.StartFrame + e.DurationFrames
}

// TargetMarker is a beat marker that should be present on the host timeline.
type TargetMarker struct {
	Beat  int    `json:"beat"` // 0-based slot index
	Frame int64  `json:"frame"`
	Label string `json:"label"`
	Note  string `json:"note"`
}

// DateRange is the span of capture dates attributed to a beat.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Format renders the range as a day or a day-to-day interval.
func (r DateRange) Format() string {
	const layout = "2006-01-02"
	if r.Start.Format(layout) == r.End.Format(layout) {
		return r.Start.Format(layout)
	}
	return r.Start.Format(layout) + " \u2192 " + r.End.Format(layout)
}

// Beat is a slot annotated with its frame and attributed date range.
type Beat struct {
	Slot
	Frame     int64     `json:"frame"`
	DateRange DateRange `json:"dateRange"`
}

// TargetProject is the assembled, host-agnostic arrangement that the
// reconciliation engine drives the host towards.
type TargetProject struct {
	Name            string          `json:"name"`
	FrameRate       int             `json:"frameRate"`
	DurationFrames  int64           `json:"durationFrames"`
	AudioDurationMs int64           `json:"audioDurationMs"`
	StartOffset     int             `json:"startOffset"`
	EndOffset       int             `json:"endOffset"`
	PlaceholderMode PlaceholderMode `json:"placeholderMode"`
	Elements        []TargetElement `json:"elements"`
	Markers         []TargetMarker  `json:"markers"`
	Beats           []Beat          `json:"beats"`
	Placements      []Placement     `json:"placements"`
	Digest          string          `json:"digest"`
}

// ElementsByUID indexes the target elements by UID.
func (p *TargetProject) ElementsByUID() map[string]TargetElement {
	m := make(map[string]TargetElement, len(p.Elements))
	for _, e := range p.Elements {
		m[e.UID] = e
	}
	return m
}

// SyncState is the fingerprint of the last successful reconciliation,
// persisted in the host's metadata facility. Unknown fields are ignored and
// missing fields take their zero value when decoding.
type SyncState struct {
	ProjectName       string          `json:"projectName"`
	TimelineName      string          `json:"timelineName"`
	ItemCount         int             `json:"itemCount"`
	AudioDurationMs   int64           `json:"audioDurationMs"`
	PlaceholderMode   PlaceholderMode `json:"placeholderMode"`
	ManagedUIDs       []string        `json:"managedUIDs"`
	TimelineItemCount int             `json:"timelineItemCount"`
	FormatVersion     string          `json:"formatVersion"`
	TargetDigest      string          `json:"targetDigest,omitempty"`
	SessionToken      string          `json:"sessionToken,omitempty"`

	// Fingerprint is SyncStateFingerprint of the other fields, written on
	// persist so edits to the managed set made outside the engine show.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ManagedSet returns the managed UIDs as a set.
func (s *SyncState) ManagedSet() map[string]bool {
	set := make(map[string]bool)
	if s == nil {
		return set
	}
	for _, uid := range s.ManagedUIDs {
		set[uid] = true
	}
	return set
}
